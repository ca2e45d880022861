package gittree

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coordplane/coordplane/internal/git"
)

// UpstreamError wraps a non-2xx response from the GitHub REST API so
// handlers can mirror its status and body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github upstream %d: %s", e.Status, e.Body)
}

// resolveBranchSHA resolves a branch name to its current head commit,
// via the GitHub REST API when a token is configured, else via the
// local git CLI wrapper against in.localPath.
func (in *Instance) resolveBranchSHA(branch string) (string, error) {
	if in.usesGitHub() {
		var ref struct {
			Object struct {
				SHA string `json:"sha"`
			} `json:"object"`
		}
		url := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/refs/heads/%s", in.owner, in.repo, branch)
		if err := in.githubGet(url, &ref); err != nil {
			return "", err
		}
		return ref.Object.SHA, nil
	}
	return git.New(in.localPath).ResolveRef(branch)
}

// fetchTree resolves a recursive tree listing for sha, via GitHub REST
// when a token is configured, else the local git CLI wrapper.
func (in *Instance) fetchTree(sha string) ([]File, error) {
	if in.usesGitHub() {
		var resp struct {
			Tree []struct {
				Path string `json:"path"`
				Type string `json:"type"`
				SHA  string `json:"sha"`
				Size *int64 `json:"size,omitempty"`
			} `json:"tree"`
		}
		url := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/trees/%s?recursive=1", in.owner, in.repo, sha)
		if err := in.githubGet(url, &resp); err != nil {
			return nil, err
		}
		files := make([]File, 0, len(resp.Tree))
		for _, e := range resp.Tree {
			fileType := FileTypeBlob
			if e.Type == "tree" {
				fileType = FileTypeTree
			}
			files = append(files, File{Path: e.Path, Type: fileType, Size: e.Size, SHA: e.SHA})
		}
		return files, nil
	}

	entries, err := git.New(in.localPath).ListTree(sha)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		fileType := FileTypeBlob
		if e.Type == "tree" {
			fileType = FileTypeTree
		}
		size := e.Size
		files = append(files, File{Path: e.Path, Type: fileType, Size: &size, SHA: e.SHA})
	}
	return files, nil
}

// fetchCommits lists up to count commits on branch, newest first, via
// GitHub REST when a token is configured, else the local git CLI.
func (in *Instance) fetchCommits(branch string, count int) ([]Commit, error) {
	if in.usesGitHub() {
		var resp []struct {
			SHA    string `json:"sha"`
			Commit struct {
				Author struct {
					Name string    `json:"name"`
					Date time.Time `json:"date"`
				} `json:"author"`
				Message string `json:"message"`
			} `json:"commit"`
		}
		url := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits?sha=%s&per_page=%d", in.owner, in.repo, branch, count)
		if err := in.githubGet(url, &resp); err != nil {
			return nil, err
		}
		commits := make([]Commit, 0, len(resp))
		for _, c := range resp {
			commits = append(commits, Commit{
				SHA: c.SHA, Branch: branch, Author: c.Commit.Author.Name,
				Message: c.Commit.Message, Timestamp: c.Commit.Author.Date,
			})
		}
		return commits, nil
	}

	entries, err := git.New(in.localPath).ListCommits(branch, count)
	if err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			ts = time.Now()
		}
		commits = append(commits, Commit{SHA: e.SHA, Branch: branch, Author: e.Author, Message: e.Subject, Timestamp: ts})
	}
	return commits, nil
}

func (in *Instance) githubGet(url string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+githubToken())
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := in.http.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
