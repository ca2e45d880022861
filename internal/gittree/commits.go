package gittree

import (
	"fmt"
)

const defaultCommitListLimit = 50

// ListCommits returns recently tracked commits for branch, newest
// first, sourced from the local commits table (populated by webhook
// deliveries). When that table has no rows for branch, the commits are
// fetched upstream and returned without being stored.
func (in *Instance) ListCommits(branch string, limit int) ([]Commit, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if limit <= 0 {
		limit = defaultCommitListLimit
	}

	rows, err := in.db.Query(`SELECT sha, branch, author, message, timestamp FROM commits WHERE branch = ? ORDER BY timestamp DESC LIMIT ?`, branch, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(commits) == 0 {
		fetched, err := in.fetchCommits(branch, limit)
		if err != nil {
			return nil, err
		}
		return fetched, nil
	}
	return commits, nil
}

// BranchComparison is the result of diffing two branches' file sets.
type BranchComparison struct {
	Base    string   `json:"base"`
	Head    string   `json:"head"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// CompareBranches diffs the cached trees of base and head by path and
// sha, refreshing either side if its cache has expired.
func (in *Instance) CompareBranches(base, head string) (*BranchComparison, error) {
	baseTree, err := in.ListTree(TreeQuery{Branch: base, Depth: -1})
	if err != nil {
		return nil, fmt.Errorf("load base tree: %w", err)
	}
	headTree, err := in.ListTree(TreeQuery{Branch: head, Depth: -1})
	if err != nil {
		return nil, fmt.Errorf("load head tree: %w", err)
	}

	baseByPath := make(map[string]File, len(baseTree.Files))
	for _, f := range baseTree.Files {
		baseByPath[f.Path] = f
	}

	cmp := &BranchComparison{Base: base, Head: head}
	seen := make(map[string]bool, len(headTree.Files))
	for _, f := range headTree.Files {
		seen[f.Path] = true
		if bf, ok := baseByPath[f.Path]; !ok {
			cmp.Added = append(cmp.Added, f.Path)
		} else if bf.SHA != f.SHA {
			cmp.Changed = append(cmp.Changed, f.Path)
		}
	}
	for path := range baseByPath {
		if !seen[path] {
			cmp.Removed = append(cmp.Removed, path)
		}
	}
	return cmp, nil
}

func scanCommit(row interface{ Scan(dest ...any) error }) (*Commit, error) {
	var c Commit
	var author, message, timestamp string
	if err := row.Scan(&c.SHA, &c.Branch, &author, &message, &timestamp); err != nil {
		return nil, fmt.Errorf("scan commit: %w", err)
	}
	c.Author = author
	c.Message = message
	t, err := parseTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	c.Timestamp = t
	return &c, nil
}
