package gittree

import (
	"testing"
	"time"
)

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"**/*.go", "%/%.go"},
		{"src/*.ts", "src/%.ts"},
		{"file?.txt", "file_.txt"},
		{"100%_done.md", `100\%\_done.md`},
	}
	for _, tt := range tests {
		if got := globToLike(tt.pattern); got != tt.want {
			t.Errorf("globToLike(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestFilterFilesBoundarySafe(t *testing.T) {
	files := []File{
		{Path: "src/api", Type: FileTypeBlob},
		{Path: "src/api/handler.go", Type: FileTypeBlob},
		{Path: "src/api-v2/handler.go", Type: FileTypeBlob},
		{Path: "src/other.go", Type: FileTypeBlob},
	}

	got := filterFiles(files, "src/api", -1)
	for _, f := range got {
		if f.Path == "src/api-v2/handler.go" {
			t.Errorf("filterFiles matched %q against prefix %q, want boundary-safe exclusion", f.Path, "src/api")
		}
	}
	if len(got) != 2 {
		t.Errorf("filterFiles returned %d entries, want 2 (src/api, src/api/handler.go)", len(got))
	}
}

func TestFilterFilesDepth(t *testing.T) {
	files := []File{
		{Path: "a/b.go"},
		{Path: "a/b/c.go"},
		{Path: "a/b/c/d.go"},
	}
	got := filterFiles(files, "a", 1)
	for _, f := range got {
		if f.Path == "a/b/c/d.go" {
			t.Error("filterFiles(depth=1) should exclude entries more than 1 segment below path")
		}
	}
}

func TestTTLForBranchClass(t *testing.T) {
	if ttlFor("main") != 15*time.Minute {
		t.Errorf("ttlFor(main) = %v, want 15m", ttlFor("main"))
	}
	if ttlFor("develop") != 15*time.Minute {
		t.Errorf("ttlFor(develop) = %v, want 15m", ttlFor("develop"))
	}
	if ttlFor("feature/foo") != time.Hour {
		t.Errorf("ttlFor(feature/foo) = %v, want 1h", ttlFor("feature/foo"))
	}
}

func TestSplitOwnerRepo(t *testing.T) {
	owner, repo := splitOwnerRepo("octocat/hello-world")
	if owner != "octocat" || repo != "hello-world" {
		t.Errorf("splitOwnerRepo(owner/repo) = (%q, %q), want (octocat, hello-world)", owner, repo)
	}

	owner, repo = splitOwnerRepo("/abs/local/path")
	if owner != "" || repo != "" {
		t.Errorf("splitOwnerRepo(local path) = (%q, %q), want (\"\", \"\")", owner, repo)
	}
}
