package gittree

import (
	"testing"
	"time"
)

func TestWebhookPushThenListCommits(t *testing.T) {
	in, err := Get(t.TempDir(), "octocat/hello-world")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	push := WebhookPush{
		Branch: "main",
		Commits: []WebhookCommit{
			{SHA: "aaa111", Author: "alice", Message: "first", Timestamp: time.Now().Add(-time.Minute)},
			{SHA: "bbb222", Author: "bob", Message: "second", Timestamp: time.Now(), Changes: []FileChange{
				{Path: "README.md", ChangeType: ChangeTypeModified},
			}},
		},
	}
	if err := in.HandleWebhookPush(push); err != nil {
		t.Fatalf("HandleWebhookPush failed: %v", err)
	}

	commits, err := in.ListCommits("main", 10)
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("ListCommits returned %d commits, want 2", len(commits))
	}
	if commits[0].SHA != "bbb222" {
		t.Errorf("ListCommits[0].SHA = %q, want bbb222 (newest first)", commits[0].SHA)
	}
	if commits[1].SHA != "aaa111" {
		t.Errorf("ListCommits[1].SHA = %q, want aaa111", commits[1].SHA)
	}
}

func TestWebhookPushAdvancesBranchPointer(t *testing.T) {
	in, err := Get(t.TempDir(), "octocat/pointer-test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	push := WebhookPush{
		Branch: "develop",
		Commits: []WebhookCommit{
			{SHA: "c1", Author: "alice", Message: "m1", Timestamp: time.Now().Add(-time.Hour)},
			{SHA: "c2", Author: "alice", Message: "m2", Timestamp: time.Now()},
		},
	}
	if err := in.HandleWebhookPush(push); err != nil {
		t.Fatalf("HandleWebhookPush failed: %v", err)
	}

	var headSHA string
	row := in.db.QueryRow(`SELECT head_sha FROM branches WHERE name = ?`, "develop")
	if err := row.Scan(&headSHA); err != nil {
		t.Fatalf("querying branch pointer failed: %v", err)
	}
	if headSHA != "c2" {
		t.Errorf("branch head = %q, want c2 (last commit in payload)", headSHA)
	}
}

func TestListCommitsLimit(t *testing.T) {
	in, err := Get(t.TempDir(), "octocat/limit-test")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var commits []WebhookCommit
	for i := 0; i < 5; i++ {
		commits = append(commits, WebhookCommit{
			SHA:       string(rune('a' + i)),
			Author:    "alice",
			Message:   "m",
			Timestamp: time.Now().Add(time.Duration(i) * time.Minute),
		})
	}
	if err := in.HandleWebhookPush(WebhookPush{Branch: "main", Commits: commits}); err != nil {
		t.Fatalf("HandleWebhookPush failed: %v", err)
	}

	got, err := in.ListCommits("main", 2)
	if err != nil {
		t.Fatalf("ListCommits failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListCommits with limit=2 returned %d, want 2", len(got))
	}
}
