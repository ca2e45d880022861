package gittree

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookCommit is one commit entry in a push payload.
type WebhookCommit struct {
	SHA       string       `json:"sha"`
	Author    string       `json:"author"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	Changes   []FileChange `json:"changes,omitempty"`
}

// WebhookPush is the push-event payload the GitTree webhook accepts.
type WebhookPush struct {
	Branch  string          `json:"branch"`
	Commits []WebhookCommit `json:"commits"`
}

// HandleWebhookPush records every delivered commit, expires the
// branch's cache immediately (lazy invalidation — stale reads remain
// possible until the next refresh), and advances the branch pointer
// to the last commit in the payload.
func (in *Instance) HandleWebhookPush(push WebhookPush) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, c := range push.Commits {
		if _, err := in.db.Exec(`INSERT OR REPLACE INTO commits (sha, branch, author, message, timestamp) VALUES (?, ?, ?, ?, ?)`,
			c.SHA, push.Branch, c.Author, c.Message, c.Timestamp.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record commit %s: %w", c.SHA, err)
		}
		for _, fc := range c.Changes {
			if _, err := in.db.Exec(`INSERT INTO file_changes (id, commit_sha, path, change_type) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), c.SHA, fc.Path, fc.ChangeType); err != nil {
				return fmt.Errorf("record file change %s: %w", fc.Path, err)
			}
		}
	}

	epoch := time.Unix(0, 0).Format(time.RFC3339)
	if _, err := in.db.Exec(`UPDATE trees SET expires_at = ? WHERE tree_id = ?`, epoch, cacheKeyForBranch(push.Branch)); err != nil {
		return fmt.Errorf("expire branch cache: %w", err)
	}

	if len(push.Commits) > 0 {
		last := push.Commits[len(push.Commits)-1]
		if _, err := in.db.Exec(`
			INSERT INTO branches (name, head_sha, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET head_sha = excluded.head_sha, updated_at = excluded.updated_at`,
			push.Branch, last.SHA, time.Now().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("update branch pointer: %w", err)
		}
	}

	in.broadcast("webhook-push", map[string]any{"branch": push.Branch, "commitCount": len(push.Commits)}, "")
	return nil
}
