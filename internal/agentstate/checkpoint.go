package agentstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func encodeStrList(s []string) string {
	if s == nil {
		s = []string{}
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func decodeStrList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

// GetCheckpoint returns the singleton checkpoint row, or nil if one
// has never been saved.
func (in *Instance) GetCheckpoint() (*Checkpoint, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.getCheckpointLocked()
}

func (in *Instance) getCheckpointLocked() (*Checkpoint, error) {
	row := in.db.QueryRow(`SELECT conversation_summary, accomplishments, pending_work, recent_context, files_edited, checkpoint_at FROM checkpoint WHERE id = 1`)

	var c Checkpoint
	var summary, context sql.NullString
	var accomplishments, pendingWork, filesEdited, checkpointAt string

	err := row.Scan(&summary, &accomplishments, &pendingWork, &context, &filesEdited, &checkpointAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	if summary.Valid {
		c.ConversationSummary = &summary.String
	}
	if context.Valid {
		c.RecentContext = &context.String
	}
	c.Accomplishments = decodeStrList(accomplishments)
	c.PendingWork = decodeStrList(pendingWork)
	c.FilesEdited = decodeStrList(filesEdited)
	t, err := time.Parse(time.RFC3339, checkpointAt)
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint_at: %w", err)
	}
	c.CheckpointAt = t
	return &c, nil
}

// SaveCheckpoint upserts the singleton row, COALESCEing non-null
// incoming fields over whatever already exists.
func (in *Instance) SaveCheckpoint(c Checkpoint, excludeTag string) (*Checkpoint, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	existing, err := in.getCheckpointLocked()
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if c.ConversationSummary == nil {
			c.ConversationSummary = existing.ConversationSummary
		}
		if c.RecentContext == nil {
			c.RecentContext = existing.RecentContext
		}
		if c.Accomplishments == nil {
			c.Accomplishments = existing.Accomplishments
		}
		if c.PendingWork == nil {
			c.PendingWork = existing.PendingWork
		}
		if c.FilesEdited == nil {
			c.FilesEdited = existing.FilesEdited
		}
	}
	c.CheckpointAt = time.Now()

	_, err = in.db.Exec(`
		INSERT INTO checkpoint (id, conversation_summary, accomplishments, pending_work, recent_context, files_edited, checkpoint_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_summary = excluded.conversation_summary,
			accomplishments = excluded.accomplishments,
			pending_work = excluded.pending_work,
			recent_context = excluded.recent_context,
			files_edited = excluded.files_edited,
			checkpoint_at = excluded.checkpoint_at`,
		nullStr(c.ConversationSummary), encodeStrList(c.Accomplishments), encodeStrList(c.PendingWork),
		nullStr(c.RecentContext), encodeStrList(c.FilesEdited), c.CheckpointAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	result, err := in.getCheckpointLocked()
	if err != nil {
		return nil, err
	}
	in.broadcast("checkpoint-update", result, excludeTag)
	return result, nil
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
