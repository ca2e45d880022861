package agentstate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddMemory appends one personal-knowledge entry.
func (in *Instance) AddMemory(category, content string, tags []string) (*Memory, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	m := &Memory{
		ID:        uuid.NewString(),
		Category:  category,
		Content:   content,
		Tags:      tags,
		CreatedAt: time.Now(),
	}
	_, err := in.db.Exec(`INSERT INTO memory (id, category, content, tags, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Category, m.Content, encodeStrList(m.Tags), m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("add memory: %w", err)
	}
	return m, nil
}

// MemoryFilter narrows SearchMemory: category is an exact match,
// query is a case-insensitive substring matched against content and
// the JSON-encoded tags blob.
type MemoryFilter struct {
	Category string
	Query    string
}

// SearchMemory returns matching entries, most-recent-first, capped at
// 50.
func (in *Instance) SearchMemory(f MemoryFilter) ([]*Memory, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT id, category, content, tags, created_at FROM memory WHERE 1=1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Query != "" {
		query += ` AND (content LIKE ? OR tags LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC LIMIT 50`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		var m Memory
		var tags, createdAt string
		if err := rows.Scan(&m.ID, &m.Category, &m.Content, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Tags = decodeStrList(tags)
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		m.CreatedAt = t
		out = append(out, &m)
	}
	return out, rows.Err()
}
