package agentstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SendDirectMessage appends one inbox entry.
func (in *Instance) SendDirectMessage(from, msgType, message string, excludeTag string) (*DirectMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	m := &DirectMessage{
		ID:        uuid.NewString(),
		From:      from,
		Type:      msgType,
		Message:   message,
		Timestamp: time.Now(),
	}
	_, err := in.db.Exec(`INSERT INTO direct_messages (id, from_agent, type, message, timestamp, read) VALUES (?, ?, ?, ?, ?, 0)`,
		m.ID, m.From, m.Type, m.Message, m.Timestamp.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("send direct message: %w", err)
	}
	in.broadcast("direct-message", m, excludeTag)
	return m, nil
}

// DirectMessageFilter narrows ListDirectMessages.
type DirectMessageFilter struct {
	UnreadOnly bool
}

// ListDirectMessages returns inbox entries newest first.
func (in *Instance) ListDirectMessages(f DirectMessageFilter) ([]*DirectMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT id, from_agent, type, message, timestamp, read FROM direct_messages WHERE 1=1`
	if f.UnreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := in.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	defer rows.Close()

	var out []*DirectMessage
	for rows.Next() {
		var m DirectMessage
		var ts string
		var read int
		if err := rows.Scan(&m.ID, &m.From, &m.Type, &m.Message, &ts, &read); err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
		m.Read = read != 0
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkRead flips the read flag for the given message ids.
func (in *Instance) MarkRead(messageIDs []string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(messageIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(messageIDs))
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE direct_messages SET read = 1 WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := in.db.Exec(query, args...); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
