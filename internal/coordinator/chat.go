package coordinator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// mentionPattern matches "@agentId" for the specific agentId being
// checked, or any of the broadcast mentions @all/@everyone/@team,
// case-insensitively and word-boundary terminated.
func mentionPattern(agentID string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(agentID) + `\b|@all\b|@everyone\b|@team\b`)
}

// PostChat appends a group chat message and broadcasts it, matching
// the Coordinator's "chat" WebSocket event and POST /chat.
func (in *Instance) PostChat(author, authorType, message string, excludeTag string) (*GroupMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	msg := &GroupMessage{
		ID:         uuid.NewString(),
		Author:     author,
		AuthorType: authorType,
		Message:    message,
		Timestamp:  time.Now(),
		Reactions:  []Reaction{},
	}

	_, err := in.db.Exec(`
		INSERT INTO messages (id, author, author_type, message, timestamp, reactions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Author, msg.AuthorType, msg.Message, msg.Timestamp.Format(time.RFC3339), encodeReactions(msg.Reactions))
	if err != nil {
		return nil, fmt.Errorf("post chat message: %w", err)
	}

	in.broadcast("chat", msg, excludeTag)
	return msg, nil
}

func encodeReactions(r []Reaction) string {
	if r == nil {
		r = []Reaction{}
	}
	data, _ := json.Marshal(r)
	return string(data)
}

// ChatFilter narrows GetChat's result set .
type ChatFilter struct {
	Limit   int
	Since   time.Time
	AgentID string
	InboxOnly bool
}

// GetChat returns recent messages in chronological order and, when
// AgentID is set, the pending mentions for that agent. Reading with an
// AgentID set advances that agent's lastChatCheck cursor to now.
func (in *Instance) GetChat(f ChatFilter) ([]*GroupMessage, []*GroupMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, author, author_type, message, timestamp, reactions FROM messages WHERE 1=1`
	var args []any
	if !f.Since.IsZero() {
		query += ` AND timestamp > ?`
		args = append(args, f.Since.Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query chat: %w", err)
	}
	defer rows.Close()

	var recent []*GroupMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, nil, err
		}
		recent = append(recent, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	// restore chronological order
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	if f.AgentID == "" {
		return recent, nil, nil
	}

	mentions, err := in.pendingMentionsLocked(f.AgentID)
	if err != nil {
		return nil, nil, err
	}

	if err := in.touchLastChatCheck(f.AgentID, time.Now()); err != nil {
		return nil, nil, err
	}

	if f.InboxOnly {
		return mentions, mentions, nil
	}
	return recent, mentions, nil
}

// pendingMentionsLocked computes messages authored by someone other
// than agentID whose text mentions agentID (or @all/@everyone/@team)
// and were posted after agentID's lastChatCheck cursor. Caller must
// hold in.mu.
func (in *Instance) pendingMentionsLocked(agentID string) ([]*GroupMessage, error) {
	agent, err := in.getAgentLocked(agentID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, author, author_type, message, timestamp, reactions FROM messages WHERE author != ?`
	args := []any{agentID}
	if agent != nil && agent.LastChatCheck != nil {
		query += ` AND timestamp > ?`
		args = append(args, agent.LastChatCheck.Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	pat := mentionPattern(agentID)
	var out []*GroupMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		if pat.MatchString(m.Message) {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func scanMessage(rows *sql.Rows) (*GroupMessage, error) {
	var m GroupMessage
	var ts, reactions string
	if err := rows.Scan(&m.ID, &m.Author, &m.AuthorType, &m.Message, &ts, &reactions); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("parse message timestamp: %w", err)
	}
	m.Timestamp = t
	m.Reactions = decodeReactions(reactions)
	return &m, nil
}

func decodeReactions(raw string) []Reaction {
	if raw == "" {
		return []Reaction{}
	}
	var out []Reaction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []Reaction{}
	}
	return out
}
