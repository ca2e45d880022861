package coordinator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return []string{}
	}
	return items
}

func scanAgent(row interface {
	Scan(dest ...any) error
}) (*Agent, error) {
	var a Agent
	var currentTask, workingOn sql.NullString
	var lastSeen string
	var lastChatCheck sql.NullString
	var caps, offers, needs string

	if err := row.Scan(&a.AgentID, &a.Status, &currentTask, &workingOn, &lastSeen,
		&caps, &offers, &needs, &lastChatCheck); err != nil {
		return nil, err
	}

	if currentTask.Valid {
		a.CurrentTask = &currentTask.String
	}
	if workingOn.Valid {
		a.WorkingOn = &workingOn.String
	}
	ts, err := time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	a.LastSeen = ts
	a.Capabilities = decodeList(caps)
	a.Offers = decodeList(offers)
	a.Needs = decodeList(needs)
	if lastChatCheck.Valid {
		if t, err := time.Parse(time.RFC3339, lastChatCheck.String); err == nil {
			a.LastChatCheck = &t
		}
	}
	return &a, nil
}

const agentSelectCols = `agent_id, status, current_task, working_on, last_seen, capabilities, offers, needs, last_chat_check`

// ListAgents returns non-offline agents ordered by lastSeen desc.
func (in *Instance) ListAgents() ([]*Agent, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`SELECT `+agentSelectCols+` FROM agents WHERE status != ? ORDER BY last_seen DESC`, AgentStatusOffline)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAgent returns a single agent row, or nil if it has never
// contacted the Coordinator.
func (in *Instance) GetAgent(agentID string) (*Agent, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.getAgentLocked(agentID)
}

func (in *Instance) getAgentLocked(agentID string) (*Agent, error) {
	row := in.db.QueryRow(`SELECT `+agentSelectCols+` FROM agents WHERE agent_id = ?`, agentID)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// UpsertAgent creates or updates an agent, preserving prior non-null
// fields when the incoming update supplies null (COALESCE semantics,
//). Broadcasts "agent-update" to other
// sockets on success.
func (in *Instance) UpsertAgent(update Agent, excludeTag string) (*Agent, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if update.LastSeen.IsZero() {
		update.LastSeen = time.Now()
	}
	existing, err := in.getAgentLocked(update.AgentID)
	if err != nil {
		return nil, err
	}

	status := update.Status
	if status == "" && existing != nil {
		status = existing.Status
	}
	if status == "" {
		status = AgentStatusActive
	}
	currentTask := coalesceStr(update.CurrentTask, existing, func(a *Agent) *string { return a.CurrentTask })
	workingOn := coalesceStr(update.WorkingOn, existing, func(a *Agent) *string { return a.WorkingOn })
	caps := coalesceList(update.Capabilities, existing, func(a *Agent) []string { return a.Capabilities })
	offers := coalesceList(update.Offers, existing, func(a *Agent) []string { return a.Offers })
	needs := coalesceList(update.Needs, existing, func(a *Agent) []string { return a.Needs })

	_, err = in.db.Exec(`
		INSERT INTO agents (agent_id, status, current_task, working_on, last_seen, capabilities, offers, needs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			status = excluded.status,
			current_task = excluded.current_task,
			working_on = excluded.working_on,
			last_seen = excluded.last_seen,
			capabilities = excluded.capabilities,
			offers = excluded.offers,
			needs = excluded.needs`,
		update.AgentID, status, nullableStr(currentTask), nullableStr(workingOn),
		update.LastSeen.Format(time.RFC3339), encodeList(caps), encodeList(offers), encodeList(needs),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert agent: %w", err)
	}

	result, err := in.getAgentLocked(update.AgentID)
	if err != nil {
		return nil, err
	}
	in.broadcast("agent-update", result, excludeTag)
	return result, nil
}

func coalesceStr(incoming *string, existing *Agent, get func(*Agent) *string) *string {
	if incoming != nil {
		return incoming
	}
	if existing != nil {
		return get(existing)
	}
	return nil
}

func coalesceList(incoming []string, existing *Agent, get func(*Agent) []string) []string {
	if incoming != nil {
		return incoming
	}
	if existing != nil {
		return get(existing)
	}
	return []string{}
}

func nullableStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// touchLastChatCheck advances an agent's mention-read cursor to now.
// Reading /chat or /work for an agent advances the cursor; it is kept
// in a dedicated column rather than overloading last_seen, so presence
// and mention-tracking can't clobber each other.
func (in *Instance) touchLastChatCheck(agentID string, at time.Time) error {
	res, err := in.db.Exec(`UPDATE agents SET last_chat_check = ? WHERE agent_id = ?`, at.Format(time.RFC3339), agentID)
	if err != nil {
		return fmt.Errorf("touch last_chat_check: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := in.db.Exec(`
			INSERT INTO agents (agent_id, status, last_seen, last_chat_check)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET last_chat_check = excluded.last_chat_check`,
			agentID, AgentStatusActive, at.Format(time.RFC3339), at.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("touch last_chat_check (insert): %w", err)
		}
	}
	return nil
}
