package coordinator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HandoffTransitionError signals an illegal state transition; handlers
// render it as a 4xx.
type HandoffTransitionError struct {
	Reason string
}

func (e *HandoffTransitionError) Error() string { return e.Reason }

// CreateHandoff inserts a new pending handoff.
func (in *Instance) CreateHandoff(h Handoff, excludeTag string) (*Handoff, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	h.ID = uuid.NewString()
	h.Status = HandoffStatusPending
	h.CreatedAt = time.Now()
	if h.Priority == "" {
		h.Priority = "medium"
	}

	_, err := in.db.Exec(`
		INSERT INTO handoffs (id, from_agent, to_agent, title, context, code, file_path, next_steps, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.FromAgent, nullableStr(h.ToAgent), h.Title, nullableStr(h.Context), nullableStr(h.Code),
		nullableStr(h.FilePath), encodeList(h.NextSteps), h.Priority, h.Status, h.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create handoff: %w", err)
	}

	result, err := in.getHandoffLocked(h.ID)
	if err != nil {
		return nil, err
	}
	in.broadcast("handoff-update", result, excludeTag)
	return result, nil
}

// ClaimHandoff transitions pending -> claimed. Fails if the handoff is
// targeted to a different agent, or is not pending
// scenario 3).
func (in *Instance) ClaimHandoff(id, agentID string, excludeTag string) (*Handoff, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	h, err := in.getHandoffLocked(id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("handoff not found: %s", id)
	}
	if h.Status != HandoffStatusPending {
		return nil, &HandoffTransitionError{Reason: fmt.Sprintf("handoff %s is %s, not pending", id, h.Status)}
	}
	if h.ToAgent != nil && *h.ToAgent != agentID {
		return nil, &HandoffTransitionError{Reason: fmt.Sprintf("Handoff is targeted to %s", *h.ToAgent)}
	}

	now := time.Now()
	_, err = in.db.Exec(`UPDATE handoffs SET status=?, claimed_by=?, claimed_at=? WHERE id=?`,
		HandoffStatusClaimed, agentID, now.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("claim handoff: %w", err)
	}

	result, err := in.getHandoffLocked(id)
	if err != nil {
		return nil, err
	}
	in.broadcast("handoff-update", result, excludeTag)
	return result, nil
}

// CompleteHandoff transitions claimed -> completed. Only the claimer
// may complete it.
func (in *Instance) CompleteHandoff(id, agentID string, excludeTag string) (*Handoff, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	h, err := in.getHandoffLocked(id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("handoff not found: %s", id)
	}
	if h.Status != HandoffStatusClaimed {
		return nil, &HandoffTransitionError{Reason: fmt.Sprintf("handoff %s is %s, not claimed", id, h.Status)}
	}
	if h.ClaimedBy == nil || *h.ClaimedBy != agentID {
		claimant := "unknown"
		if h.ClaimedBy != nil {
			claimant = *h.ClaimedBy
		}
		return nil, &HandoffTransitionError{Reason: fmt.Sprintf("Handoff is claimed by %s", claimant)}
	}

	now := time.Now()
	_, err = in.db.Exec(`UPDATE handoffs SET status=?, completed_at=? WHERE id=?`,
		HandoffStatusCompleted, now.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("complete handoff: %w", err)
	}

	result, err := in.getHandoffLocked(id)
	if err != nil {
		return nil, err
	}
	in.broadcast("handoff-update", result, excludeTag)
	return result, nil
}

// HandoffFilter narrows ListHandoffs.
type HandoffFilter struct {
	ToAgent   string
	FromAgent string
	Status    string
}

// ListHandoffs filters by toAgent (matches targeted-or-open when the
// stored to_agent is NULL), fromAgent, status.
func (in *Instance) ListHandoffs(f HandoffFilter) ([]*Handoff, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT id, from_agent, to_agent, title, context, code, file_path, next_steps, priority, status, claimed_by, created_at, claimed_at, completed_at FROM handoffs WHERE 1=1`
	var args []any
	if f.ToAgent != "" {
		query += ` AND (to_agent = ? OR to_agent IS NULL)`
		args = append(args, f.ToAgent)
	}
	if f.FromAgent != "" {
		query += ` AND from_agent = ?`
		args = append(args, f.FromAgent)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	var out []*Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (in *Instance) getHandoffLocked(id string) (*Handoff, error) {
	row := in.db.QueryRow(`SELECT id, from_agent, to_agent, title, context, code, file_path, next_steps, priority, status, claimed_by, created_at, claimed_at, completed_at FROM handoffs WHERE id = ?`, id)
	h, err := scanHandoff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff: %w", err)
	}
	return h, nil
}

func scanHandoff(row interface{ Scan(dest ...any) error }) (*Handoff, error) {
	var h Handoff
	var toAgent, context, code, filePath, claimedBy sql.NullString
	var nextSteps, createdAt string
	var claimedAt, completedAt sql.NullString

	if err := row.Scan(&h.ID, &h.FromAgent, &toAgent, &h.Title, &context, &code, &filePath,
		&nextSteps, &h.Priority, &h.Status, &claimedBy, &createdAt, &claimedAt, &completedAt); err != nil {
		return nil, err
	}
	if toAgent.Valid {
		h.ToAgent = &toAgent.String
	}
	if context.Valid {
		h.Context = &context.String
	}
	if code.Valid {
		h.Code = &code.String
	}
	if filePath.Valid {
		h.FilePath = &filePath.String
	}
	if claimedBy.Valid {
		h.ClaimedBy = &claimedBy.String
	}
	h.NextSteps = decodeList(nextSteps)

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	h.CreatedAt = t
	if claimedAt.Valid {
		if t, err := time.Parse(time.RFC3339, claimedAt.String); err == nil {
			h.ClaimedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			h.CompletedAt = &t
		}
	}
	return &h, nil
}
