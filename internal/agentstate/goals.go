package agentstate

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateGoal enqueues a new goal.
func (in *Instance) CreateGoal(g Goal) (*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	g.ID = uuid.NewString()
	g.Status = GoalStatusPending
	g.CreatedAt = time.Now()

	_, err := in.db.Exec(`
		INSERT INTO goals (id, title, description, type, priority, status, xp_reward, source, assigned_by, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, nullStr(g.Description), g.Type, g.Priority, g.Status, g.XPReward, g.Source,
		nullStr(g.AssignedBy), nullStr(g.Context), g.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return in.getGoalLocked(g.ID)
}

// GoalFilter narrows ListGoals.
type GoalFilter struct {
	Status string
}

// ListGoals returns goals ordered by (priority DESC, createdAt ASC),
// matching priority-queue pop order.
func (in *Instance) ListGoals(f GoalFilter) ([]*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT id, title, description, type, priority, status, xp_reward, source, assigned_by, context, created_at, started_at, completed_at, outcome FROM goals WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []*Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (in *Instance) getGoalLocked(id string) (*Goal, error) {
	row := in.db.QueryRow(`SELECT id, title, description, type, priority, status, xp_reward, source, assigned_by, context, created_at, started_at, completed_at, outcome FROM goals WHERE id=?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// StartGoal transitions pending -> in_progress.
func (in *Instance) StartGoal(id string) (*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	_, err := in.db.Exec(`UPDATE goals SET status=?, started_at=? WHERE id=?`, GoalStatusInProgress, now.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("start goal: %w", err)
	}
	return in.getGoalLocked(id)
}

// CompleteGoal marks a goal done, increments the soul's completed/
// successful counters, and adds xpReward to totalXP.
func (in *Instance) CompleteGoal(id, outcome string) (*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	goal, err := in.getGoalLocked(id)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, fmt.Errorf("goal not found: %s", id)
	}

	now := time.Now()
	_, err = in.db.Exec(`UPDATE goals SET status=?, completed_at=?, outcome=? WHERE id=?`,
		GoalStatusCompleted, now.Format(time.RFC3339), nullIfEmpty(outcome), id)
	if err != nil {
		return nil, fmt.Errorf("complete goal: %w", err)
	}

	s, err := in.getSoulLocked()
	if err == nil && s != nil {
		s.TasksCompleted++
		s.TasksSuccessful++
		s.TotalXP += goal.XPReward
		recomputeLevel(s)
		if err := in.saveSoulLocked(s); err != nil {
			return nil, err
		}
	}

	return in.getGoalLocked(id)
}

// FailGoal counts the attempt without counting it as a success.
func (in *Instance) FailGoal(id, outcome string) (*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	_, err := in.db.Exec(`UPDATE goals SET status=?, completed_at=?, outcome=? WHERE id=?`,
		GoalStatusFailed, now.Format(time.RFC3339), nullIfEmpty(outcome), id)
	if err != nil {
		return nil, fmt.Errorf("fail goal: %w", err)
	}

	s, err := in.getSoulLocked()
	if err == nil && s != nil {
		s.TasksCompleted++
		recomputeLevel(s)
		if err := in.saveSoulLocked(s); err != nil {
			return nil, err
		}
	}

	return in.getGoalLocked(id)
}

// AbandonGoal is a sink transition with no soul side-effects.
func (in *Instance) AbandonGoal(id string) (*Goal, error) {
	return in.sinkTransition(id, GoalStatusAbandoned)
}

func (in *Instance) sinkTransition(id, status string) (*Goal, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, err := in.db.Exec(`UPDATE goals SET status=? WHERE id=?`, status, id); err != nil {
		return nil, fmt.Errorf("transition goal: %w", err)
	}
	return in.getGoalLocked(id)
}

// DeleteGoal removes a goal entirely.
func (in *Instance) DeleteGoal(id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, err := in.db.Exec(`DELETE FROM goals WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func scanGoal(row interface{ Scan(dest ...any) error }) (*Goal, error) {
	var g Goal
	var description, assignedBy, context, startedAt, completedAt, outcome sql.NullString
	var createdAt string

	if err := row.Scan(&g.ID, &g.Title, &description, &g.Type, &g.Priority, &g.Status, &g.XPReward, &g.Source,
		&assignedBy, &context, &createdAt, &startedAt, &completedAt, &outcome); err != nil {
		return nil, err
	}
	if description.Valid {
		g.Description = &description.String
	}
	if assignedBy.Valid {
		g.AssignedBy = &assignedBy.String
	}
	if context.Valid {
		g.Context = &context.String
	}
	if outcome.Valid {
		g.Outcome = &outcome.String
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	g.CreatedAt = t
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			g.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			g.CompletedAt = &t
		}
	}
	return &g, nil
}
