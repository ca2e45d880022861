package agentstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartTrace begins a new work session. The caller may supply
// sessionID; an empty string generates one.
func (in *Instance) StartTrace(sessionID, task string) (*WorkTrace, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	wt := &WorkTrace{SessionID: sessionID, Task: task, StartedAt: time.Now()}
	_, err := in.db.Exec(`INSERT INTO work_traces (session_id, task, started_at) VALUES (?, ?, ?)`,
		wt.SessionID, wt.Task, wt.StartedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("start trace: %w", err)
	}
	return wt, nil
}

// StepResult is the response to POST /trace/{id}/step: the appended
// step plus any escalation that fired as a result.
type StepResult struct {
	Step           *WorkStep   `json:"step"`
	Escalation     *Escalation `json:"escalation,omitempty"`
	Recommendation string      `json:"recommendation"`
}

// AppendStep records one WorkStep and evaluates every escalation
// trigger against the session's full step history.
func (in *Instance) AppendStep(sessionID string, step WorkStep) (*StepResult, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	step.ID = uuid.NewString()
	step.SessionID = sessionID
	step.Timestamp = time.Now()

	_, err := in.db.Exec(`
		INSERT INTO work_steps (id, session_id, timestamp, tool, intent, outcome, duration_ms, contribution_type, knowledge_gained, eliminated_paths, depends_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, sessionID, step.Timestamp.Format(time.RFC3339), step.Tool, step.Intent, step.Outcome,
		step.DurationMs, nullStr(step.ContributionType), nullStr(step.KnowledgeGained),
		encodeStrList(step.EliminatedPaths), encodeStrList(step.DependsOn))
	if err != nil {
		return nil, fmt.Errorf("append step: %w", err)
	}

	steps, err := in.listStepsLocked(sessionID)
	if err != nil {
		return nil, err
	}
	trace, err := in.getTraceLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if trace == nil {
		return nil, fmt.Errorf("trace not found: %s", sessionID)
	}

	triggers := evaluateTriggers(steps, trace.StartedAt)
	result := &StepResult{Step: &step, Recommendation: recommendationFor(0)}

	if len(triggers) > 0 {
		highest := 0
		for _, t := range triggers {
			if t.Level > highest {
				highest = t.Level
			}
		}
		esc := &Escalation{
			ID:           uuid.NewString(),
			SessionID:    sessionID,
			TriggeredAt:  time.Now(),
			Triggers:     triggers,
			HighestLevel: highest,
		}
		triggersJSON, _ := json.Marshal(esc.Triggers)
		_, err := in.db.Exec(`INSERT INTO escalations (id, session_id, triggered_at, triggers, highest_level) VALUES (?, ?, ?, ?, ?)`,
			esc.ID, esc.SessionID, esc.TriggeredAt.Format(time.RFC3339), string(triggersJSON), esc.HighestLevel)
		if err != nil {
			return nil, fmt.Errorf("record escalation: %w", err)
		}
		result.Escalation = esc
		result.Recommendation = recommendationFor(highest)
	}

	return result, nil
}

// recommendationFor maps an escalation's highest level to the
// caller-facing action string.
func recommendationFor(level int) string {
	switch level {
	case 1:
		return "consider pausing"
	case 2:
		return "PAUSE"
	case 3:
		return "ESCALATE"
	default:
		return "continue"
	}
}

// evaluateTriggers runs all five escalation detectors against the
// full step history of a session.
func evaluateTriggers(steps []WorkStep, startedAt time.Time) []EscalationTrigger {
	var triggers []EscalationTrigger

	if t := stuckLoopTrigger(steps); t != nil {
		triggers = append(triggers, *t)
	}
	if t := repeatedFailuresTrigger(steps); t != nil {
		triggers = append(triggers, *t)
	}
	if t := errorAccumulationTrigger(steps); t != nil {
		triggers = append(triggers, *t)
	}
	if t := timeExceededTrigger(startedAt); t != nil {
		triggers = append(triggers, *t)
	}
	if t := lowEfficiencyTrigger(steps); t != nil {
		triggers = append(triggers, *t)
	}
	return triggers
}

// stuckLoopTrigger (level 2): the current step's tool appears >= 3
// times in the last 5 steps with outcome in {nothing, partial}.
func stuckLoopTrigger(steps []WorkStep) *EscalationTrigger {
	if len(steps) == 0 {
		return nil
	}
	current := steps[len(steps)-1]
	window := steps
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	count := 0
	for _, s := range window {
		if s.Tool == current.Tool && (s.Outcome == OutcomeNothing || s.Outcome == OutcomePartial) {
			count++
		}
	}
	if count >= 3 {
		return &EscalationTrigger{Name: "stuck_loop", Level: 2, Note: fmt.Sprintf("%q repeated %d times in the last 5 steps", current.Tool, count)}
	}
	return nil
}

// repeatedFailuresTrigger (level 1): session-wide nothing outcomes >= 3.
func repeatedFailuresTrigger(steps []WorkStep) *EscalationTrigger {
	count := 0
	for _, s := range steps {
		if s.Outcome == OutcomeNothing {
			count++
		}
	}
	if count >= 3 {
		return &EscalationTrigger{Name: "repeated_failures", Level: 1, Note: fmt.Sprintf("%d nothing outcomes this session", count)}
	}
	return nil
}

// errorAccumulationTrigger (level 2): session-wide error outcomes >= 2.
func errorAccumulationTrigger(steps []WorkStep) *EscalationTrigger {
	count := 0
	for _, s := range steps {
		if s.Outcome == OutcomeError {
			count++
		}
	}
	if count >= 2 {
		return &EscalationTrigger{Name: "error_accumulation", Level: 2, Note: fmt.Sprintf("%d error outcomes this session", count)}
	}
	return nil
}

// timeExceededTrigger (level 1): now - startedAt > 10 minutes.
func timeExceededTrigger(startedAt time.Time) *EscalationTrigger {
	if time.Since(startedAt) > 10*time.Minute {
		return &EscalationTrigger{Name: "time_exceeded", Level: 1, Note: "session has run over 10 minutes"}
	}
	return nil
}

// lowEfficiencyTrigger (level 1): after >= 5 steps, the fraction with
// outcome in {nothing, error} or contributionType=minimal exceeds 0.6.
func lowEfficiencyTrigger(steps []WorkStep) *EscalationTrigger {
	if len(steps) < 5 {
		return nil
	}
	low := 0
	for _, s := range steps {
		if s.Outcome == OutcomeNothing || s.Outcome == OutcomeError {
			low++
		} else if s.ContributionType != nil && *s.ContributionType == ContributionMinimal {
			low++
		}
	}
	if float64(low)/float64(len(steps)) > 0.6 {
		return &EscalationTrigger{Name: "low_efficiency", Level: 1, Note: fmt.Sprintf("%d/%d steps were low-value", low, len(steps))}
	}
	return nil
}

// CompleteTrace derives the WorkSummary and marks the session done.
func (in *Instance) CompleteTrace(sessionID string) (*WorkTrace, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	trace, err := in.getTraceLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if trace == nil {
		return nil, fmt.Errorf("trace not found: %s", sessionID)
	}
	steps, err := in.listStepsLocked(sessionID)
	if err != nil {
		return nil, err
	}

	summary := deriveSummary(steps)
	summaryJSON, _ := json.Marshal(summary)
	now := time.Now()
	_, err = in.db.Exec(`UPDATE work_traces SET completed_at=?, summary=? WHERE session_id=?`,
		now.Format(time.RFC3339), string(summaryJSON), sessionID)
	if err != nil {
		return nil, fmt.Errorf("complete trace: %w", err)
	}

	trace.CompletedAt = &now
	trace.Summary = summary
	return trace, nil
}

func deriveSummary(steps []WorkStep) *WorkSummary {
	s := &WorkSummary{TotalSteps: len(steps)}
	for _, step := range steps {
		s.ExplorationTimeMs += step.DurationMs
		if step.Outcome == OutcomeNothing || step.Outcome == OutcomeError {
			s.DeadEnds++
		}
		if step.Outcome == OutcomeFound || (step.ContributionType != nil && *step.ContributionType == ContributionDirect) {
			s.SolutionTimeMs += step.DurationMs
		}
	}
	if s.ExplorationTimeMs > 0 {
		s.Efficiency = float64(s.SolutionTimeMs) / float64(s.ExplorationTimeMs)
	}
	return s
}

// ResolveEscalation fills the resolution fields on an immutable
// escalation record.
func (in *Instance) ResolveEscalation(id, resolvedBy, resolverAgent, helpfulHint string) (*Escalation, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	_, err := in.db.Exec(`UPDATE escalations SET resolved_at=?, resolved_by=?, resolver_agent=?, helpful_hint=? WHERE id=?`,
		now.Format(time.RFC3339), resolvedBy, nullIfEmpty(resolverAgent), nullIfEmpty(helpfulHint), id)
	if err != nil {
		return nil, fmt.Errorf("resolve escalation: %w", err)
	}
	return in.getEscalationLocked(id)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (in *Instance) getEscalationLocked(id string) (*Escalation, error) {
	row := in.db.QueryRow(`SELECT id, session_id, triggered_at, triggers, highest_level, resolved_at, resolved_by, resolver_agent, helpful_hint FROM escalations WHERE id=?`, id)
	return scanEscalation(row)
}

func scanEscalation(row interface{ Scan(dest ...any) error }) (*Escalation, error) {
	var e Escalation
	var triggersJSON, triggeredAt string
	var resolvedAt, resolvedBy, resolverAgent, helpfulHint sql.NullString

	if err := row.Scan(&e.ID, &e.SessionID, &triggeredAt, &triggersJSON, &e.HighestLevel,
		&resolvedAt, &resolvedBy, &resolverAgent, &helpfulHint); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, triggeredAt)
	if err != nil {
		return nil, fmt.Errorf("parse triggered_at: %w", err)
	}
	e.TriggeredAt = t
	if err := json.Unmarshal([]byte(triggersJSON), &e.Triggers); err != nil {
		e.Triggers = nil
	}
	if resolvedAt.Valid {
		if t, err := time.Parse(time.RFC3339, resolvedAt.String); err == nil {
			e.ResolvedAt = &t
		}
	}
	if resolvedBy.Valid {
		e.ResolvedBy = &resolvedBy.String
	}
	if resolverAgent.Valid {
		e.ResolverAgent = &resolverAgent.String
	}
	if helpfulHint.Valid {
		e.HelpfulHint = &helpfulHint.String
	}
	return &e, nil
}

func (in *Instance) getTraceLocked(sessionID string) (*WorkTrace, error) {
	row := in.db.QueryRow(`SELECT session_id, task, started_at, completed_at, summary FROM work_traces WHERE session_id=?`, sessionID)
	var wt WorkTrace
	var startedAt string
	var completedAt, summaryJSON sql.NullString
	err := row.Scan(&wt.SessionID, &wt.Task, &startedAt, &completedAt, &summaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	wt.StartedAt = t
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			wt.CompletedAt = &t
		}
	}
	if summaryJSON.Valid {
		var s WorkSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &s); err == nil {
			wt.Summary = &s
		}
	}
	return &wt, nil
}

func (in *Instance) listStepsLocked(sessionID string) ([]WorkStep, error) {
	rows, err := in.db.Query(`SELECT id, session_id, timestamp, tool, intent, outcome, duration_ms, contribution_type, knowledge_gained, eliminated_paths, depends_on FROM work_steps WHERE session_id=? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []WorkStep
	for rows.Next() {
		var s WorkStep
		var ts string
		var contributionType, knowledgeGained sql.NullString
		var eliminatedPaths, dependsOn string
		if err := rows.Scan(&s.ID, &s.SessionID, &ts, &s.Tool, &s.Intent, &s.Outcome, &s.DurationMs,
			&contributionType, &knowledgeGained, &eliminatedPaths, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse step timestamp: %w", err)
		}
		s.Timestamp = t
		if contributionType.Valid {
			s.ContributionType = &contributionType.String
		}
		if knowledgeGained.Valid {
			s.KnowledgeGained = &knowledgeGained.String
		}
		s.EliminatedPaths = decodeStrList(eliminatedPaths)
		s.DependsOn = decodeStrList(dependsOn)
		out = append(out, s)
	}
	return out, rows.Err()
}
