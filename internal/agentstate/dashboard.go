package agentstate

import (
	"fmt"
	"time"
)

// GetDashboard assembles the per-agent status view: soul, today's
// session stats, derived flow state, streak status, pending
// escalations, level progress, specialization ranks, alerts, and
// suggestions.
func (in *Instance) GetDashboard() (*Dashboard, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	soul, err := in.getSoulLocked()
	if err != nil {
		return nil, err
	}
	if soul == nil {
		return nil, fmt.Errorf("soul not initialized for %s", in.AgentID)
	}
	soul = in.withDerived(soul)

	sessionStats, err := in.todaysSessionStatsLocked()
	if err != nil {
		return nil, err
	}

	flow, err := in.flowStateLocked()
	if err != nil {
		return nil, err
	}

	streakStatus := streakStatusFor(soul, in)

	pending, err := in.pendingEscalationCountLocked()
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Soul:                soul,
		SessionStats:        sessionStats,
		FlowState:           flow,
		StreakStatus:        streakStatus,
		PendingEscalations:  pending,
		LevelProgress:       levelProgressFor(soul),
		SpecializationRanks: specializationRanksFor(soul),
		Alerts:              alertsFor(soul, flow, pending),
		Suggestions:         suggestionsFor(soul, flow, pending),
	}
	return d, nil
}

func (in *Instance) todaysSessionStatsLocked() (map[string]any, error) {
	since := time.Now().Truncate(24 * time.Hour).Format(time.RFC3339)
	row := in.db.QueryRow(`SELECT COUNT(*) FROM work_traces WHERE started_at >= ?`, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return nil, fmt.Errorf("count today's traces: %w", err)
	}
	return map[string]any{"tracesToday": count}, nil
}

// flowStateLocked derives flow from the last 15 minutes of steps on
// any still-open trace.
func (in *Instance) flowStateLocked() (string, error) {
	hasUnresolved, err := in.hasUnresolvedEscalationLocked()
	if err != nil {
		return "", err
	}
	if hasUnresolved {
		return FlowStuck, nil
	}

	cutoff := time.Now().Add(-15 * time.Minute).Format(time.RFC3339)
	rows, err := in.db.Query(`
		SELECT ws.outcome FROM work_steps ws
		JOIN work_traces wt ON wt.session_id = ws.session_id
		WHERE wt.completed_at IS NULL AND ws.timestamp >= ?`, cutoff)
	if err != nil {
		return "", fmt.Errorf("flow state query: %w", err)
	}
	defer rows.Close()

	total, productive := 0, 0
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return "", fmt.Errorf("scan flow outcome: %w", err)
		}
		total++
		if outcome == OutcomeFound || outcome == OutcomePartial {
			productive++
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if total >= 5 && productive >= 5 {
		return FlowInFlow, nil
	}

	row := in.db.QueryRow(`SELECT COUNT(*) FROM work_traces WHERE started_at >= ?`, time.Now().Add(-time.Hour).Format(time.RFC3339))
	var recentStarts int
	if err := row.Scan(&recentStarts); err != nil {
		return "", fmt.Errorf("count recent trace starts: %w", err)
	}
	if recentStarts > 0 {
		return FlowAvailable, nil
	}
	return FlowOffline, nil
}

func (in *Instance) hasUnresolvedEscalationLocked() (bool, error) {
	row := in.db.QueryRow(`SELECT COUNT(*) FROM escalations WHERE resolved_at IS NULL`)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count unresolved escalations: %w", err)
	}
	return count > 0, nil
}

func (in *Instance) pendingEscalationCountLocked() (int, error) {
	row := in.db.QueryRow(`SELECT COUNT(*) FROM escalations WHERE resolved_at IS NULL`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending escalations: %w", err)
	}
	return count, nil
}

// streakStatusFor reports whether the current streak is healthy, at
// risk of expiring (less than 8h of the 48h grace window left), or
// already expired. It uses the most recent heartbeat as the
// last-activity signal.
func streakStatusFor(s *Soul, in *Instance) string {
	if s.CurrentStreak == 0 {
		return "none"
	}
	status, err := in.GetHeartbeatStatus()
	if err != nil || status.LastHeartbeat == nil {
		return "unknown"
	}
	elapsed := time.Since(*status.LastHeartbeat)
	remaining := streakGraceHours - elapsed
	switch {
	case remaining <= 0:
		return "expired"
	case remaining < 8*time.Hour:
		return "at risk"
	default:
		return "healthy"
	}
}

func levelProgressFor(s *Soul) map[string]any {
	var next *levelTier
	for i := len(levelTiers) - 1; i >= 0; i-- {
		if levelTiers[i].name == s.Level && i > 0 {
			t := levelTiers[i-1]
			next = &t
			break
		}
	}
	progress := map[string]any{"level": s.Level, "totalXP": s.TotalXP}
	if next != nil {
		progress["nextLevel"] = next.name
		progress["xpNeeded"] = max0(next.minXP - s.TotalXP)
		progress["streakNeeded"] = max0(next.minStreak - s.LongestStreak)
		progress["tasksNeeded"] = max0(next.minCompleted - s.TasksCompleted)
	}
	return progress
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func specializationRanksFor(s *Soul) map[string]int {
	return s.Specializations
}

func alertsFor(s *Soul, flow string, pending int) []string {
	var alerts []string
	if flow == FlowStuck {
		alerts = append(alerts, "unresolved escalation blocking progress")
	}
	if pending > 2 {
		alerts = append(alerts, "multiple pending escalations need attention")
	}
	if s.TrustScore < 0.3 {
		alerts = append(alerts, "trust score is low")
	}
	return alerts
}

func suggestionsFor(s *Soul, flow string, pending int) []string {
	var suggestions []string
	if flow == FlowStuck {
		suggestions = append(suggestions, "resolve the open escalation before starting new work")
	}
	if flow == FlowOffline {
		suggestions = append(suggestions, "start a new work trace to resume activity")
	}
	if s.RustLevel > 0.2 {
		suggestions = append(suggestions, "recent inactivity is reducing effective XP gains")
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "keep going")
	}
	return suggestions
}
