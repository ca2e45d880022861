package agentstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateSoul returns the singleton soul row, creating a fresh
// one with default identity fields on first read.
func (in *Instance) GetOrCreateSoul() (*Soul, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	s, err := in.getSoulLocked()
	if err != nil {
		return nil, err
	}
	if s != nil {
		return in.withDerived(s), nil
	}

	s = &Soul{
		SoulID:           uuid.NewString(),
		Name:             in.AgentID,
		CreatedAt:        time.Now(),
		Level:            LevelNovice,
		Specializations:  map[string]int{},
		Achievements:     []string{},
		Abilities:        map[string]bool{"canCommit": true},
		TrustScore:       0.5,
		TransparencyScore: 0.5,
		TrackRecordScore: 0.5,
	}
	if err := in.insertSoulLocked(s); err != nil {
		return nil, err
	}
	return in.withDerived(s), nil
}

func (in *Instance) insertSoulLocked(s *Soul) error {
	specs, _ := json.Marshal(s.Specializations)
	achievements, _ := json.Marshal(s.Achievements)
	abilities, _ := json.Marshal(s.Abilities)
	_, err := in.db.Exec(`
		INSERT INTO soul (id, soul_id, name, personality, created_at, total_xp, level, current_streak, longest_streak,
			tasks_completed, tasks_successful, peers_helped, escalation_count, self_resolved_count, peer_assist_count,
			human_escalation_count, specializations, achievements, abilities, trust_score, transparency_score,
			track_record_score, last_trace_id)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SoulID, s.Name, nullStr(s.Personality), s.CreatedAt.Format(time.RFC3339), s.TotalXP, s.Level,
		s.CurrentStreak, s.LongestStreak, s.TasksCompleted, s.TasksSuccessful, s.PeersHelped, s.EscalationCount,
		s.SelfResolvedCount, s.PeerAssistCount, s.HumanEscalationCount, string(specs), string(achievements),
		string(abilities), s.TrustScore, s.TransparencyScore, s.TrackRecordScore, nullStr(s.LastTraceID))
	if err != nil {
		return fmt.Errorf("insert soul: %w", err)
	}
	return nil
}

func (in *Instance) getSoulLocked() (*Soul, error) {
	row := in.db.QueryRow(`
		SELECT soul_id, name, personality, created_at, total_xp, level, current_streak, longest_streak,
			tasks_completed, tasks_successful, peers_helped, escalation_count, self_resolved_count, peer_assist_count,
			human_escalation_count, specializations, achievements, abilities, trust_score, transparency_score,
			track_record_score, last_trace_id
		FROM soul WHERE id = 1`)

	var s Soul
	var personality, lastTraceID sql.NullString
	var createdAt, specs, achievements, abilities string

	err := row.Scan(&s.SoulID, &s.Name, &personality, &createdAt, &s.TotalXP, &s.Level, &s.CurrentStreak,
		&s.LongestStreak, &s.TasksCompleted, &s.TasksSuccessful, &s.PeersHelped, &s.EscalationCount,
		&s.SelfResolvedCount, &s.PeerAssistCount, &s.HumanEscalationCount, &specs, &achievements, &abilities,
		&s.TrustScore, &s.TransparencyScore, &s.TrackRecordScore, &lastTraceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get soul: %w", err)
	}

	if personality.Valid {
		s.Personality = &personality.String
	}
	if lastTraceID.Valid {
		s.LastTraceID = &lastTraceID.String
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	s.CreatedAt = t
	_ = json.Unmarshal([]byte(specs), &s.Specializations)
	_ = json.Unmarshal([]byte(achievements), &s.Achievements)
	_ = json.Unmarshal([]byte(abilities), &s.Abilities)
	if s.Specializations == nil {
		s.Specializations = map[string]int{}
	}
	if s.Abilities == nil {
		s.Abilities = map[string]bool{}
	}
	return &s, nil
}

func (in *Instance) saveSoulLocked(s *Soul) error {
	specs, _ := json.Marshal(s.Specializations)
	achievements, _ := json.Marshal(s.Achievements)
	abilities, _ := json.Marshal(s.Abilities)
	_, err := in.db.Exec(`
		UPDATE soul SET total_xp=?, level=?, current_streak=?, longest_streak=?, tasks_completed=?, tasks_successful=?,
			peers_helped=?, escalation_count=?, self_resolved_count=?, peer_assist_count=?, human_escalation_count=?,
			specializations=?, achievements=?, abilities=?, trust_score=?, transparency_score=?, track_record_score=?,
			last_trace_id=?
		WHERE id = 1`,
		s.TotalXP, s.Level, s.CurrentStreak, s.LongestStreak, s.TasksCompleted, s.TasksSuccessful, s.PeersHelped,
		s.EscalationCount, s.SelfResolvedCount, s.PeerAssistCount, s.HumanEscalationCount, string(specs),
		string(achievements), string(abilities), s.TrustScore, s.TransparencyScore, s.TrackRecordScore, nullStr(s.LastTraceID))
	if err != nil {
		return fmt.Errorf("save soul: %w", err)
	}
	return nil
}

// withDerived fills rustLevel and effectiveXPMultiplier from
// lastTraceId's completion age; both are computed at read time, never
// stored.
func (in *Instance) withDerived(s *Soul) *Soul {
	s.RustLevel = 0
	if s.LastTraceID != nil {
		if trace, err := in.getTraceLocked(*s.LastTraceID); err == nil && trace != nil && trace.CompletedAt != nil {
			s.RustLevel = rustLevelFor(time.Since(*trace.CompletedAt))
		}
	}
	s.EffectiveXPMultiplier = 1 - 0.5*s.RustLevel
	return s
}

func rustLevelFor(since time.Duration) float64 {
	switch {
	case since < 7*24*time.Hour:
		return 0
	case since < 30*24*time.Hour:
		return 0.2
	case since < 90*24*time.Hour:
		return 0.4
	default:
		return 0.6
	}
}

// AddXP increments totalXP and recomputes level.
func (in *Instance) AddXP(amount int) (*Soul, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	s, err := in.getSoulLocked()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("soul not initialized for %s", in.AgentID)
	}
	s.TotalXP += amount
	recomputeLevel(s)
	if err := in.saveSoulLocked(s); err != nil {
		return nil, err
	}
	return in.withDerived(s), nil
}

// recomputeLevel sets s.Level to the highest tier whose XP, streak,
// and completed-task thresholds are all met, and unions in every
// tier's abilities up to and including the new level.
func recomputeLevel(s *Soul) {
	newLevel := LevelNovice
	for _, tier := range levelTiers {
		if s.TotalXP >= tier.minXP && s.LongestStreak >= tier.minStreak && s.TasksCompleted >= tier.minCompleted {
			newLevel = tier.name
			break
		}
	}
	if newLevel == s.Level {
		return
	}
	s.Level = newLevel
	if s.Abilities == nil {
		s.Abilities = map[string]bool{}
	}
	for _, tier := range levelTiers {
		if tierRank(tier.name) > tierRank(newLevel) {
			continue
		}
		for ability := range tierAbilities[tier.name] {
			s.Abilities[ability] = true
		}
	}
}

func tierRank(level string) int {
	switch level {
	case LevelNovice:
		return 0
	case LevelCapable:
		return 1
	case LevelExpert:
		return 2
	case LevelMaster:
		return 3
	default:
		return -1
	}
}

// TraceUpdateResult is the response to update-from-trace.
type TraceUpdateResult struct {
	Soul       *Soul `json:"soul"`
	XPAwarded  int   `json:"xpAwarded"`
	SpecXP     int   `json:"specializationXP,omitempty"`
}

// UpdateFromTrace computes XP earned by a completed trace, awards a
// specialization bonus, updates the streak, and recomputes
// trustScore.
func (in *Instance) UpdateFromTrace(sessionID string, domain string, requiredHumanEscalation bool) (*TraceUpdateResult, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	trace, err := in.getTraceLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if trace == nil || trace.Summary == nil {
		return nil, fmt.Errorf("trace %s has no summary yet", sessionID)
	}

	escalations, err := in.listEscalationsForSessionLocked(sessionID)
	if err != nil {
		return nil, err
	}

	base := 10
	switch {
	case trace.Summary.Efficiency > 0.7:
		base += 15
	case trace.Summary.Efficiency > 0.5:
		base += 5
	}

	selfResolved := true
	for _, e := range escalations {
		if e.ResolvedBy == nil || (*e.ResolvedBy != ResolvedBySelf) {
			selfResolved = false
			break
		}
	}
	if selfResolved && len(escalations) > 0 {
		base += 10
	}
	if len(escalations) == 0 {
		base += 5
	}

	s, err := in.getSoulLocked()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("soul not initialized for %s", in.AgentID)
	}

	s.TotalXP += base
	specXP := 0
	if domain != "" {
		specXP = base / 2
		if s.Specializations == nil {
			s.Specializations = map[string]int{}
		}
		s.Specializations[domain] += specXP
	}

	if requiredHumanEscalation {
		s.CurrentStreak = 0
		s.HumanEscalationCount++
	} else {
		s.CurrentStreak++
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
		}
	}

	s.TasksCompleted++
	if !requiredHumanEscalation {
		s.TasksSuccessful++
	}
	s.TrustScore = trustScoreFor(s)
	s.LastTraceID = &sessionID
	recomputeLevel(s)

	if err := in.saveSoulLocked(s); err != nil {
		return nil, err
	}
	return &TraceUpdateResult{Soul: in.withDerived(s), XPAwarded: base, SpecXP: specXP}, nil
}

// trustScoreFor recomputes the weighted trust composite, capped at 1.
func trustScoreFor(s *Soul) float64 {
	successRate := 0.0
	if s.TasksCompleted > 0 {
		successRate = float64(s.TasksSuccessful) / float64(s.TasksCompleted)
	}
	selfResolutionRate := 0.0
	if s.EscalationCount > 0 {
		selfResolutionRate = float64(s.SelfResolvedCount) / float64(s.EscalationCount)
	} else {
		selfResolutionRate = 1
	}
	avoidanceRate := 0.0
	if s.TasksCompleted > 0 {
		avoidanceRate = 1 - float64(s.HumanEscalationCount)/float64(s.TasksCompleted)
	} else {
		avoidanceRate = 1
	}

	score := 0.5*successRate + 0.3*selfResolutionRate + 0.2*avoidanceRate
	if score > 1 {
		score = 1
	}
	return score
}

func (in *Instance) listEscalationsForSessionLocked(sessionID string) ([]*Escalation, error) {
	rows, err := in.db.Query(`SELECT id, session_id, triggered_at, triggers, highest_level, resolved_at, resolved_by, resolver_agent, helpful_hint FROM escalations WHERE session_id=?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
