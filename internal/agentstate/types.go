// Package agentstate implements the per-agent AgentState entity: a
// private world of checkpoints, direct messages, memory, work traces
// with escalation detection, XP/soul progression, credentials, goals,
// and heartbeat/shadow monitoring. Grounded on the per-file table
// layout of internal/memory and the upsert style of
// internal/memory/review_board.go, adapted from a shared multi-agent
// store to one private SQLite file per agent name.
package agentstate

import "time"

// Checkpoint is the singleton conversation-resume snapshot.
type Checkpoint struct {
	ConversationSummary *string   `json:"conversationSummary,omitempty"`
	Accomplishments     []string  `json:"accomplishments"`
	PendingWork         []string  `json:"pendingWork"`
	RecentContext       *string   `json:"recentContext,omitempty"`
	FilesEdited         []string  `json:"filesEdited"`
	CheckpointAt        time.Time `json:"checkpointAt"`
	CurrentTask         *string   `json:"currentTask,omitempty"`
}

// DirectMessage is one inbox entry.
type DirectMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

const (
	DMTypeStatus  = "status"
	DMTypeHandoff = "handoff"
	DMTypeNote    = "note"
	DMTypeMention = "mention"
)

// Memory is one append-only personal-knowledge entry.
type Memory struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	MemoryCategoryDiscovery = "discovery"
	MemoryCategoryDecision  = "decision"
	MemoryCategoryBlocker   = "blocker"
	MemoryCategoryLearning  = "learning"
	MemoryCategoryPattern   = "pattern"
	MemoryCategoryWarning   = "warning"
)

// WorkStep is one recorded action within a WorkTrace.
type WorkStep struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	Timestamp        time.Time `json:"timestamp"`
	Tool             string    `json:"tool"`
	Intent           string    `json:"intent"`
	Outcome          string    `json:"outcome"`
	DurationMs       int64     `json:"durationMs"`
	ContributionType *string   `json:"contributionType,omitempty"`
	KnowledgeGained  *string   `json:"knowledgeGained,omitempty"`
	EliminatedPaths  []string  `json:"eliminatedPaths"`
	DependsOn        []string  `json:"dependsOn"`
}

const (
	OutcomeFound   = "found"
	OutcomeNothing = "nothing"
	OutcomeError   = "error"
	OutcomePartial = "partial"
)

const (
	ContributionEnabling = "enabling"
	ContributionPruning  = "pruning"
	ContributionDirect   = "direct"
	ContributionMinimal  = "minimal"
)

// WorkSummary is derived when a trace completes.
type WorkSummary struct {
	TotalSteps        int     `json:"totalSteps"`
	DeadEnds          int     `json:"deadEnds"`
	ExplorationTimeMs int64   `json:"explorationTimeMs"`
	SolutionTimeMs    int64   `json:"solutionTimeMs"`
	Efficiency        float64 `json:"efficiency"`
}

// WorkTrace is one bounded work session.
type WorkTrace struct {
	SessionID   string       `json:"sessionId"`
	Task        string       `json:"task"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Summary     *WorkSummary `json:"summary,omitempty"`
	Steps       []WorkStep   `json:"steps,omitempty"`
}

// EscalationTrigger is one fired detector.
type EscalationTrigger struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Note  string `json:"note,omitempty"`
}

// Escalation is an immutable trigger record with an optional, later,
// resolution.
type Escalation struct {
	ID            string              `json:"id"`
	SessionID     string              `json:"sessionId"`
	TriggeredAt   time.Time           `json:"triggeredAt"`
	Triggers      []EscalationTrigger `json:"triggers"`
	HighestLevel  int                 `json:"highestLevel"`
	ResolvedAt    *time.Time          `json:"resolvedAt,omitempty"`
	ResolvedBy    *string             `json:"resolvedBy,omitempty"`
	ResolverAgent *string             `json:"resolverAgent,omitempty"`
	HelpfulHint   *string             `json:"helpfulHint,omitempty"`
}

const (
	ResolvedBySelf  = "self"
	ResolvedByPeer  = "peer"
	ResolvedByHuman = "human"
)

// Soul is the singleton XP/progression record.
type Soul struct {
	SoulID               string         `json:"soulId"`
	Name                 string         `json:"name"`
	Personality          *string        `json:"personality,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	TotalXP              int            `json:"totalXP"`
	Level                string         `json:"level"`
	CurrentStreak        int            `json:"currentStreak"`
	LongestStreak        int            `json:"longestStreak"`
	TasksCompleted       int            `json:"tasksCompleted"`
	TasksSuccessful      int            `json:"tasksSuccessful"`
	PeersHelped          int            `json:"peersHelped"`
	EscalationCount      int            `json:"escalationCount"`
	SelfResolvedCount    int            `json:"selfResolvedCount"`
	PeerAssistCount      int            `json:"peerAssistCount"`
	HumanEscalationCount int            `json:"humanEscalationCount"`
	Specializations      map[string]int `json:"specializations"`
	Achievements         []string       `json:"achievements"`
	Abilities            map[string]bool `json:"abilities"`
	TrustScore           float64        `json:"trustScore"`
	TransparencyScore    float64        `json:"transparencyScore"`
	TrackRecordScore     float64        `json:"trackRecordScore"`
	LastTraceID          *string        `json:"lastTraceId,omitempty"`
	RustLevel            float64        `json:"rustLevel"`
	EffectiveXPMultiplier float64       `json:"effectiveXPMultiplier"`
}

const (
	LevelNovice  = "novice"
	LevelCapable = "capable"
	LevelExpert  = "expert"
	LevelMaster  = "master"
)

type levelTier struct {
	name          string
	minXP         int
	minStreak     int
	minCompleted  int
}

var levelTiers = []levelTier{
	{LevelMaster, 2000, 10, 100},
	{LevelExpert, 500, 5, 25},
	{LevelCapable, 100, 3, 5},
	{LevelNovice, 0, 0, 0},
}

var tierAbilities = map[string]map[string]bool{
	LevelNovice:  {"canCommit": true},
	LevelCapable: {"canSpawnSubagents": true},
	LevelExpert:  {"canAccessProd": true, "canMentorPeers": true},
	LevelMaster:  {"extendedBudget": true},
}

// Credential is a key/value secret with a masked read view.
type Credential struct {
	Key           string    `json:"key"`
	Value         string    `json:"value,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	MaskedPreview string    `json:"maskedPreview"`
}

// Goal is one queued or completed objective.
type Goal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Type        string     `json:"type"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	XPReward    int        `json:"xpReward"`
	Source      string     `json:"source"`
	AssignedBy  *string    `json:"assignedBy,omitempty"`
	Context     *string    `json:"context,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Outcome     *string    `json:"outcome,omitempty"`
}

const (
	GoalStatusPending    = "pending"
	GoalStatusInProgress = "in_progress"
	GoalStatusCompleted  = "completed"
	GoalStatusFailed     = "failed"
	GoalStatusAbandoned  = "abandoned"
)

// HeartbeatEntry is one ring-buffered heartbeat log line.
type HeartbeatEntry struct {
	At time.Time `json:"at"`
}

const (
	stallThreshold   = 5 * time.Minute
	heartbeatLogCap  = 100
	streakGraceHours = 48 * time.Hour
)

// Shadow is the singleton shadow-agent takeover record.
type Shadow struct {
	ShadowAgentID *string    `json:"shadowAgentId,omitempty"`
	RegisteredAt  *time.Time `json:"registeredAt,omitempty"`
	Active        bool       `json:"active"`
	TookOverAt    *time.Time `json:"tookOverAt,omitempty"`
}

// Dashboard is the assembled per-agent status view.
type Dashboard struct {
	Soul                *Soul    `json:"soul"`
	SessionStats        any      `json:"sessionStats"`
	FlowState           string   `json:"flowState"`
	StreakStatus        string   `json:"streakStatus"`
	PendingEscalations  int      `json:"pendingEscalations"`
	LevelProgress       any      `json:"levelProgress"`
	SpecializationRanks any      `json:"specializationRanks"`
	Alerts              []string `json:"alerts"`
	Suggestions         []string `json:"suggestions"`
}

const (
	FlowStuck     = "stuck"
	FlowInFlow    = "in_flow"
	FlowAvailable = "available"
	FlowOffline   = "offline"
)
