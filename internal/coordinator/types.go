// Package coordinator implements the singleton Coordinator entity:
// the agent registry, group chat, tasks, zones, claims, handoffs, and
// the onboarding/session-resume aggregations built on top of them.
// It is grounded on the store-per-concern layout of
// internal/memory (one file per table family) and the upsert/filter
// query style of internal/memory/tasks.go, adapted to the
// single-instance, single SQLite file the Coordinator owns.
package coordinator

import "time"

// Name is the Coordinator's fixed singleton name.
const Name = "main"

const claimStaleAfter = 30 * time.Minute

// Agent is the registry row for one fleet agent.
type Agent struct {
	AgentID       string     `json:"agentId"`
	Status        string     `json:"status"`
	CurrentTask   *string    `json:"currentTask,omitempty"`
	WorkingOn     *string    `json:"workingOn,omitempty"`
	LastSeen      time.Time  `json:"lastSeen"`
	Capabilities  []string   `json:"capabilities"`
	Offers        []string   `json:"offers"`
	Needs         []string   `json:"needs"`
	LastChatCheck *time.Time `json:"-"`
}

const (
	AgentStatusActive  = "active"
	AgentStatusIdle    = "idle"
	AgentStatusWaiting = "waiting"
	AgentStatusOffline = "offline"
)

// Reaction is one emoji reaction attached to a GroupMessage.
type Reaction struct {
	Emoji string    `json:"emoji"`
	By    string    `json:"by"`
	At    time.Time `json:"at"`
}

// GroupMessage is one append-only chat entry.
type GroupMessage struct {
	ID         string     `json:"id"`
	Author     string     `json:"author"`
	AuthorType string     `json:"authorType"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Reactions  []Reaction `json:"reactions"`
}

const (
	AuthorTypeAgent  = "agent"
	AuthorTypeHuman  = "human"
	AuthorTypeSystem = "system"
)

// Task is a unit of fleet work.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status"`
	Assignee    *string   `json:"assignee,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	Priority    string    `json:"priority"`
	Tags        []string  `json:"tags"`
	Files       []string  `json:"files"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"
	TaskStatusBlocked    = "blocked"
)

// Zone is an advisory directory-prefix ownership record.
type Zone struct {
	ZoneID      string    `json:"zoneId"`
	Path        string    `json:"path"`
	Owner       string    `json:"owner"`
	Description *string   `json:"description,omitempty"`
	ClaimedAt   time.Time `json:"claimedAt"`
}

// Claim is an at-most-one-non-stale-holder advisory interest.
// Stale is derived, never stored.
type Claim struct {
	What        string    `json:"what"`
	By          string    `json:"by"`
	Description *string   `json:"description,omitempty"`
	Since       time.Time `json:"since"`
	Stale       bool      `json:"stale"`
}

// Handoff is a transferable work artifact.
type Handoff struct {
	ID          string     `json:"id"`
	FromAgent   string     `json:"fromAgent"`
	ToAgent     *string    `json:"toAgent,omitempty"`
	Title       string     `json:"title"`
	Context     *string    `json:"context,omitempty"`
	Code        *string    `json:"code,omitempty"`
	FilePath    *string    `json:"filePath,omitempty"`
	NextSteps   []string   `json:"nextSteps"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	ClaimedBy   *string    `json:"claimedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

const (
	HandoffStatusPending   = "pending"
	HandoffStatusClaimed   = "claimed"
	HandoffStatusCompleted = "completed"
)
