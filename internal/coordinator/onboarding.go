package coordinator

import (
	"log"

	"github.com/coordplane/coordplane/internal/agentstate"
)

// Onboarding is the assembled fan-out response for GET /onboard. Any
// sub-bundle may be nil when that part of the fan-out failed; only an
// unexpected error short-circuits the whole request to 500.
type Onboarding struct {
	AgentID      string              `json:"agentId"`
	Soul         any                 `json:"soul,omitempty"`
	Checkpoint   any                 `json:"checkpoint,omitempty"`
	Dashboard    any                 `json:"dashboard,omitempty"`
	Team         []*TeamMember       `json:"team"`
	SuggestedTask *SuggestedTask     `json:"suggestedTask,omitempty"`
	RecentChat   []*GroupMessage     `json:"recentChat"`
}

// TeamMember pairs a registry row with its per-agent flow status.
type TeamMember struct {
	Agent *Agent `json:"agent"`
	Flow  any    `json:"flow,omitempty"`
}

// SuggestedTask is the onboarding priority pick.
type SuggestedTask struct {
	Kind   string `json:"kind"`
	Detail any    `json:"detail,omitempty"`
	Reason string `json:"reason"`
}

// Onboard fans out to AgentState(agentID) and the Coordinator's own
// tables to assemble a single onboarding bundle. Partial failures in
// the AgentState peer degrade to a nil sub-bundle, logged but not
// fatal (dataDir is needed to reach the peer instance registry).
func (in *Instance) Onboard(dataDir, agentID string) (*Onboarding, error) {
	ob := &Onboarding{AgentID: agentID}

	peer, err := agentstate.Get(dataDir, agentID)
	if err != nil {
		log.Printf("[COORD] onboard %s: agentstate peer unavailable: %v", agentID, err)
	} else {
		if soul, err := peer.GetOrCreateSoul(); err != nil {
			log.Printf("[COORD] onboard %s: soul fan-out failed: %v", agentID, err)
		} else {
			ob.Soul = soul
		}
		if cp, err := peer.GetCheckpoint(); err != nil {
			log.Printf("[COORD] onboard %s: checkpoint fan-out failed: %v", agentID, err)
		} else {
			ob.Checkpoint = cp
		}
		if dash, err := peer.GetDashboard(); err != nil {
			log.Printf("[COORD] onboard %s: dashboard fan-out failed: %v", agentID, err)
		} else {
			ob.Dashboard = dash
		}
	}

	agents, err := in.ListAgents()
	if err != nil {
		return nil, err
	}
	team := make([]*TeamMember, 0, len(agents))
	for _, a := range agents {
		tm := &TeamMember{Agent: a}
		if p, err := agentstate.Get(dataDir, a.AgentID); err == nil {
			if flow, err := p.GetDashboard(); err == nil {
				tm.Flow = flow.FlowState
			}
		}
		team = append(team, tm)
	}
	ob.Team = team

	suggested, err := in.suggestTask(dataDir, agentID)
	if err != nil {
		log.Printf("[COORD] onboard %s: task suggestion failed: %v", agentID, err)
	} else {
		ob.SuggestedTask = suggested
	}

	recent, _, err := in.GetChat(ChatFilter{Limit: 20})
	if err != nil {
		return nil, err
	}
	ob.RecentChat = recent

	return ob, nil
}

// suggestTask implements the onboarding priority chain: resumable
// checkpoint work, then oldest open handoff, then highest-priority
// unassigned todo, then a default greeting.
func (in *Instance) suggestTask(dataDir, agentID string) (*SuggestedTask, error) {
	if peer, err := agentstate.Get(dataDir, agentID); err == nil {
		if cp, err := peer.GetCheckpoint(); err == nil && cp != nil && len(cp.PendingWork) > 0 {
			return &SuggestedTask{Kind: "resume-checkpoint", Detail: cp, Reason: "you have unfinished work in progress"}, nil
		}
	}

	handoffs, err := in.ListHandoffs(HandoffFilter{ToAgent: agentID, Status: HandoffStatusPending})
	if err != nil {
		return nil, err
	}
	if len(handoffs) > 0 {
		oldest := handoffs[len(handoffs)-1]
		return &SuggestedTask{Kind: "handoff", Detail: oldest, Reason: "an open handoff is waiting for you"}, nil
	}

	todos, err := in.ListTasks(TaskFilter{Status: TaskStatusTodo})
	if err != nil {
		return nil, err
	}
	var best *Task
	for _, t := range todos {
		if t.Assignee != nil && *t.Assignee != "" {
			continue
		}
		if best == nil || priorityRank(t.Priority) > priorityRank(best.Priority) {
			best = t
		}
	}
	if best != nil {
		return &SuggestedTask{Kind: "task", Detail: best, Reason: "highest-priority unassigned task"}, nil
	}

	return &SuggestedTask{Kind: "greeting", Reason: "introduce yourself in group chat"}, nil
}

func priorityRank(p string) int {
	switch p {
	case "critical":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}
