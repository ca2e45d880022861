package coordinator

import (
	"fmt"
	"strings"
)

var accomplishmentKeywords = []string{
	"✅", "shipped", "completed", "built", "added", "fixed", "implemented", "deployed",
}

// SessionResume is a pure aggregation over Coordinator tables for
// GET /session-resume.
type SessionResume struct {
	Participants     []string  `json:"participants"`
	Accomplishments  []string  `json:"accomplishments"`
	PendingHandoffs  []*Handoff `json:"pendingHandoffs"`
	InProgressTasks  []*Task    `json:"inProgressTasks"`
	ActiveClaims     []*Claim   `json:"activeClaims"`
	QuickActions     []string   `json:"quickActions"`
	Summary          string     `json:"summary"`
}

// SessionResume assembles the hand-back bundle for a freshly resumed
// session: who was talking, what shipped, what's outstanding.
func (in *Instance) SessionResume() (*SessionResume, error) {
	recent, _, err := in.GetChat(ChatFilter{Limit: 500})
	if err != nil {
		return nil, err
	}

	participants := dedupAuthors(recent, 100)
	accomplishments := scanAccomplishments(recent, 10)

	handoffs, err := in.ListHandoffs(HandoffFilter{Status: HandoffStatusPending})
	if err != nil {
		return nil, err
	}
	if len(handoffs) > 5 {
		handoffs = handoffs[:5]
	}

	inProgress, err := in.ListTasks(TaskFilter{Status: TaskStatusInProgress})
	if err != nil {
		return nil, err
	}
	if len(inProgress) > 5 {
		inProgress = inProgress[:5]
	}

	claims, err := in.ListClaims(ClaimFilter{})
	if err != nil {
		return nil, err
	}
	if len(claims) > 10 {
		claims = claims[:10]
	}

	quick := quickActions(len(handoffs), len(inProgress), len(claims))
	summary := fmt.Sprintf("%d participants, %d recent accomplishments, %d pending handoffs, %d tasks in progress, %d active claims.",
		len(participants), len(accomplishments), len(handoffs), len(inProgress), len(claims))

	return &SessionResume{
		Participants:    participants,
		Accomplishments: accomplishments,
		PendingHandoffs: handoffs,
		InProgressTasks: inProgress,
		ActiveClaims:    claims,
		QuickActions:    quick,
		Summary:         summary,
	}, nil
}

// dedupAuthors returns the distinct authors of msgs, most recent
// first, capped at max.
func dedupAuthors(msgs []*GroupMessage, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for i := len(msgs) - 1; i >= 0 && len(out) < max; i-- {
		a := msgs[i].Author
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// scanAccomplishments finds messages containing one of the
// accomplishment keywords, takes the first line capped at 150 chars,
// deduplicates, and caps the result at max.
func scanAccomplishments(msgs []*GroupMessage, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for i := len(msgs) - 1; i >= 0 && len(out) < max; i-- {
		text := msgs[i].Message
		lower := strings.ToLower(text)
		matched := false
		for _, kw := range accomplishmentKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		line := text
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		if len(line) > 150 {
			line = line[:150]
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}

func quickActions(handoffs, inProgress, claims int) []string {
	var actions []string
	if handoffs > 0 {
		actions = append(actions, "review pending handoffs")
	}
	if inProgress > 0 {
		actions = append(actions, "check in-progress tasks")
	}
	if claims > 0 {
		actions = append(actions, "check active claims for stale holders")
	}
	if len(actions) == 0 {
		actions = append(actions, "post in group chat to get oriented")
	}
	return actions
}
