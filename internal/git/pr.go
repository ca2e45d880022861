package git

import (
	"fmt"
	"strings"
)

// PRMetrics summarizes the automation cost behind a generated PR.
type PRMetrics struct {
	TokensUsed  int
	TimeMinutes int
}

// PRInfo holds the fields needed to render a fleet-generated pull
// request body.
type PRInfo struct {
	Title   string
	Summary string
	TaskIDs []string
	Agents  []string
	Metrics PRMetrics
}

// GenerateBody renders the standard team-coop PR body: a summary
// section, the task ids closed, the agents that contributed, and the
// token/time cost of producing it.
func (pr PRInfo) GenerateBody() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", pr.Summary)

	if len(pr.TaskIDs) > 0 {
		b.WriteString("## Tasks\n\n")
		for _, id := range pr.TaskIDs {
			fmt.Fprintf(&b, "- %s\n", id)
		}
		b.WriteString("\n")
	}

	if len(pr.Agents) > 0 {
		b.WriteString("## Agents\n\n")
		for _, agent := range pr.Agents {
			fmt.Fprintf(&b, "- %s\n", agent)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Cost\n\n%s tokens, %d min\n\n", commaInt(pr.Metrics.TokensUsed), pr.Metrics.TimeMinutes)
	b.WriteString("_Generated by team-coop._\n")

	return b.String()
}

func commaInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
