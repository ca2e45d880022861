package coordinator

import (
	"testing"
	"time"
)

func TestUpsertAgentCreateThenPartialUpdate(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	created, err := in.UpsertAgent(Agent{AgentID: "agent-a", Status: AgentStatusActive, Capabilities: []string{"go", "sql"}}, "")
	if err != nil {
		t.Fatalf("UpsertAgent (create) failed: %v", err)
	}
	if len(created.Capabilities) != 2 {
		t.Fatalf("Capabilities = %v, want 2 entries", created.Capabilities)
	}

	task := "task-123"
	updated, err := in.UpsertAgent(Agent{AgentID: "agent-a", CurrentTask: &task}, "")
	if err != nil {
		t.Fatalf("UpsertAgent (partial update) failed: %v", err)
	}
	if updated.CurrentTask == nil || *updated.CurrentTask != "task-123" {
		t.Errorf("CurrentTask = %v, want task-123", updated.CurrentTask)
	}
	if len(updated.Capabilities) != 2 {
		t.Errorf("Capabilities should be preserved when omitted from the update, got %v", updated.Capabilities)
	}
	if updated.Status != AgentStatusActive {
		t.Errorf("Status should be preserved when omitted from the update, got %q", updated.Status)
	}
}

func TestListAgentsExcludesOffline(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.UpsertAgent(Agent{AgentID: "agent-active", Status: AgentStatusActive}, ""); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}
	if _, err := in.UpsertAgent(Agent{AgentID: "agent-offline", Status: AgentStatusOffline}, ""); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}

	agents, err := in.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	for _, a := range agents {
		if a.AgentID == "agent-offline" {
			t.Error("ListAgents should exclude offline agents")
		}
	}
}

func TestTouchLastChatCheckInsertsWhenAgentUnknown(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if err := in.touchLastChatCheck("new-agent", time.Now()); err != nil {
		t.Fatalf("touchLastChatCheck failed: %v", err)
	}

	a, err := in.GetAgent("new-agent")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if a == nil {
		t.Fatal("GetAgent returned nil, want a row created by touchLastChatCheck")
	}
	if a.LastChatCheck == nil {
		t.Error("LastChatCheck should be set after touchLastChatCheck")
	}
}
