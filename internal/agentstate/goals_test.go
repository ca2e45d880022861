package agentstate

import "testing"

func TestCreateAndListGoals(t *testing.T) {
	in, err := Get(t.TempDir(), "test-agent-goals")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	g, err := in.CreateGoal(Goal{Title: "fix bug", Type: "task", Priority: 1, Source: "coordinator"})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	if g.ID == "" {
		t.Fatal("CreateGoal did not assign an ID")
	}
	if g.Status != "pending" {
		t.Errorf("Status = %q, want pending", g.Status)
	}

	goals, err := in.ListGoals(GoalFilter{Status: "pending"})
	if err != nil {
		t.Fatalf("ListGoals failed: %v", err)
	}
	if len(goals) != 1 || goals[0].ID != g.ID {
		t.Fatalf("ListGoals = %v, want exactly the created goal", goals)
	}
}

func TestGoalTransitions(t *testing.T) {
	in, err := Get(t.TempDir(), "test-agent-goal-transitions")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	g, err := in.CreateGoal(Goal{Title: "ship feature", Type: "task", Source: "coordinator"})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	started, err := in.StartGoal(g.ID)
	if err != nil {
		t.Fatalf("StartGoal failed: %v", err)
	}
	if started.Status != "in_progress" {
		t.Errorf("Status after start = %q, want in_progress", started.Status)
	}
	if started.StartedAt == nil {
		t.Error("StartedAt not set after StartGoal")
	}

	completed, err := in.CompleteGoal(g.ID, "shipped")
	if err != nil {
		t.Fatalf("CompleteGoal failed: %v", err)
	}
	if completed.Status != "completed" {
		t.Errorf("Status after complete = %q, want completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Error("CompletedAt not set after CompleteGoal")
	}
}

func TestDeleteGoal(t *testing.T) {
	in, err := Get(t.TempDir(), "test-agent-goal-delete")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	g, err := in.CreateGoal(Goal{Title: "throwaway", Type: "task", Source: "coordinator"})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	if err := in.DeleteGoal(g.ID); err != nil {
		t.Fatalf("DeleteGoal failed: %v", err)
	}

	goals, err := in.ListGoals(GoalFilter{})
	if err != nil {
		t.Fatalf("ListGoals failed: %v", err)
	}
	for _, remaining := range goals {
		if remaining.ID == g.ID {
			t.Fatalf("goal %s still present after DeleteGoal", g.ID)
		}
	}
}
