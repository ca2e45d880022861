package coordinator

import "testing"

func TestUpsertTaskCreateThenUpdate(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	created, err := in.UpsertTask(Task{Title: "fix bug", CreatedBy: "agent-a"}, "")
	if err != nil {
		t.Fatalf("UpsertTask (create) failed: %v", err)
	}
	if created.Status != TaskStatusTodo {
		t.Errorf("Status = %q, want default %q", created.Status, TaskStatusTodo)
	}
	if created.Priority != "medium" {
		t.Errorf("Priority = %q, want default medium", created.Priority)
	}

	assignee := "agent-b"
	updated, err := in.UpsertTask(Task{ID: created.ID, Status: TaskStatusInProgress, Assignee: &assignee}, "")
	if err != nil {
		t.Fatalf("UpsertTask (update) failed: %v", err)
	}
	if updated.Status != TaskStatusInProgress {
		t.Errorf("Status after update = %q, want in-progress", updated.Status)
	}
	if updated.Title != "fix bug" {
		t.Errorf("Title should be preserved across partial update, got %q", updated.Title)
	}
	if updated.Assignee == nil || *updated.Assignee != "agent-b" {
		t.Errorf("Assignee = %v, want agent-b", updated.Assignee)
	}
}

func TestUpsertTaskUnknownIDFails(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.UpsertTask(Task{ID: "does-not-exist", Status: TaskStatusDone}, ""); err == nil {
		t.Fatal("expected error updating a task ID that was never created")
	}
}

func TestListTasksFilter(t *testing.T) {
	resetSingletonForTest()
	in, err := Get(t.TempDir())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := in.UpsertTask(Task{Title: "a", CreatedBy: "agent-a", Status: TaskStatusTodo}, ""); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}
	if _, err := in.UpsertTask(Task{Title: "b", CreatedBy: "agent-a", Status: TaskStatusDone}, ""); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	todo, err := in.ListTasks(TaskFilter{Status: TaskStatusTodo})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(todo) != 1 || todo[0].Title != "a" {
		t.Fatalf("ListTasks(status=todo) = %+v, want exactly task a", todo)
	}
}
