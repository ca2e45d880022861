package vmpool

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoCapacityError is returned by Spawn when no ready, healthy VM has
// room for another agent.
type NoCapacityError struct{}

func (e *NoCapacityError) Error() string { return "no vm has capacity for another agent" }

// Spawn assigns agentID to a VM. If the agent already has an active
// assignment, Spawn is idempotent and returns it unchanged. Otherwise
// preferredVMID is used if it has capacity, else the ready+healthy VM
// carrying the fewest agents (ties broken newest-first) is picked.
func (in *Instance) Spawn(agentID string, preferredVMID *string, task *string) (*Assignment, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if existing, err := in.activeAssignmentForAgentLocked(agentID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var vmID string
	if preferredVMID != nil {
		vm, err := in.getVMLocked(*preferredVMID)
		if err == nil && vm.Status == VMStatusReady && vm.HealthStatus == HealthStatusHealthy && vm.AgentCount < vm.MaxAgents {
			vmID = vm.VMID
		}
	}
	if vmID == "" {
		candidates, err := listVMsLocked(in, `
			WHERE status = ? AND health_status = ? AND agent_count < max_agents
			ORDER BY agent_count ASC, created_at DESC LIMIT 1`, VMStatusReady, HealthStatusHealthy)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, &NoCapacityError{}
		}
		vmID = candidates[0].VMID
	}

	assignment := &Assignment{
		AssignmentID: uuid.NewString(),
		AgentID:      agentID,
		VMID:         vmID,
		AssignedAt:   time.Now(),
		Status:       AssignmentStatusActive,
		Task:         task,
	}

	if _, err := in.db.Exec(`INSERT INTO assignments (assignment_id, agent_id, vm_id, assigned_at, status, task) VALUES (?, ?, ?, ?, ?, ?)`,
		assignment.AssignmentID, assignment.AgentID, assignment.VMID, assignment.AssignedAt.Format(time.RFC3339), assignment.Status, nullStr(task)); err != nil {
		return nil, fmt.Errorf("record assignment: %w", err)
	}

	vm, err := in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}
	newCount := vm.AgentCount + 1
	newStatus := vm.Status
	if newCount >= vm.MaxAgents {
		newStatus = VMStatusBusy
	}
	if _, err := in.db.Exec(`UPDATE vms SET agent_count=?, status=? WHERE vm_id=?`, newCount, newStatus, vmID); err != nil {
		return nil, fmt.Errorf("update vm agent count: %w", err)
	}

	in.broadcast("agent-spawned", assignment, "")
	return assignment, nil
}

// Release closes an agent's active assignment and returns its VM to
// ready if it had been busy.
func (in *Instance) Release(agentID string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	assignment, err := in.activeAssignmentForAgentLocked(agentID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return fmt.Errorf("agent %s has no active assignment", agentID)
	}

	now := time.Now()
	if _, err := in.db.Exec(`UPDATE assignments SET status=?, completed_at=? WHERE assignment_id=?`,
		AssignmentStatusCompleted, now.Format(time.RFC3339), assignment.AssignmentID); err != nil {
		return fmt.Errorf("close assignment: %w", err)
	}

	vm, err := in.getVMLocked(assignment.VMID)
	if err != nil {
		return err
	}
	newCount := vm.AgentCount - 1
	if newCount < 0 {
		newCount = 0
	}
	newStatus := vm.Status
	if vm.Status == VMStatusBusy {
		newStatus = VMStatusReady
	}
	if _, err := in.db.Exec(`UPDATE vms SET agent_count=?, status=? WHERE vm_id=?`, newCount, newStatus, assignment.VMID); err != nil {
		return fmt.Errorf("update vm agent count: %w", err)
	}

	in.broadcast("agent-released", map[string]any{"agentId": agentID, "vmId": assignment.VMID}, "")
	return nil
}

func (in *Instance) activeAssignmentForAgentLocked(agentID string) (*Assignment, error) {
	row := in.db.QueryRow(`
		SELECT assignment_id, agent_id, vm_id, assigned_at, status, completed_at, task
		FROM assignments WHERE agent_id = ? AND status = ? ORDER BY assigned_at DESC LIMIT 1`, agentID, AssignmentStatusActive)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (in *Instance) activeAssignmentsLocked(vmID string) ([]*Assignment, error) {
	rows, err := in.db.Query(`
		SELECT assignment_id, agent_id, vm_id, assigned_at, status, completed_at, task
		FROM assignments WHERE vm_id = ? AND status = ?`, vmID, AssignmentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row interface{ Scan(dest ...any) error }) (*Assignment, error) {
	var a Assignment
	var assignedAt string
	var completedAt, task sql.NullString

	if err := row.Scan(&a.AssignmentID, &a.AgentID, &a.VMID, &assignedAt, &a.Status, &completedAt, &task); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, assignedAt)
	if err != nil {
		return nil, fmt.Errorf("parse assigned_at: %w", err)
	}
	a.AssignedAt = t
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			a.CompletedAt = &t
		}
	}
	if task.Valid {
		a.Task = &task.String
	}
	return &a, nil
}
