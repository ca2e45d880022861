package vmpool

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provision records a new VM in provisioning status. InstanceID is the
// cloud provider's handle; the pool assigns its own VMID.
func (in *Instance) Provision(instanceID, region, vmSize string, metadata map[string]any) (*VM, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	vm := &VM{
		VMID:         uuid.NewString(),
		InstanceID:   instanceID,
		Status:       VMStatusProvisioning,
		Region:       region,
		VMSize:       vmSize,
		CreatedAt:    time.Now(),
		HealthStatus: HealthStatusUnknown,
		MaxAgents:    capacityFor(vmSize),
		Metadata:     metadata,
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = in.db.Exec(`
		INSERT INTO vms (vm_id, instance_id, status, region, vm_size, created_at, health_status, agent_count, max_agents, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		vm.VMID, vm.InstanceID, vm.Status, vm.Region, vm.VMSize, vm.CreatedAt.Format(time.RFC3339), vm.HealthStatus, vm.MaxAgents, string(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("provision vm: %w", err)
	}

	in.broadcast("vm-provisioned", vm, "")
	return vm, nil
}

// Ready transitions a provisioning or booting VM to ready with a
// healthy status, recording public/private addressing.
func (in *Instance) Ready(vmID string, publicIP, privateIP *string) (*VM, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	vm, err := in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}
	if vm.Status != VMStatusProvisioning && vm.Status != VMStatusBooting {
		return nil, fmt.Errorf("vm %s cannot become ready from status %s", vmID, vm.Status)
	}

	now := time.Now()
	_, err = in.db.Exec(`UPDATE vms SET status=?, public_ip=?, private_ip=?, ready_at=?, health_status=?, last_health_check=? WHERE vm_id=?`,
		VMStatusReady, nullStr(publicIP), nullStr(privateIP), now.Format(time.RFC3339), HealthStatusHealthy, now.Format(time.RFC3339), vmID)
	if err != nil {
		return nil, fmt.Errorf("mark vm ready: %w", err)
	}

	vm, err = in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}
	in.broadcast("vm-ready", vm, "")
	return vm, nil
}

// Health appends a health-check log entry and updates the VM's
// current health status. Error is non-nil detail for an unhealthy
// report.
func (in *Instance) Health(vmID, healthStatus string, detail *string) (*VM, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	vm, err := in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := in.db.Exec(`INSERT INTO health_checks (id, vm_id, checked_at, health_status, detail) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), vmID, now.Format(time.RFC3339), healthStatus, nullStr(detail)); err != nil {
		return nil, fmt.Errorf("record health check: %w", err)
	}

	status := vm.Status
	if healthStatus == HealthStatusUnhealthy && (status == VMStatusReady || status == VMStatusBusy) {
		status = VMStatusError
	}
	if _, err := in.db.Exec(`UPDATE vms SET health_status=?, last_health_check=?, status=?, error_message=? WHERE vm_id=?`,
		healthStatus, now.Format(time.RFC3339), status, nullStr(detail), vmID); err != nil {
		return nil, fmt.Errorf("update vm health: %w", err)
	}

	vm, err = in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}
	in.broadcast("vm-health", vm, "")
	return vm, nil
}

// TerminateConflictError signals an attempt to terminate a VM with
// active assignments without force.
type TerminateConflictError struct {
	VMID              string
	ActiveAssignments int
}

func (e *TerminateConflictError) Error() string {
	return fmt.Sprintf("vm %s has %d active assignments", e.VMID, e.ActiveAssignments)
}

// Terminate moves a VM to terminated. Active assignments block the
// call unless force is set, in which case they are marked failed.
func (in *Instance) Terminate(vmID string, force bool) (*VM, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	vm, err := in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}

	active, err := in.activeAssignmentsLocked(vmID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 && !force {
		return nil, &TerminateConflictError{VMID: vmID, ActiveAssignments: len(active)}
	}

	now := time.Now()
	for _, a := range active {
		if _, err := in.db.Exec(`UPDATE assignments SET status=?, completed_at=? WHERE assignment_id=?`,
			AssignmentStatusFailed, now.Format(time.RFC3339), a.AssignmentID); err != nil {
			return nil, fmt.Errorf("fail assignment %s: %w", a.AssignmentID, err)
		}
	}

	if _, err := in.db.Exec(`UPDATE vms SET status=?, agent_count=0 WHERE vm_id=?`, VMStatusTerminated, vmID); err != nil {
		return nil, fmt.Errorf("terminate vm: %w", err)
	}

	vm, err = in.getVMLocked(vmID)
	if err != nil {
		return nil, err
	}
	in.broadcast("vm-terminated", vm, "")
	return vm, nil
}

func (in *Instance) getVMLocked(vmID string) (*VM, error) {
	row := in.db.QueryRow(`
		SELECT vm_id, instance_id, status, public_ip, private_ip, region, vm_size, created_at, ready_at,
		       last_health_check, health_status, error_message, agent_count, max_agents, metadata
		FROM vms WHERE vm_id = ?`, vmID)
	return scanVM(row)
}

func scanVM(row interface{ Scan(dest ...any) error }) (*VM, error) {
	var vm VM
	var publicIP, privateIP, readyAt, lastHealthCheck, errMsg, metaJSON sql.NullString
	var createdAt string

	err := row.Scan(&vm.VMID, &vm.InstanceID, &vm.Status, &publicIP, &privateIP, &vm.Region, &vm.VMSize,
		&createdAt, &readyAt, &lastHealthCheck, &vm.HealthStatus, &errMsg, &vm.AgentCount, &vm.MaxAgents, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vm not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan vm: %w", err)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	vm.CreatedAt = t

	if publicIP.Valid {
		vm.PublicIP = &publicIP.String
	}
	if privateIP.Valid {
		vm.PrivateIP = &privateIP.String
	}
	if errMsg.Valid {
		vm.ErrorMessage = &errMsg.String
	}
	if readyAt.Valid {
		if t, err := time.Parse(time.RFC3339, readyAt.String); err == nil {
			vm.ReadyAt = &t
		}
	}
	if lastHealthCheck.Valid {
		if t, err := time.Parse(time.RFC3339, lastHealthCheck.String); err == nil {
			vm.LastHealthCheck = &t
		}
	}
	if metaJSON.Valid && metaJSON.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metaJSON.String), &m); err == nil {
			vm.Metadata = m
		}
	}
	return &vm, nil
}

func listVMsLocked(in *Instance, where string, args ...any) ([]*VM, error) {
	rows, err := in.db.Query(`
		SELECT vm_id, instance_id, status, public_ip, private_ip, region, vm_size, created_at, ready_at,
		       last_health_check, health_status, error_message, agent_count, max_agents, metadata
		FROM vms `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list vms: %w", err)
	}
	defer rows.Close()

	var out []*VM
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, vm)
	}
	return out, rows.Err()
}

// ListVMs returns every VM regardless of status, for dashboards and
// the scale recommender.
func (in *Instance) ListVMs() ([]*VM, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return listVMsLocked(in, `ORDER BY created_at DESC`)
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
