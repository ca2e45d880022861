package vmpool

import (
	"fmt"
	"time"
)

// armSweep schedules the recurring health sweep. Unlike the
// single-shot alarms used by ResourceLock and AgentState, VMPool
// re-arms itself at the end of every run so the sweep repeats every
// healthCheckInterval until the process exits.
func (in *Instance) armSweep() {
	in.alarm.Set(time.Now().Add(in.healthCheckInterval), func() {
		in.mu.Lock()
		if err := in.runSweepLocked(); err != nil {
			fmt.Printf("[VMPOOL] sweep failed: %v\n", err)
		}
		in.mu.Unlock()
		in.armSweep()
	})
}

// runSweepLocked marks stale provisioning/booting VMs as errored,
// flags VMs that have gone quiet as unresponsive, and purges old
// health-check and inactive-assignment rows. Caller must hold in.mu.
func (in *Instance) runSweepLocked() error {
	now := time.Now()

	booting, err := listVMsLocked(in, `WHERE status IN (?, ?)`, VMStatusProvisioning, VMStatusBooting)
	if err != nil {
		return err
	}
	for _, vm := range booting {
		if now.Sub(vm.CreatedAt) > in.vmBootTimeout {
			msg := fmt.Sprintf("boot timeout exceeded (%s)", in.vmBootTimeout)
			if _, err := in.db.Exec(`UPDATE vms SET status=?, error_message=? WHERE vm_id=?`, VMStatusError, msg, vm.VMID); err != nil {
				return fmt.Errorf("mark vm %s errored: %w", vm.VMID, err)
			}
			in.broadcast("vm-error", map[string]any{"vmId": vm.VMID, "reason": msg}, "")
		}
	}

	live, err := listVMsLocked(in, `WHERE status IN (?, ?)`, VMStatusReady, VMStatusBusy)
	if err != nil {
		return err
	}
	unresponsiveAfter := time.Duration(unresponsiveMultiplier) * in.healthCheckInterval
	for _, vm := range live {
		last := vm.CreatedAt
		if vm.LastHealthCheck != nil {
			last = *vm.LastHealthCheck
		}
		if now.Sub(last) > unresponsiveAfter && vm.HealthStatus != HealthStatusUnresponsive {
			if _, err := in.db.Exec(`UPDATE vms SET health_status=? WHERE vm_id=?`, HealthStatusUnresponsive, vm.VMID); err != nil {
				return fmt.Errorf("mark vm %s unresponsive: %w", vm.VMID, err)
			}
			in.broadcast("vm-unresponsive", map[string]any{"vmId": vm.VMID}, "")
		}
	}

	cutoff := now.Add(-purgeAfter).Format(time.RFC3339)
	if _, err := in.db.Exec(`DELETE FROM health_checks WHERE checked_at < ?`, cutoff); err != nil {
		return fmt.Errorf("purge health checks: %w", err)
	}
	if _, err := in.db.Exec(`DELETE FROM assignments WHERE status != ? AND completed_at < ?`, AssignmentStatusActive, cutoff); err != nil {
		return fmt.Errorf("purge inactive assignments: %w", err)
	}

	return nil
}

// PendingScaleUp reports whether the free agent slots across ready,
// healthy VMs have fallen below scaleUpHeadroomThreshold, as an early
// warning ahead of Scale's full recommendation.
func (in *Instance) PendingScaleUp() (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	ready, err := listVMsLocked(in, `WHERE status = ? AND health_status = ?`, VMStatusReady, HealthStatusHealthy)
	if err != nil {
		return false, err
	}
	free := 0
	for _, vm := range ready {
		free += vm.MaxAgents - vm.AgentCount
	}
	return free < scaleUpHeadroomThreshold, nil
}
