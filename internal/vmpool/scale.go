package vmpool

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	scaleUpHeadroomThreshold   = 2
	scaleDownIdleVMThreshold   = 1
	minReadyVMsBeforeTerminate = 1
)

// Scale computes a recommendation from current inventory only; it
// never provisions or terminates anything itself.
func (in *Instance) Scale() (*ScaleRecommendation, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	vms, err := listVMsLocked(in, `WHERE status != ?`, VMStatusTerminated)
	if err != nil {
		return nil, err
	}

	var ready, busy, errored []*VM
	freeCapacity := 0
	for _, vm := range vms {
		switch vm.Status {
		case VMStatusReady:
			ready = append(ready, vm)
			freeCapacity += vm.MaxAgents - vm.AgentCount
		case VMStatusBusy:
			busy = append(busy, vm)
		case VMStatusError:
			errored = append(errored, vm)
		}
	}

	var rec *ScaleRecommendation
	switch {
	case len(errored) > 0 && len(ready) == 0:
		rec = &ScaleRecommendation{
			Action: ScaleActionBlocked,
			Reason: fmt.Sprintf("%d vm(s) in error status and no ready capacity remains", len(errored)),
			VMIDs:  vmIDs(errored),
		}
	case freeCapacity < scaleUpHeadroomThreshold && len(busy) > 0:
		rec = &ScaleRecommendation{
			Action: ScaleActionProvision,
			Reason: fmt.Sprintf("only %d free agent slot(s) remain across %d ready vm(s)", freeCapacity, len(ready)),
		}
	case emptyVMCount(ready) > scaleDownIdleVMThreshold && len(ready)-emptyVMCount(ready) >= minReadyVMsBeforeTerminate:
		idle := idleVMs(ready)
		rec = &ScaleRecommendation{
			Action: ScaleActionTerminate,
			Reason: fmt.Sprintf("%d ready vm(s) are carrying zero agents", len(idle)),
			VMIDs:  vmIDs(idle),
		}
	default:
		rec = &ScaleRecommendation{Action: ScaleActionNone, Reason: "capacity matches demand"}
	}

	vmIDsJSON := "[]"
	if len(rec.VMIDs) > 0 {
		vmIDsJSON = `["` + strings.Join(rec.VMIDs, `","`) + `"]`
	}
	if _, err := in.db.Exec(`INSERT INTO scale_history (id, recommended_at, action, reason, vm_ids) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), time.Now().Format(time.RFC3339), rec.Action, rec.Reason, vmIDsJSON); err != nil {
		return nil, fmt.Errorf("record scale recommendation: %w", err)
	}
	if _, err := in.db.Exec(`DELETE FROM scale_history WHERE id NOT IN (SELECT id FROM scale_history ORDER BY recommended_at DESC LIMIT ?)`,
		scaleHistoryLimit); err != nil {
		return nil, fmt.Errorf("trim scale history: %w", err)
	}

	return rec, nil
}

// ScaleHistoryEntry is one past recommendation, newest first.
type ScaleHistoryEntry struct {
	ID            string    `json:"id"`
	RecommendedAt time.Time `json:"recommendedAt"`
	Action        string    `json:"action"`
	Reason        string    `json:"reason"`
	VMIDs         []string  `json:"vmIds"`
}

const scaleHistoryLimit = 200

// ScaleHistory returns the most recent scale recommendations, newest
// first, capped at scaleHistoryLimit.
func (in *Instance) ScaleHistory() ([]*ScaleHistoryEntry, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`SELECT id, recommended_at, action, reason, vm_ids FROM scale_history ORDER BY recommended_at DESC LIMIT ?`, scaleHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list scale history: %w", err)
	}
	defer rows.Close()

	var out []*ScaleHistoryEntry
	for rows.Next() {
		var e ScaleHistoryEntry
		var recommendedAt, vmIDsJSON string
		if err := rows.Scan(&e.ID, &recommendedAt, &e.Action, &e.Reason, &vmIDsJSON); err != nil {
			return nil, fmt.Errorf("scan scale history entry: %w", err)
		}
		if e.RecommendedAt, err = time.Parse(time.RFC3339, recommendedAt); err != nil {
			return nil, fmt.Errorf("parse recommended_at: %w", err)
		}
		e.VMIDs = decodeVMIDs(vmIDsJSON)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func decodeVMIDs(raw string) []string {
	raw = strings.Trim(raw, "[]")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.Trim(p, `"`)
	}
	return out
}

func emptyVMCount(vms []*VM) int {
	n := 0
	for _, vm := range vms {
		if vm.AgentCount == 0 {
			n++
		}
	}
	return n
}

func idleVMs(vms []*VM) []*VM {
	var out []*VM
	for _, vm := range vms {
		if vm.AgentCount == 0 {
			out = append(out, vm)
		}
	}
	return out
}

func vmIDs(vms []*VM) []string {
	out := make([]string, len(vms))
	for i, vm := range vms {
		out[i] = vm.VMID
	}
	return out
}

