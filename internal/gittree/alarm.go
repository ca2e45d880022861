package gittree

import (
	"fmt"
	"time"
)

// armSweep schedules the recurring hourly cleanup, re-arming itself
// at the end of every run.
func (in *Instance) armSweep() {
	in.alarm.Set(time.Now().Add(sweepInterval), func() {
		in.mu.Lock()
		if err := in.runSweepLocked(); err != nil {
			fmt.Printf("[GITTREE] sweep failed for %s: %v\n", in.RepoID, err)
		}
		in.mu.Unlock()
		in.armSweep()
	})
}

// runSweepLocked deletes files and trees whose cache has expired,
// trims commits to the last commitRetentionLimit, and deletes
// file_changes orphaned by that trim. Caller must hold in.mu.
func (in *Instance) runSweepLocked() error {
	now := time.Now().Format(time.RFC3339)

	if _, err := in.db.Exec(`DELETE FROM files WHERE tree_id IN (SELECT tree_id FROM trees WHERE expires_at < ?)`, now); err != nil {
		return fmt.Errorf("delete expired files: %w", err)
	}
	if _, err := in.db.Exec(`DELETE FROM trees WHERE expires_at < ?`, now); err != nil {
		return fmt.Errorf("delete expired trees: %w", err)
	}

	if _, err := in.db.Exec(`
		DELETE FROM commits WHERE sha NOT IN (
			SELECT sha FROM commits ORDER BY timestamp DESC LIMIT ?
		)`, commitRetentionLimit); err != nil {
		return fmt.Errorf("trim commits: %w", err)
	}
	if _, err := in.db.Exec(`DELETE FROM file_changes WHERE commit_sha NOT IN (SELECT sha FROM commits)`); err != nil {
		return fmt.Errorf("delete orphaned file_changes: %w", err)
	}

	return nil
}
