package resourcelock

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictError is returned by Acquire when an unexpired lock is held
// by a different agent; handlers render it as a 409 with the
// remaining TTL.
type ConflictError struct {
	Lock        Lock
	RemainingMs int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%q is locked by %s, %dms remaining", e.Lock.ResourcePath, e.Lock.LockedBy, e.RemainingMs)
}

// Acquire takes the lock for agentID, sweeping an expired lock first.
// Re-locking by the current owner refreshes the TTL. ttl defaults to
// two hours when zero.
func (in *Instance) Acquire(agentID string, reason *string, resourceType string, ttl time.Duration) (*Lock, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if ttl <= 0 {
		ttl = defaultTTL
	}
	if resourceType == "" {
		resourceType = ResourceTypeCustom
	}

	existing, err := in.currentLockLocked()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.ExpiresAt.After(time.Now()) {
			if err := in.releaseLocked(ReleaseReasonExpired); err != nil {
				return nil, err
			}
			existing = nil
		} else if existing.LockedBy != agentID {
			return nil, &ConflictError{Lock: *existing, RemainingMs: time.Until(existing.ExpiresAt).Milliseconds()}
		}
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	historyID := uuid.NewString()

	_, err = in.db.Exec(`INSERT INTO lock_history (id, resource_path, resource_type, locked_by, reason, locked_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		historyID, in.ResourcePath, resourceType, agentID, nullStr(reason), now.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("record lock history: %w", err)
	}

	_, err = in.db.Exec(`
		INSERT INTO lock_state (id, history_id, resource_path, resource_type, locked_by, reason, locked_at, expires_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			history_id = excluded.history_id, resource_type = excluded.resource_type, locked_by = excluded.locked_by,
			reason = excluded.reason, locked_at = excluded.locked_at, expires_at = excluded.expires_at`,
		historyID, in.ResourcePath, resourceType, agentID, nullStr(reason), now.Format(time.RFC3339), expiresAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	in.armExpiry(expiresAt)
	lock, err := in.currentLockLocked()
	if err != nil {
		return nil, err
	}
	in.broadcast("lock-acquired", lock, "")
	return lock, nil
}

// ForbiddenError signals a release attempt by a non-owner without force.
type ForbiddenError struct{ Reason string }

func (e *ForbiddenError) Error() string { return e.Reason }

// Release drops the lock iff agentID owns it or force is set. Release
// reason is "manual" for the owner, "stolen" for a forced non-owner
// release.
func (in *Instance) Release(agentID string, force bool) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	existing, err := in.currentLockLocked()
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("resource %s is not locked", in.ResourcePath)
	}

	reason := ReleaseReasonManual
	if existing.LockedBy != agentID {
		if !force {
			return &ForbiddenError{Reason: fmt.Sprintf("lock on %s is held by %s, not %s", in.ResourcePath, existing.LockedBy, agentID)}
		}
		reason = ReleaseReasonStolen
	}

	in.alarm.Cancel()
	if err := in.releaseLocked(reason); err != nil {
		return err
	}
	in.broadcast("lock-released", map[string]any{"resourcePath": in.ResourcePath, "releaseReason": reason}, "")
	return nil
}

// releaseLocked clears the live row and stamps the matching history
// entry with releasedAt/releaseReason. Caller must hold in.mu.
func (in *Instance) releaseLocked(reason string) error {
	row := in.db.QueryRow(`SELECT history_id FROM lock_state WHERE id = 1`)
	var historyID string
	if err := row.Scan(&historyID); err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		return fmt.Errorf("find history id: %w", err)
	}

	now := time.Now()
	if _, err := in.db.Exec(`UPDATE lock_history SET released_at=?, release_reason=? WHERE id=?`,
		now.Format(time.RFC3339), reason, historyID); err != nil {
		return fmt.Errorf("stamp history: %w", err)
	}
	if _, err := in.db.Exec(`DELETE FROM lock_state WHERE id = 1`); err != nil {
		return fmt.Errorf("clear lock state: %w", err)
	}
	return nil
}

// Check lazily sweeps an expired lock and returns the live state, or
// nil if unlocked.
func (in *Instance) Check() (*Lock, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	lock, err := in.currentLockLocked()
	if err != nil {
		return nil, err
	}
	if lock != nil && !lock.ExpiresAt.After(time.Now()) {
		in.alarm.Cancel()
		if err := in.releaseLocked(ReleaseReasonExpired); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return lock, nil
}

func (in *Instance) currentLockLocked() (*Lock, error) {
	row := in.db.QueryRow(`SELECT resource_path, resource_type, locked_by, reason, locked_at, expires_at FROM lock_state WHERE id = 1`)
	var l Lock
	var reason sql.NullString
	var lockedAt, expiresAt string

	err := row.Scan(&l.ResourcePath, &l.ResourceType, &l.LockedBy, &reason, &lockedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current lock: %w", err)
	}
	if reason.Valid {
		l.Reason = &reason.String
	}
	t, err := time.Parse(time.RFC3339, lockedAt)
	if err != nil {
		return nil, fmt.Errorf("parse locked_at: %w", err)
	}
	l.LockedAt = t
	t, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	l.ExpiresAt = t
	return &l, nil
}

// History returns the most recent acquisitions, newest first, capped
// at historyLimit.
func (in *Instance) History() ([]*HistoryEntry, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`
		SELECT id, resource_path, resource_type, locked_by, reason, locked_at, expires_at, released_at, release_reason
		FROM lock_history ORDER BY locked_at DESC LIMIT ?`, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var reason, releasedAt, releaseReason sql.NullString
		var lockedAt, expiresAt string
		if err := rows.Scan(&h.ID, &h.ResourcePath, &h.ResourceType, &h.LockedBy, &reason, &lockedAt, &expiresAt, &releasedAt, &releaseReason); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if reason.Valid {
			h.Reason = &reason.String
		}
		t, err := time.Parse(time.RFC3339, lockedAt)
		if err != nil {
			return nil, fmt.Errorf("parse locked_at: %w", err)
		}
		h.LockedAt = t
		t, err = time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		h.ExpiresAt = t
		if releasedAt.Valid {
			if t, err := time.Parse(time.RFC3339, releasedAt.String); err == nil {
				h.ReleasedAt = &t
			}
		}
		if releaseReason.Valid {
			h.ReleaseReason = &releaseReason.String
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
