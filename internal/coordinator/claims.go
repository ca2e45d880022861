package coordinator

import (
	"database/sql"
	"fmt"
	"time"
)

// ClaimConflictError is returned by Claim when a non-stale holder
// other than by already exists; handlers render it as a 409 with the
// existing claim attached.
type ClaimConflictError struct {
	Existing Claim
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("%q is already claimed by %s", e.Existing.What, e.Existing.By)
}

// Claim attempts to take an at-most-one advisory lock on what. It
// succeeds if no non-stale holder exists or the existing holder
// already equals by (re-claiming refreshes since).
func (in *Instance) Claim(what, by string, description *string, excludeTag string) (*Claim, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	existing, err := in.getClaimLocked(what)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Stale && existing.By != by {
		return nil, &ClaimConflictError{Existing: *existing}
	}

	now := time.Now()
	_, err = in.db.Exec(`
		INSERT INTO claims (what, by, description, since)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(what) DO UPDATE SET by = excluded.by, description = excluded.description, since = excluded.since`,
		what, by, nullableStr(description), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	result, err := in.getClaimLocked(what)
	if err != nil {
		return nil, err
	}
	in.broadcast("claim-update", result, excludeTag)
	return result, nil
}

// ReleaseError signals an unauthorized release attempt (403).
type ReleaseError struct{ Reason string }

func (e *ReleaseError) Error() string { return e.Reason }

// Release deletes a claim iff by matches the current holder.
func (in *Instance) Release(what, by string, excludeTag string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	existing, err := in.getClaimLocked(what)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("claim not found: %s", what)
	}
	if existing.By != by {
		return &ReleaseError{Reason: fmt.Sprintf("claim %q is held by %s, not %s", what, existing.By, by)}
	}
	_, err = in.db.Exec(`DELETE FROM claims WHERE what = ?`, what)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	in.broadcast("claim-update", map[string]any{"what": what, "released": true}, excludeTag)
	return nil
}

// ClaimFilter narrows ListClaims.
type ClaimFilter struct {
	IncludeStale bool
	By           string
}

// ListClaims returns claims with derived staleness, filtered.
func (in *Instance) ListClaims(f ClaimFilter) ([]*Claim, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT what, by, description, since FROM claims WHERE 1=1`
	var args []any
	if f.By != "" {
		query += ` AND by = ?`
		args = append(args, f.By)
	}
	query += ` ORDER BY since DESC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		if !f.IncludeStale && c.Stale {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (in *Instance) getClaimLocked(what string) (*Claim, error) {
	row := in.db.QueryRow(`SELECT what, by, description, since FROM claims WHERE what = ?`, what)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func scanClaim(row interface{ Scan(dest ...any) error }) (*Claim, error) {
	var c Claim
	var description sql.NullString
	var since string
	if err := row.Scan(&c.What, &c.By, &description, &since); err != nil {
		return nil, err
	}
	if description.Valid {
		c.Description = &description.String
	}
	t, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return nil, fmt.Errorf("parse since: %w", err)
	}
	c.Since = t
	c.Stale = time.Since(t) > claimStaleAfter
	return &c, nil
}
