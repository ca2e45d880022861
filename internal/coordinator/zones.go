package coordinator

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertZone creates or replaces a zone claim by path+owner.
func (in *Instance) UpsertZone(z Zone, excludeTag string) (*Zone, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if z.ZoneID == "" {
		z.ZoneID = uuid.NewString()
	}
	if z.ClaimedAt.IsZero() {
		z.ClaimedAt = time.Now()
	}
	_, err := in.db.Exec(`
		INSERT INTO zones (zone_id, path, owner, description, claimed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(zone_id) DO UPDATE SET
			path = excluded.path, owner = excluded.owner,
			description = excluded.description, claimed_at = excluded.claimed_at`,
		z.ZoneID, z.Path, z.Owner, nullableStr(z.Description), z.ClaimedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert zone: %w", err)
	}
	in.broadcast("zone-update", &z, excludeTag)
	return &z, nil
}

// ZoneFilter narrows ListZones.
type ZoneFilter struct {
	Owner string
	Path  string
}

// ListZones returns zones matching the filter.
func (in *Instance) ListZones(f ZoneFilter) ([]*Zone, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	query := `SELECT zone_id, path, owner, description, claimed_at FROM zones WHERE 1=1`
	var args []any
	if f.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	if f.Path != "" {
		query += ` AND path = ?`
		args = append(args, f.Path)
	}
	query += ` ORDER BY claimed_at DESC`

	rows, err := in.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var out []*Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// CheckZone returns the zone (if any) that owns queryPath. Membership
// is boundary-safe prefix-match: queryPath equals the zone's path, or
// begins with "path/". A bare strings.HasPrefix would wrongly match
// "src/api" against "src/api-v2/foo.ts", so the separator is required.
func (in *Instance) CheckZone(queryPath string) (*Zone, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`SELECT zone_id, path, owner, description, claimed_at FROM zones`)
	if err != nil {
		return nil, fmt.Errorf("check zone: %w", err)
	}
	defer rows.Close()

	var best *Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		if zoneContains(z.Path, queryPath) {
			if best == nil || len(z.Path) > len(best.Path) {
				best = z
			}
		}
	}
	return best, rows.Err()
}

// zoneContains implements the boundary-safe prefix test: equal paths
// match, and a path beneath zonePath must be separated by "/".
func zoneContains(zonePath, queryPath string) bool {
	if queryPath == zonePath {
		return true
	}
	return strings.HasPrefix(queryPath, zonePath+"/")
}

func scanZone(row interface{ Scan(dest ...any) error }) (*Zone, error) {
	var z Zone
	var description sql.NullString
	var claimedAt string
	if err := row.Scan(&z.ZoneID, &z.Path, &z.Owner, &description, &claimedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		z.Description = &description.String
	}
	t, err := time.Parse(time.RFC3339, claimedAt)
	if err != nil {
		return nil, fmt.Errorf("parse claimed_at: %w", err)
	}
	z.ClaimedAt = t
	return &z, nil
}
