package resourcelock

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/coordplane/coordplane/internal/alarm"
	"github.com/coordplane/coordplane/internal/dbopen"
	"github.com/coordplane/coordplane/internal/wsmsg"
	"github.com/coordplane/coordplane/internal/wsreg"
)

//go:embed schema.sql
var schemaSQL string

// Instance is one keyed ResourceLock entity, one per resource path.
type Instance struct {
	ResourcePath string

	mu      sync.Mutex
	db      *sql.DB
	sockets *wsreg.Registry
	alarm   *alarm.Scheduler
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Instance{}
)

// Get returns the process-wide Instance for resourcePath, opening its
// store on first use and arming its expiry alarm from any lock it
// already held across a restart.
func Get(dataDir, resourcePath string) (*Instance, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if in, ok := registry[resourcePath]; ok {
		return in, nil
	}

	path := filepath.Join(dataDir, "resourcelock", dbopen.SafeFileName(resourcePath)+".db")
	db, err := dbopen.Open(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("open resourcelock store for %s: %w", resourcePath, err)
	}

	in := &Instance{
		ResourcePath: resourcePath,
		db:           db,
		sockets:      wsreg.New(),
		alarm:        alarm.New(),
	}
	registry[resourcePath] = in

	if lock, err := in.currentLockLocked(); err == nil && lock != nil {
		in.armExpiry(lock.ExpiresAt)
	}

	return in, nil
}

func (in *Instance) broadcast(msgType string, payload any, excludeTag string) {
	in.sockets.Broadcast(excludeTag, wsmsg.New(msgType, payload))
}

// armExpiry (re)schedules the single pending alarm for this lock's
// expiry, replacing whatever was previously armed.
func (in *Instance) armExpiry(at time.Time) {
	in.alarm.Set(at, func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		if lock, err := in.currentLockLocked(); err == nil && lock != nil && !lock.ExpiresAt.After(at) {
			_ = in.releaseLocked(ReleaseReasonExpired)
			in.broadcast("lock-expired", map[string]any{"resourcePath": in.ResourcePath}, "")
		}
	})
}
