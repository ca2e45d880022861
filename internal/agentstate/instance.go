package agentstate

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"sync"

	"database/sql"

	"github.com/coordplane/coordplane/internal/alarm"
	"github.com/coordplane/coordplane/internal/dbopen"
	"github.com/coordplane/coordplane/internal/wsmsg"
	"github.com/coordplane/coordplane/internal/wsreg"
)

//go:embed schema.sql
var schemaSQL string

// Instance is one keyed AgentState entity, one per agent name. It
// owns its own SQLite store, serializes requests behind mu, and may
// hold a single pending alarm for heartbeat-stall style sweeps.
type Instance struct {
	AgentID string

	mu      sync.Mutex
	db      *sql.DB
	sockets *wsreg.Registry
	alarm   *alarm.Scheduler
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Instance{}
)

// Get returns the process-wide Instance for agentID, opening its
// store on first use. Safe for concurrent callers; at most one
// Instance per agentID is ever constructed.
func Get(dataDir, agentID string) (*Instance, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if in, ok := registry[agentID]; ok {
		return in, nil
	}

	path := filepath.Join(dataDir, "agentstate", dbopen.SafeFileName(agentID)+".db")
	db, err := dbopen.Open(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("open agentstate store for %s: %w", agentID, err)
	}

	in := &Instance{
		AgentID: agentID,
		db:      db,
		sockets: wsreg.New(),
		alarm:   alarm.New(),
	}
	registry[agentID] = in
	return in, nil
}

// broadcast fans an envelope out to this agent's own sockets (e.g. a
// shadow agent watching the same private feed).
func (in *Instance) broadcast(msgType string, payload any, excludeTag string) {
	in.sockets.Broadcast(excludeTag, wsmsg.New(msgType, payload))
}
