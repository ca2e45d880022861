package coordinator

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/coordplane/coordplane/internal/dbopen"
	"github.com/coordplane/coordplane/internal/events"
	"github.com/coordplane/coordplane/internal/wsmsg"
	"github.com/coordplane/coordplane/internal/wsreg"
)

//go:embed schema.sql
var schemaSQL string

// Instance is the singleton Coordinator entity. It owns its own
// SQLite store and serializes every request behind mu, per the
// entity runtime contract: only one request executes
// at a time, and a handler broadcasts its WebSocket event only after
// its mutation has been written; each socket's write goroutine may
// deliver that event before the handler itself returns.
type Instance struct {
	mu      sync.Mutex
	db      *sql.DB
	sockets *wsreg.Registry
	bus     *events.Bus
}

var (
	singleton     *Instance
	singletonOnce sync.Once
	singletonErr  error
)

// Get returns the process-wide Coordinator instance, opening its
// store on first use.
func Get(dataDir string) (*Instance, error) {
	singletonOnce.Do(func() {
		path := filepath.Join(dataDir, "coordinator", Name+".db")
		db, err := dbopen.Open(path, schemaSQL)
		if err != nil {
			singletonErr = fmt.Errorf("open coordinator store: %w", err)
			return
		}
		store, err := events.NewSQLiteStore(db)
		if err != nil {
			singletonErr = fmt.Errorf("open coordinator event store: %w", err)
			return
		}
		singleton = &Instance{db: db, sockets: wsreg.New(), bus: events.NewBus(store)}
	})
	return singleton, singletonErr
}

// broadcast marshals an envelope {type, payload, timestamp} and fans
// it out to every connected socket except excludeTag, and republishes
// the same update on the event bus so a caller that can't hold a
// socket open can pick it up via /coordinator/events.
func (in *Instance) broadcast(msgType string, payload any, excludeTag string) {
	in.sockets.Broadcast(excludeTag, wsmsg.New(msgType, payload))
	in.bus.Publish(events.NewEvent(eventTypeFor(msgType), Name, "all", events.PriorityNormal, map[string]any{
		"type": msgType, "payload": payload,
	}))
}

func eventTypeFor(msgType string) events.EventType {
	switch msgType {
	case "chat":
		return events.EventChat
	case "agent-update":
		return events.EventAgentUpdate
	case "task-update", "handoff-update", "claim-update", "zone-update":
		return events.EventTask
	default:
		return events.EventTask
	}
}
