package vmpool

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

// Instance is the singleton VMPool entity.
type Instance struct {
	mu      sync.Mutex
	db      *sql.DB
	sockets *wsreg.Registry
	alarm   *alarm.Scheduler

	healthCheckInterval time.Duration
	vmBootTimeout       time.Duration
}

var (
	singleton     *Instance
	singletonOnce sync.Once
	singletonErr  error

	configuredHealthCheckInterval = healthCheckIntervalDefault
	configuredVMBootTimeout       = vmBootTimeoutDefault
)

// SetIntervals overrides the sweep cadence and boot timeout used by
// the instance created by the next Get call. Must be called before
// the first Get (typically from main, right after loading config);
// a no-op once the singleton already exists.
func SetIntervals(healthCheckInterval, vmBootTimeout time.Duration) {
	configuredHealthCheckInterval = healthCheckInterval
	configuredVMBootTimeout = vmBootTimeout
}

// Get returns the process-wide VMPool instance, opening its store and
// arming the recurring health-check alarm on first use.
func Get(dataDir string) (*Instance, error) {
	singletonOnce.Do(func() {
		path := filepath.Join(dataDir, "vmpool", Name+".db")
		db, err := dbopen.Open(path, schemaSQL)
		if err != nil {
			singletonErr = fmt.Errorf("open vmpool store: %w", err)
			return
		}
		in := &Instance{
			db:                  db,
			sockets:             wsreg.New(),
			alarm:               alarm.New(),
			healthCheckInterval: configuredHealthCheckInterval,
			vmBootTimeout:       configuredVMBootTimeout,
		}
		in.armSweep()
		singleton = in
	})
	return singleton, singletonErr
}

func (in *Instance) broadcast(msgType string, payload any, excludeTag string) {
	in.sockets.Broadcast(excludeTag, wsmsg.New(msgType, payload))
}
