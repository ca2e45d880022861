package gittree

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coordplane/coordplane/internal/alarm"
	"github.com/coordplane/coordplane/internal/dbopen"
	"github.com/coordplane/coordplane/internal/wsreg"
)

//go:embed schema.sql
var schemaSQL string

// Instance is one keyed GitTree entity, one per repository.
type Instance struct {
	RepoID string

	mu      sync.Mutex
	db      *sql.DB
	sockets *wsreg.Registry
	alarm   *alarm.Scheduler
	http    *http.Client

	// owner/repo as seen by the GitHub REST API, and a local
	// filesystem path to fall back to when GITHUB_TOKEN is unset.
	owner, repo string
	localPath   string
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Instance{}
)

// Get returns the process-wide Instance for repoID, opening its
// store and arming the hourly sweep alarm on first use. repoID is
// either "owner/repo" (GitHub REST path) or a filesystem path to a
// local clone, used when GITHUB_TOKEN is unset.
func Get(dataDir, repoID string) (*Instance, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if in, ok := registry[repoID]; ok {
		return in, nil
	}

	path := filepath.Join(dataDir, "gittree", dbopen.SafeFileName(repoID)+".db")
	db, err := dbopen.Open(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("open gittree store for %s: %w", repoID, err)
	}

	in := &Instance{
		RepoID:  repoID,
		db:      db,
		sockets: wsreg.New(),
		alarm:   alarm.New(),
		http:    &http.Client{},
	}
	in.owner, in.repo = splitOwnerRepo(repoID)
	if in.owner == "" {
		in.localPath = repoID
	}
	registry[repoID] = in
	in.armSweep()

	return in, nil
}

// splitOwnerRepo recognizes the GitHub "owner/repo" shorthand; any
// other form (an absolute or relative filesystem path) is treated as
// a local repo clone instead.
func splitOwnerRepo(repoID string) (owner, repo string) {
	parts := strings.Split(repoID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

func githubToken() string { return os.Getenv("GITHUB_TOKEN") }

func (in *Instance) usesGitHub() bool {
	return githubToken() != "" && in.owner != "" && in.repo != ""
}
