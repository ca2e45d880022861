// Package frontrouter assembles the stateless front door: URL-prefix
// dispatch to each entity kind, CORS, panic recovery, and /health.
// Grounded on internal/server/server.go's setupRoutes (mux.NewRouter,
// PathPrefix subrouters) and internal/server/middleware.go's
// security-header wrapper.
package frontrouter

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/agentstate"
	"github.com/coordplane/coordplane/internal/coordinator"
	"github.com/coordplane/coordplane/internal/gittree"
	"github.com/coordplane/coordplane/internal/httpx"
	"github.com/coordplane/coordplane/internal/resourcelock"
	"github.com/coordplane/coordplane/internal/vmpool"
)

const serviceName = "coordplane"

// New builds the top-level router: one PathPrefix subrouter per
// entity kind, each stripping its prefix (and, for keyed kinds, its
// captured name) before forwarding to that entity's RegisterRoutes.
func New(dataDir string) http.Handler {
	root := mux.NewRouter()
	root.Use(httpx.Recover, httpx.CORS, securityHeaders)

	root.HandleFunc("/health", healthHandler(dataDir)).Methods(http.MethodGet, http.MethodOptions)

	coordSub := root.PathPrefix("/coordinator").Subrouter()
	coordinator.RegisterRoutes(coordSub, dataDir)

	agentSub := root.PathPrefix("/agent/{agentId}").Subrouter()
	agentstate.RegisterRoutes(agentSub, dataDir)

	lockSub := root.PathPrefix("/lock/{resourcePath}").Subrouter()
	resourcelock.RegisterRoutes(lockSub, dataDir)

	vmSub := root.PathPrefix("/vmpool").Subrouter()
	vmpool.RegisterRoutes(vmSub, dataDir)

	treeSub := root.PathPrefix("/gittree/{repoId}").Subrouter()
	gittree.RegisterRoutes(treeSub, dataDir)

	return root
}

func healthHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   serviceName,
			"timestamp": time.Now(),
			"entities":  []string{"coordinator", "agentstate", "resourcelock", "vmpool", "gittree"},
		})
	}
}

// securityHeaders strips version-revealing headers the way the
// teacher's SecurityHeadersMiddleware does, adapted to a plain
// before/after wrapper instead of intercepting every Write.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serviceName)
		next.ServeHTTP(w, r)
	})
}
