package resourcelock

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/httpx"
	"github.com/coordplane/coordplane/internal/stringutils"
)

// RegisterRoutes wires the ResourceLock HTTP surface onto sub, scoped
// to /lock/{resourcePath} by the front-door router.
func RegisterRoutes(sub *mux.Router, dataDir string) {
	sub.HandleFunc("/lock", lockHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/unlock", unlockHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/check", checkHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/history", historyHandler(dataDir)).Methods(http.MethodGet)
}

func instanceOrFail(w http.ResponseWriter, r *http.Request, dataDir string) *Instance {
	resourcePath := stringutils.TrimAll(mux.Vars(r)["resourcePath"])
	if stringutils.IsEmpty(resourcePath) {
		httpx.BadRequest(w, "resourcePath must not be blank")
		return nil
	}
	in, err := Get(dataDir, resourcePath)
	if err != nil {
		httpx.InternalError(w, err)
		return nil
	}
	return in
}

func lockHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var body struct {
			AgentID      string  `json:"agentId"`
			Reason       *string `json:"reason,omitempty"`
			ResourceType string  `json:"resourceType,omitempty"`
			TTLMs        int64   `json:"ttlMs,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid lock body: "+err.Error())
			return
		}
		var ttl time.Duration
		if body.TTLMs > 0 {
			ttl = time.Duration(body.TTLMs) * time.Millisecond
		}
		lock, err := in.Acquire(body.AgentID, body.Reason, body.ResourceType, ttl)
		if err != nil {
			if conflict, ok := err.(*ConflictError); ok {
				httpx.WriteError(w, http.StatusConflict, conflict.Error(), map[string]any{
					"lock": conflict.Lock, "remainingMs": conflict.RemainingMs,
				})
				return
			}
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, lock)
	}
}

func unlockHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var body struct {
			AgentID string `json:"agentId"`
			Force   bool   `json:"force,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid unlock body: "+err.Error())
			return
		}
		if err := in.Release(body.AgentID, body.Force); err != nil {
			if forbidden, ok := err.(*ForbiddenError); ok {
				httpx.WriteError(w, http.StatusForbidden, forbidden.Error(), nil)
				return
			}
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"released": true})
	}
}

func checkHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		lock, err := in.Check()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"lock": lock})
	}
}

func historyHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		entries, err := in.History()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, entries)
	}
}
