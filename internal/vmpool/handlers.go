package vmpool

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/httpx"
)

// RegisterRoutes wires every VMPool HTTP and WebSocket endpoint onto
// sub, a subrouter already scoped to the VMPool's URL prefix by the
// front-door router.
func RegisterRoutes(sub *mux.Router, dataDir string) {
	sub.HandleFunc("/vms", vmsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/vms/{vmId}/ready", readyHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/vms/{vmId}/health", healthHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/vms/{vmId}/terminate", terminateHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/spawn", spawnHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/release", releaseHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/scale", scaleHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/scale/history", scaleHistoryHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/ws", wsHandler(dataDir)).Methods(http.MethodGet)
}

func instanceOrFail(w http.ResponseWriter, dataDir string) *Instance {
	in, err := Get(dataDir)
	if err != nil {
		httpx.InternalError(w, err)
		return nil
	}
	return in
}

func vmsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			vms, err := in.ListVMs()
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, vms)
		case http.MethodPost:
			var body struct {
				InstanceID string         `json:"instanceId"`
				Region     string         `json:"region"`
				VMSize     string         `json:"vmSize"`
				Metadata   map[string]any `json:"metadata,omitempty"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid provision body: "+err.Error())
				return
			}
			vm, err := in.Provision(body.InstanceID, body.Region, body.VMSize, body.Metadata)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, vm)
		}
	}
}

func readyHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		vmID := mux.Vars(r)["vmId"]
		var body struct {
			PublicIP  *string `json:"publicIp,omitempty"`
			PrivateIP *string `json:"privateIp,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid ready body: "+err.Error())
			return
		}
		vm, err := in.Ready(vmID, body.PublicIP, body.PrivateIP)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, vm)
	}
}

func healthHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		vmID := mux.Vars(r)["vmId"]
		var body struct {
			HealthStatus string  `json:"healthStatus"`
			Detail       *string `json:"detail,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid health body: "+err.Error())
			return
		}
		vm, err := in.Health(vmID, body.HealthStatus, body.Detail)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, vm)
	}
}

func terminateHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		vmID := mux.Vars(r)["vmId"]
		var body struct {
			Force bool `json:"force,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid terminate body: "+err.Error())
			return
		}
		vm, err := in.Terminate(vmID, body.Force)
		if err != nil {
			if conflict, ok := err.(*TerminateConflictError); ok {
				httpx.WriteError(w, http.StatusConflict, conflict.Error(), nil)
				return
			}
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, vm)
	}
}

func spawnHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		var body struct {
			AgentID       string  `json:"agentId"`
			PreferredVMID *string `json:"preferredVmId,omitempty"`
			Task          *string `json:"task,omitempty"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid spawn body: "+err.Error())
			return
		}
		assignment, err := in.Spawn(body.AgentID, body.PreferredVMID, body.Task)
		if err != nil {
			if _, ok := err.(*NoCapacityError); ok {
				httpx.WriteError(w, http.StatusServiceUnavailable, err.Error(), nil)
				return
			}
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, assignment)
	}
}

func releaseHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		var body struct {
			AgentID string `json:"agentId"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid release body: "+err.Error())
			return
		}
		if err := in.Release(body.AgentID); err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"released": true})
	}
}

func scaleHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		rec, err := in.Scale()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, rec)
	}
}

func scaleHistoryHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		history, err := in.ScaleHistory()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, history)
	}
}

func wsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		in.ServeWS(w, r, r.URL.Query().Get("agentId"))
	}
}
