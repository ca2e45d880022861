package coordinator

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/httpx"
)

// RegisterRoutes wires every Coordinator HTTP and WebSocket endpoint
// onto sub, a subrouter already scoped to the Coordinator's URL
// prefix by the front-door router. dataDir is threaded through to
// reach the AgentState peer during onboarding fan-out.
func RegisterRoutes(sub *mux.Router, dataDir string) {
	sub.HandleFunc("/agents", agentsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/chat", chatHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/tasks", tasksHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/zones", zonesHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/zones/check", zoneCheckHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/claims", claimsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/handoffs", handoffsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/handoffs/{id}/claim", handoffClaimHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/handoffs/{id}/complete", handoffCompleteHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/work", workHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/onboard", onboardHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/session-resume", sessionResumeHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/events", eventsHandler(dataDir)).Methods(http.MethodGet)
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

func agentsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			agents, err := in.ListAgents()
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, agents)
		case http.MethodPost:
			var a Agent
			if err := httpx.DecodeJSON(r, &a); err != nil {
				httpx.BadRequest(w, "invalid agent body: "+err.Error())
				return
			}
			result, err := in.UpsertAgent(a, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func chatHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := ChatFilter{AgentID: r.URL.Query().Get("agentId")}
			if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
				f.Limit = n
			}
			if since := r.URL.Query().Get("since"); since != "" {
				if t, err := time.Parse(time.RFC3339, since); err == nil {
					f.Since = t
				}
			}
			f.InboxOnly = r.URL.Query().Get("inbox") == "true"

			recent, mentions, err := in.GetChat(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": recent, "pendingMentions": mentions})
		case http.MethodPost:
			var body struct {
				Author     string `json:"author"`
				AuthorType string `json:"authorType"`
				Message    string `json:"message"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid chat body: "+err.Error())
				return
			}
			msg, err := in.PostChat(body.Author, body.AuthorType, body.Message, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, msg)
		}
	}
}

func tasksHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := TaskFilter{Status: r.URL.Query().Get("status"), Assignee: r.URL.Query().Get("assignee")}
			tasks, err := in.ListTasks(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, tasks)
		case http.MethodPost:
			var t Task
			if err := httpx.DecodeJSON(r, &t); err != nil {
				httpx.BadRequest(w, "invalid task body: "+err.Error())
				return
			}
			result, err := in.UpsertTask(t, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func zonesHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := ZoneFilter{Owner: r.URL.Query().Get("owner"), Path: r.URL.Query().Get("path")}
			zones, err := in.ListZones(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, zones)
		case http.MethodPost:
			var z Zone
			if err := httpx.DecodeJSON(r, &z); err != nil {
				httpx.BadRequest(w, "invalid zone body: "+err.Error())
				return
			}
			result, err := in.UpsertZone(z, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func zoneCheckHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		path := r.URL.Query().Get("path")
		if path == "" {
			httpx.BadRequest(w, "path query parameter is required")
			return
		}
		zone, err := in.CheckZone(path)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"zone": zone})
	}
}

func claimsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := ClaimFilter{By: r.URL.Query().Get("by"), IncludeStale: r.URL.Query().Get("includeStale") == "true"}
			claims, err := in.ListClaims(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, claims)
		case http.MethodPost:
			var body struct {
				Action      string  `json:"action"`
				What        string  `json:"what"`
				By          string  `json:"by"`
				Description *string `json:"description,omitempty"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid claim body: "+err.Error())
				return
			}
			switch body.Action {
			case "claim":
				claim, err := in.Claim(body.What, body.By, body.Description, r.Header.Get("X-Agent-Id"))
				if err != nil {
					if conflict, ok := err.(*ClaimConflictError); ok {
						httpx.WriteError(w, http.StatusConflict, conflict.Error(), map[string]any{"claim": conflict.Existing})
						return
					}
					httpx.InternalError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, claim)
			case "release":
				if err := in.Release(body.What, body.By, r.Header.Get("X-Agent-Id")); err != nil {
					if relErr, ok := err.(*ReleaseError); ok {
						httpx.WriteError(w, http.StatusForbidden, relErr.Error(), nil)
						return
					}
					httpx.InternalError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"released": true})
			default:
				httpx.BadRequest(w, "action must be \"claim\" or \"release\"")
			}
		}
	}
}

func handoffsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := HandoffFilter{
				ToAgent:   r.URL.Query().Get("toAgent"),
				FromAgent: r.URL.Query().Get("fromAgent"),
				Status:    r.URL.Query().Get("status"),
			}
			handoffs, err := in.ListHandoffs(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, handoffs)
		case http.MethodPost:
			var h Handoff
			if err := httpx.DecodeJSON(r, &h); err != nil {
				httpx.BadRequest(w, "invalid handoff body: "+err.Error())
				return
			}
			result, err := in.CreateHandoff(h, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func handoffClaimHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		agentID := r.Header.Get("X-Agent-Id")
		if agentID == "" {
			httpx.BadRequest(w, "X-Agent-Id header is required")
			return
		}
		result, err := in.ClaimHandoff(id, agentID, agentID)
		if err != nil {
			writeHandoffErr(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func handoffCompleteHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		agentID := r.Header.Get("X-Agent-Id")
		if agentID == "" {
			httpx.BadRequest(w, "X-Agent-Id header is required")
			return
		}
		result, err := in.CompleteHandoff(id, agentID, agentID)
		if err != nil {
			writeHandoffErr(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func writeHandoffErr(w http.ResponseWriter, err error) {
	if transErr, ok := err.(*HandoffTransitionError); ok {
		httpx.WriteError(w, http.StatusConflict, transErr.Error(), nil)
		return
	}
	httpx.InternalError(w, err)
}

func workHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		agentID := r.URL.Query().Get("agentId")

		team, err := in.ListAgents()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		todo, err := in.ListTasks(TaskFilter{Status: TaskStatusTodo})
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		var mine []*Task
		if agentID != "" {
			mine, err = in.ListTasks(TaskFilter{Assignee: agentID})
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
		}

		f := ChatFilter{Limit: 20, AgentID: agentID}
		recent, mentions, err := in.GetChat(f)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}

		resp := map[string]any{
			"summary": "hot-start snapshot",
			"team":    team,
			"tasks":   map[string]any{"todo": todo, "mine": mine},
			"recentChat": recent,
		}
		if agentID != "" {
			resp["inbox"] = mentions
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

func onboardHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		agentID := r.URL.Query().Get("agentId")
		if agentID == "" {
			httpx.BadRequest(w, "agentId query parameter is required")
			return
		}
		ob, err := in.Onboard(dataDir, agentID)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, ob)
	}
}

func sessionResumeHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		resume, err := in.SessionResume()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, resume)
	}
}

func eventsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		events := in.WaitForEvents()
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

func wsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, dataDir)
		if in == nil {
			return
		}
		tag := r.URL.Query().Get("agentId")
		in.ServeWS(w, r, tag)
	}
}
