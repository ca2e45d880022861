package agentstate

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/httpx"
	"github.com/coordplane/coordplane/internal/utils"
)

// RegisterRoutes wires every AgentState HTTP and WebSocket endpoint
// onto sub, a subrouter already scoped to /agent/{agentId} by
// the front-door router.
func RegisterRoutes(sub *mux.Router, dataDir string) {
	sub.HandleFunc("/checkpoint", checkpointHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/messages", messagesHandler(dataDir)).Methods(http.MethodGet, http.MethodPost, http.MethodPatch)
	sub.HandleFunc("/memory", memoryHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/trace", startTraceHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/trace/{id}/step", stepHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/trace/{id}/complete", completeTraceHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/escalations/{id}/resolve", resolveEscalationHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/soul", soulHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/soul/add-xp", addXPHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/soul/update-from-trace", updateFromTraceHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/dashboard", dashboardHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/credentials", credentialsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/credentials/bundle", credentialBundleHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/goals", goalsHandler(dataDir)).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/goals/{id}/start", goalTransitionHandler(dataDir, "start")).Methods(http.MethodPost)
	sub.HandleFunc("/goals/{id}/complete", goalTransitionHandler(dataDir, "complete")).Methods(http.MethodPost)
	sub.HandleFunc("/goals/{id}/fail", goalTransitionHandler(dataDir, "fail")).Methods(http.MethodPost)
	sub.HandleFunc("/goals/{id}/abandon", goalTransitionHandler(dataDir, "abandon")).Methods(http.MethodPost)
	sub.HandleFunc("/goals/{id}", deleteGoalHandler(dataDir)).Methods(http.MethodDelete)
	sub.HandleFunc("/heartbeat", heartbeatHandler(dataDir)).Methods(http.MethodPost, http.MethodGet)
	sub.HandleFunc("/shadow/register", shadowHandler(dataDir, "register")).Methods(http.MethodPost)
	sub.HandleFunc("/shadow/become", shadowHandler(dataDir, "become")).Methods(http.MethodPost)
	sub.HandleFunc("/shadow/takeover", shadowHandler(dataDir, "takeover")).Methods(http.MethodPost)
}

func instanceOrFail(w http.ResponseWriter, r *http.Request, dataDir string) *Instance {
	agentID := mux.Vars(r)["agentId"]
	if !utils.IsValidAgentName(agentID) {
		httpx.BadRequest(w, "agentId must be 1-64 characters")
		return nil
	}
	in, err := Get(dataDir, agentID)
	if err != nil {
		httpx.InternalError(w, err)
		return nil
	}
	return in
}

func checkpointHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			cp, err := in.GetCheckpoint()
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, cp)
		case http.MethodPost:
			var cp Checkpoint
			if err := httpx.DecodeJSON(r, &cp); err != nil {
				httpx.BadRequest(w, "invalid checkpoint body: "+err.Error())
				return
			}
			result, err := in.SaveCheckpoint(cp, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func messagesHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := DirectMessageFilter{UnreadOnly: r.URL.Query().Get("unread") == "true"}
			msgs, err := in.ListDirectMessages(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, msgs)
		case http.MethodPost:
			var body struct {
				From    string `json:"from"`
				Type    string `json:"type"`
				Message string `json:"message"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid message body: "+err.Error())
				return
			}
			msg, err := in.SendDirectMessage(body.From, body.Type, body.Message, r.Header.Get("X-Agent-Id"))
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, msg)
		case http.MethodPatch:
			var body struct {
				MessageIDs []string `json:"messageIds"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid patch body: "+err.Error())
				return
			}
			if err := in.MarkRead(body.MessageIDs); err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"marked": len(body.MessageIDs)})
		}
	}
}

func memoryHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := MemoryFilter{Category: r.URL.Query().Get("category"), Query: r.URL.Query().Get("query")}
			results, err := in.SearchMemory(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, results)
		case http.MethodPost:
			var body struct {
				Category string   `json:"category"`
				Content  string   `json:"content"`
				Tags     []string `json:"tags"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid memory body: "+err.Error())
				return
			}
			m, err := in.AddMemory(body.Category, body.Content, body.Tags)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, m)
		}
	}
}

func startTraceHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var body struct {
			SessionID string `json:"sessionId"`
			Task      string `json:"task"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid trace body: "+err.Error())
			return
		}
		trace, err := in.StartTrace(body.SessionID, body.Task)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, trace)
	}
}

func stepHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		var step WorkStep
		if err := httpx.DecodeJSON(r, &step); err != nil {
			httpx.BadRequest(w, "invalid step body: "+err.Error())
			return
		}
		result, err := in.AppendStep(id, step)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func completeTraceHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		trace, err := in.CompleteTrace(id)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, trace)
	}
}

func resolveEscalationHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		var body struct {
			ResolvedBy    string `json:"resolvedBy"`
			ResolverAgent string `json:"resolverAgent"`
			HelpfulHint   string `json:"helpfulHint"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid resolution body: "+err.Error())
			return
		}
		esc, err := in.ResolveEscalation(id, body.ResolvedBy, body.ResolverAgent, body.HelpfulHint)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, esc)
	}
}

func soulHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		soul, err := in.GetOrCreateSoul()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, soul)
	}
}

func addXPHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var body struct {
			Amount int `json:"amount"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid add-xp body: "+err.Error())
			return
		}
		soul, err := in.AddXP(body.Amount)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, soul)
	}
}

func updateFromTraceHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var body struct {
			TraceID                 string `json:"traceId"`
			Domain                  string `json:"domain"`
			RequiredHumanEscalation bool   `json:"requiredHumanEscalation"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.BadRequest(w, "invalid update-from-trace body: "+err.Error())
			return
		}
		result, err := in.UpdateFromTrace(body.TraceID, body.Domain, body.RequiredHumanEscalation)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func dashboardHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		dash, err := in.GetDashboard()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, dash)
	}
}

func credentialsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			creds, err := in.ListCredentials()
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, creds)
		case http.MethodPost:
			var body struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.BadRequest(w, "invalid credential body: "+err.Error())
				return
			}
			cred, err := in.SetCredential(body.Key, body.Value)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, cred)
		}
	}
}

func credentialBundleHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		bundle, err := in.CredentialBundle()
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, bundle)
	}
}

func goalsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f := GoalFilter{Status: r.URL.Query().Get("status")}
			goals, err := in.ListGoals(f)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, goals)
		case http.MethodPost:
			var g Goal
			if err := httpx.DecodeJSON(r, &g); err != nil {
				httpx.BadRequest(w, "invalid goal body: "+err.Error())
				return
			}
			result, err := in.CreateGoal(g)
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, result)
		}
	}
}

func goalTransitionHandler(dataDir, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		var body struct {
			Outcome string `json:"outcome"`
		}
		_ = httpx.DecodeJSON(r, &body)

		var (
			result *Goal
			err    error
		)
		switch action {
		case "start":
			result, err = in.StartGoal(id)
		case "complete":
			result, err = in.CompleteGoal(id, body.Outcome)
		case "fail":
			result, err = in.FailGoal(id, body.Outcome)
		case "abandon":
			result, err = in.AbandonGoal(id)
		}
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}

func deleteGoalHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		id := mux.Vars(r)["id"]
		if err := in.DeleteGoal(id); err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

func heartbeatHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		switch r.Method {
		case http.MethodPost:
			if err := in.RecordHeartbeat(); err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"recorded": true})
		case http.MethodGet:
			status, err := in.GetHeartbeatStatus()
			if err != nil {
				httpx.InternalError(w, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, status)
		}
	}
}

func shadowHandler(dataDir, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var result *Shadow
		var err error
		switch action {
		case "register":
			var body struct {
				ShadowAgentID string `json:"shadowAgentId"`
			}
			if decErr := httpx.DecodeJSON(r, &body); decErr != nil {
				httpx.BadRequest(w, "invalid register body: "+decErr.Error())
				return
			}
			result, err = in.RegisterShadow(body.ShadowAgentID)
		case "become":
			result, err = in.BecomeShadow()
		case "takeover":
			result, err = in.Takeover()
		}
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, result)
	}
}
