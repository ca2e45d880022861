package gittree

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/coordplane/coordplane/internal/httpx"
	"github.com/coordplane/coordplane/internal/stringutils"
)

// RegisterRoutes wires every GitTree HTTP and WebSocket endpoint onto
// sub, a subrouter already scoped to /gittree/{repoId} by the
// front-door router.
func RegisterRoutes(sub *mux.Router, dataDir string) {
	sub.HandleFunc("/tree", treeHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/file", fileHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/commits", commitsHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/compare", compareHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/search", searchHandler(dataDir)).Methods(http.MethodGet)
	sub.HandleFunc("/webhook", webhookHandler(dataDir)).Methods(http.MethodPost)
	sub.HandleFunc("/ws", wsHandler(dataDir)).Methods(http.MethodGet)
}

func instanceOrFail(w http.ResponseWriter, r *http.Request, dataDir string) *Instance {
	repoID := stringutils.TrimAll(mux.Vars(r)["repoId"])
	if stringutils.IsEmpty(repoID) {
		httpx.BadRequest(w, "repoId must not be blank")
		return nil
	}
	in, err := Get(dataDir, repoID)
	if err != nil {
		httpx.InternalError(w, err)
		return nil
	}
	return in
}

func treeHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		q := TreeQuery{
			Branch:  r.URL.Query().Get("branch"),
			SHA:     r.URL.Query().Get("sha"),
			Path:    r.URL.Query().Get("path"),
			Depth:   -1,
			Refresh: r.URL.Query().Get("refresh") == "true",
		}
		if d, err := strconv.Atoi(r.URL.Query().Get("depth")); err == nil {
			q.Depth = d
		}
		tree, err := in.ListTree(q)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tree)
	}
}

func fileHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		path := r.URL.Query().Get("path")
		if path == "" {
			httpx.BadRequest(w, "path query parameter is required")
			return
		}
		branch := r.URL.Query().Get("branch")
		if branch == "" {
			branch = "main"
		}
		file, err := in.GetFile(branch, path)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		if file == nil {
			httpx.NotFound(w, "file not found: "+path)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, file)
	}
}

func commitsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		branch := r.URL.Query().Get("branch")
		if branch == "" {
			branch = "main"
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		commits, err := in.ListCommits(branch, limit)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, commits)
	}
}

func compareHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		base := r.URL.Query().Get("base")
		head := r.URL.Query().Get("head")
		if base == "" || head == "" {
			httpx.BadRequest(w, "base and head query parameters are required")
			return
		}
		cmp, err := in.CompareBranches(base, head)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, cmp)
	}
}

func searchHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		glob := r.URL.Query().Get("glob")
		if glob == "" {
			httpx.BadRequest(w, "glob query parameter is required")
			return
		}
		branch := r.URL.Query().Get("branch")
		if branch == "" {
			branch = "main"
		}
		files, err := in.SearchFiles(branch, glob)
		if err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, files)
	}
}

func webhookHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		var push WebhookPush
		if err := httpx.DecodeJSON(r, &push); err != nil {
			httpx.BadRequest(w, "invalid webhook body: "+err.Error())
			return
		}
		if err := in.HandleWebhookPush(push); err != nil {
			httpx.InternalError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"accepted": true})
	}
}

func wsHandler(dataDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := instanceOrFail(w, r, dataDir)
		if in == nil {
			return
		}
		in.ServeWS(w, r, r.URL.Query().Get("tag"))
	}
}
