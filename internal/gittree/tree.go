package gittree

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TreeQuery narrows ListTree's result set. Supplying SHA instead of
// Branch pins the tree to a frozen commit snapshot (e.g. a tag) rather
// than tracking a moving branch head.
type TreeQuery struct {
	Branch  string
	SHA     string
	Path    string
	Depth   int // -1 = unlimited
	Refresh bool
}

// ListTree serves the requested tree from cache unless expired or
// refresh is requested. A Branch query resolves the branch's current
// head sha upstream and is re-fetched once its TTL elapses; a SHA
// query pins to that exact commit and, once fetched, is cached for
// tagSnapshotTTL without ever being re-resolved to a new commit.
func (in *Instance) ListTree(q TreeQuery) (*Tree, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var cached *Tree
	var err error

	if q.SHA != "" {
		cached, err = in.getOrFetchSnapshotLocked(q.SHA, q.Refresh)
	} else {
		branch := q.Branch
		if branch == "" {
			branch = "main"
		}
		cached, err = in.getOrRefreshBranchLocked(branch, q.Refresh)
	}
	if err != nil {
		return nil, err
	}

	cached.Files = filterFiles(cached.Files, q.Path, q.Depth)
	return cached, nil
}

func (in *Instance) getOrRefreshBranchLocked(branch string, refresh bool) (*Tree, error) {
	treeID := cacheKeyForBranch(branch)

	cached, err := in.getTreeLocked(treeID)
	if err != nil {
		return nil, err
	}
	if cached == nil || refresh || !cached.ExpiresAt.After(time.Now()) {
		return in.refreshBranchLocked(branch)
	}
	if cached.Files, err = in.listFilesLocked(treeID); err != nil {
		return nil, err
	}
	return cached, nil
}

// getOrFetchSnapshotLocked serves a tag-style tree pinned to an exact
// sha. Once fetched it is never re-resolved to a newer commit; it only
// expires and is re-fetched from upstream after tagSnapshotTTL.
func (in *Instance) getOrFetchSnapshotLocked(sha string, refresh bool) (*Tree, error) {
	treeID := cacheKeyForSHA(sha)

	cached, err := in.getTreeLocked(treeID)
	if err != nil {
		return nil, err
	}
	if cached != nil && !refresh && cached.ExpiresAt.After(time.Now()) {
		if cached.Files, err = in.listFilesLocked(treeID); err != nil {
			return nil, err
		}
		return cached, nil
	}

	files, err := in.fetchTree(sha)
	if err != nil {
		return nil, fmt.Errorf("fetch tree snapshot %s: %w", sha, err)
	}

	now := time.Now()
	expiresAt := now.Add(tagSnapshotTTL)

	tx, err := in.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin snapshot replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM files WHERE tree_id = ?`, treeID); err != nil {
		return nil, fmt.Errorf("delete stale snapshot files: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM trees WHERE tree_id = ?`, treeID); err != nil {
		return nil, fmt.Errorf("delete stale snapshot: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO trees (tree_id, branch, commit_sha, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		treeID, "", sha, now.Format(time.RFC3339), expiresAt.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	for _, f := range files {
		if _, err := tx.Exec(`INSERT INTO files (id, tree_id, path, type, size, sha) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), treeID, f.Path, f.Type, f.Size, f.SHA); err != nil {
			return nil, fmt.Errorf("insert snapshot file %s: %w", f.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot replace: %w", err)
	}

	return &Tree{TreeID: treeID, CommitSHA: sha, CreatedAt: now, ExpiresAt: expiresAt, Files: files}, nil
}

// refreshBranchLocked resolves branch's current head sha, fetches a
// fresh tree, and replaces the branch-<name> cache entry. Caller must
// hold in.mu.
func (in *Instance) refreshBranchLocked(branch string) (*Tree, error) {
	sha, err := in.resolveBranchSHA(branch)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	files, err := in.fetchTree(sha)
	if err != nil {
		return nil, fmt.Errorf("fetch tree for %s@%s: %w", branch, sha, err)
	}

	treeID := cacheKeyForBranch(branch)
	now := time.Now()
	ttl := ttlFor(branch)
	expiresAt := now.Add(ttl)

	tx, err := in.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tree replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM files WHERE tree_id = ?`, treeID); err != nil {
		return nil, fmt.Errorf("delete stale files: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM trees WHERE tree_id = ?`, treeID); err != nil {
		return nil, fmt.Errorf("delete stale tree: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO trees (tree_id, branch, commit_sha, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		treeID, branch, sha, now.Format(time.RFC3339), expiresAt.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("insert tree: %w", err)
	}
	for _, f := range files {
		if _, err := tx.Exec(`INSERT INTO files (id, tree_id, path, type, size, sha) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), treeID, f.Path, f.Type, f.Size, f.SHA); err != nil {
			return nil, fmt.Errorf("insert file %s: %w", f.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tree replace: %w", err)
	}

	in.broadcast("tree-refreshed", map[string]any{"branch": branch, "commitSha": sha}, "")

	return &Tree{TreeID: treeID, Branch: branch, CommitSHA: sha, CreatedAt: now, ExpiresAt: expiresAt, Files: files}, nil
}

func (in *Instance) getTreeLocked(treeID string) (*Tree, error) {
	row := in.db.QueryRow(`SELECT tree_id, branch, commit_sha, created_at, expires_at FROM trees WHERE tree_id = ?`, treeID)
	var t Tree
	var createdAt, expiresAt string
	err := row.Scan(&t.TreeID, &t.Branch, &t.CommitSHA, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &t, nil
}

func (in *Instance) listFilesLocked(treeID string) ([]File, error) {
	rows, err := in.db.Query(`SELECT path, type, size, sha FROM files WHERE tree_id = ? ORDER BY path`, treeID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var size sql.NullInt64
		if err := rows.Scan(&f.Path, &f.Type, &size, &f.SHA); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if size.Valid {
			f.Size = &size.Int64
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// filterFiles keeps entries at or below path (prefix-safe, matching
// the zone-membership boundary rule) and within depth path segments
// of it. depth < 0 means unlimited.
func filterFiles(files []File, path string, depth int) []File {
	if path == "" && depth < 0 {
		return files
	}
	out := make([]File, 0, len(files))
	for _, f := range files {
		if path != "" && f.Path != path && !strings.HasPrefix(f.Path, path+"/") {
			continue
		}
		if depth >= 0 {
			rel := strings.TrimPrefix(f.Path, path)
			rel = strings.TrimPrefix(rel, "/")
			if rel != "" && strings.Count(rel, "/") > depth {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// GetFile returns one file's cached metadata from branch's current
// tree, refreshing first if the cache is expired.
func (in *Instance) GetFile(branch, path string) (*File, error) {
	tree, err := in.ListTree(TreeQuery{Branch: branch, Depth: -1})
	if err != nil {
		return nil, err
	}
	for _, f := range tree.Files {
		if f.Path == path {
			return &f, nil
		}
	}
	return nil, nil
}
