package gittree

import (
	"fmt"
	"strings"
)

// globToLike converts a glob pattern (** and * both become %, ?
// becomes _) to a SQL LIKE pattern, escaping any literal % or _ in
// the input.
func globToLike(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
			}
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteByte(pattern[i])
		default:
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}

// SearchFiles matches glob against the named branch's cached tree
// paths, refreshing the tree first if its cache has expired.
func (in *Instance) SearchFiles(branch, glob string) ([]File, error) {
	tree, err := in.ListTree(TreeQuery{Branch: branch, Depth: -1})
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	like := globToLike(glob)
	rows, err := in.db.Query(`SELECT path, type, size, sha FROM files WHERE tree_id = ? AND path LIKE ? ESCAPE '\' ORDER BY path`,
		tree.TreeID, like)
	if err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanSearchFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func scanSearchFile(row interface{ Scan(dest ...any) error }) (*File, error) {
	var f File
	var size *int64
	if err := row.Scan(&f.Path, &f.Type, &size, &f.SHA); err != nil {
		return nil, fmt.Errorf("scan search result: %w", err)
	}
	f.Size = size
	return &f, nil
}
