package repo

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/schema"
)

// MatchMode controls how a requested path selects files of a tree.
type MatchMode int

const (
	// MatchSegments selects the file equal to the path or the files below the directory it
	// names. "schema" matches "schema/a.sql" but not "schema2/a.sql".
	MatchSegments MatchMode = iota

	// MatchPrefix selects every file whose path starts with the requested path, so "schema"
	// also matches "schema2/a.sql".
	MatchPrefix
)

// Reader selects schema files from the trees of a TreeStore.
type Reader struct {
	store TreeStore
	mode  MatchMode
}

// NewReader creates a Reader for store using mode to select files.
func NewReader(store TreeStore, mode MatchMode) *Reader {
	return &Reader{store: store, mode: mode}
}

// ReadFiles returns the files found under path in the tree of rev, keyed by their path from the
// repository root.
//
// A leading "./" is ignored, so "./schema.sql" and "schema.sql" are the same request, and "."
// selects the whole tree.
//
// Errors:
//   - ErrRevisionNotFound when rev does not resolve
//   - ErrPathNotFound when no file matches path
//   - ErrEncoding when a matching file is binary or not valid UTF-8
func (r *Reader) ReadFiles(rev, path string) (schema.FileSet, error) {
	commit, err := r.store.ResolveRevision(rev)
	if err != nil {
		return nil, err
	}

	path = CleanPath(path)
	blobs, err := r.store.ListBlobs(commit, matcher(path, r.mode))
	if err != nil {
		return nil, err
	}

	if len(blobs) == 0 {
		return nil, errors.Wrapf(ErrPathNotFound, "%s at %s", displayPath(path), rev)
	}

	files := make(schema.FileSet, len(blobs))
	for _, b := range blobs {
		if bytes.IndexByte(b.Content, 0) >= 0 || !utf8.Valid(b.Content) {
			return nil, errors.Wrapf(ErrEncoding, "%s at %s", b.Path, rev)
		}

		files[b.Path] = string(b.Content)
	}

	return files, nil
}

// ResolveSchema reads the files under path at rev and merges them into one script.
//
// Example:
//
//	store, err := repo.OpenGitStore(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	script, err := repo.ResolveSchema(store, "main", "db/schema", repo.MatchSegments)
func ResolveSchema(store TreeStore, rev, path string, mode MatchMode) (string, error) {
	files, err := NewReader(store, mode).ReadFiles(rev, path)
	if err != nil {
		return "", err
	}

	script, err := schema.Merge(files)
	if err != nil {
		return "", errors.Wrapf(err, "failed to merge %s at %s", displayPath(path), rev)
	}

	return script, nil
}

// CleanPath strips leading "./" segments and trailing slashes from a requested path. The
// result is "" for the repository root.
func CleanPath(path string) string {
	path = strings.TrimSpace(path)
	for strings.HasPrefix(path, "./") {
		path = strings.TrimLeft(path[2:], "/")
	}

	if path == "." {
		return ""
	}

	return strings.TrimRight(path, "/")
}

func matcher(path string, mode MatchMode) func(string) bool {
	if path == "" {
		return func(string) bool { return true }
	}

	if mode == MatchPrefix {
		return func(p string) bool { return strings.HasPrefix(p, path) }
	}

	return func(p string) bool {
		return p == path || strings.HasPrefix(p, path+"/")
	}
}

func displayPath(path string) string {
	if path == "" {
		return "."
	}

	return path
}
