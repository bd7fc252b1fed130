package repo

import (
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrRevisionNotFound is returned when a revision expression cannot be resolved to a commit.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrPathNotFound is returned when no file of the resolved tree matches the requested path.
	ErrPathNotFound = errors.New("path not found")

	// ErrEncoding is returned when a matched file is binary or not valid UTF-8.
	ErrEncoding = errors.New("invalid file encoding")
)

type (
	// Blob is a file stored in a commit's tree.
	Blob struct {
		// Path is the slash-separated path from the repository root
		Path string

		// Content is the raw file content
		Content []byte
	}

	// TreeStore is a read-only view of a versioned file tree.
	TreeStore interface {
		// ResolveRevision resolves a revision expression (branch, tag, hash, HEAD^1, ...) to a
		// commit id. Unresolvable revisions yield ErrRevisionNotFound.
		ResolveRevision(rev string) (string, error)

		// ListBlobs returns every file of the commit's tree whose path satisfies match.
		ListBlobs(commitID string, match func(path string) bool) ([]Blob, error)
	}

	// MemoryStore is an in-memory TreeStore mapping revisions directly to file trees. It is
	// mostly useful in tests.
	MemoryStore map[string]map[string]string
)

// ResolveRevision returns rev when the store holds a tree for it.
func (s MemoryStore) ResolveRevision(rev string) (string, error) {
	if _, ok := s[rev]; !ok {
		return "", errors.Wrap(ErrRevisionNotFound, rev)
	}

	return rev, nil
}

// ListBlobs returns the matching files of the tree stored for commitID, sorted by path.
func (s MemoryStore) ListBlobs(commitID string, match func(path string) bool) ([]Blob, error) {
	tree, ok := s[commitID]
	if !ok {
		return nil, errors.Wrap(ErrRevisionNotFound, commitID)
	}

	var blobs []Blob
	for path, content := range tree {
		if match(path) {
			blobs = append(blobs, Blob{Path: path, Content: []byte(content)})
		}
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Path < blobs[j].Path })
	return blobs, nil
}
