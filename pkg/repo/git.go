package repo

import (
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// GitStore is a TreeStore backed by a git repository.
type GitStore struct {
	repo *git.Repository
}

// OpenGitStore opens the git repository containing path. Parent directories are searched for
// the .git directory, so any directory inside the work tree can be given.
//
// Example:
//
//	store, err := repo.OpenGitStore(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	commit, err := store.ResolveRevision("HEAD^1")
func OpenGitStore(path string) (*GitStore, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open git repository at %s", path)
	}

	return NewGitStore(r), nil
}

// WorkTreeRoot returns the root of the work tree containing path. Keys of files read from disk
// are made relative to it so root-relative imports resolve the same way they do in a commit.
func WorkTreeRoot(path string) (string, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.Wrapf(err, "failed to open git repository at %s", path)
	}

	wt, err := r.Worktree()
	if err != nil {
		return "", errors.Wrapf(err, "repository at %s has no work tree", path)
	}

	return wt.Filesystem.Root(), nil
}

// NewGitStore wraps an already opened repository.
func NewGitStore(r *git.Repository) *GitStore {
	return &GitStore{repo: r}
}

// ResolveRevision resolves rev to the hash of the commit it names.
func (s *GitStore) ResolveRevision(rev string) (string, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", errors.Wrapf(ErrRevisionNotFound, "%s: %v", rev, err)
	}

	// annotated tags resolve to the tag object, peel to the commit
	if _, err := s.repo.CommitObject(*hash); err != nil {
		tag, tagErr := s.repo.TagObject(*hash)
		if tagErr != nil {
			return "", errors.Wrapf(ErrRevisionNotFound, "%s does not name a commit", rev)
		}

		commit, tagErr := tag.Commit()
		if tagErr != nil {
			return "", errors.Wrapf(ErrRevisionNotFound, "%s does not name a commit", rev)
		}

		return commit.Hash.String(), nil
	}

	return hash.String(), nil
}

// ListBlobs walks the commit's tree and returns every regular file whose path satisfies match.
// Submodules and symlinks are skipped.
func (s *GitStore) ListBlobs(commitID string, match func(path string) bool) ([]Blob, error) {
	commit, err := s.repo.CommitObject(plumbing.NewHash(commitID))
	if err != nil {
		return nil, errors.Wrapf(ErrRevisionNotFound, "%s: %v", commitID, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tree of commit %s", commitID)
	}

	var blobs []Blob
	err = tree.Files().ForEach(func(f *object.File) error {
		if f.Mode == filemode.Symlink || !match(f.Name) {
			return nil
		}

		r, err := f.Reader()
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", f.Name)
		}
		defer func() { _ = r.Close() }()

		content, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", f.Name)
		}

		blobs = append(blobs, Blob{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return blobs, nil
}
