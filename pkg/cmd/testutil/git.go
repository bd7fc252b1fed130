package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/stretchr/testify/require"
)

// GitRepo is a throwaway git repository living in a test's temp directory.
type GitRepo struct {
	t    *testing.T
	Dir  string
	Repo *git.Repository
}

// NewGitRepo initializes an empty repository in a new temp directory.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err, "Failed to init git repository")

	return &GitRepo{t: t, Dir: dir, Repo: r}
}

// WriteFile writes content to path (slash-separated, relative to the work tree). Parent
// directories are created as needed.
func (g *GitRepo) WriteFile(path, content string) *GitRepo {
	g.t.Helper()

	full := filepath.Join(g.Dir, filepath.FromSlash(path))
	require.NoError(g.t, os.MkdirAll(filepath.Dir(full), consts.ModeDir))
	require.NoError(g.t, os.WriteFile(full, []byte(content), consts.ModeFile))
	return g
}

// Remove deletes path from the work tree.
func (g *GitRepo) Remove(path string) *GitRepo {
	g.t.Helper()

	require.NoError(g.t, os.RemoveAll(filepath.Join(g.Dir, filepath.FromSlash(path))))
	return g
}

// Commit stages every change of the work tree and commits it, returning the commit hash.
func (g *GitRepo) Commit(msg string) string {
	g.t.Helper()

	wt, err := g.Repo.Worktree()
	require.NoError(g.t, err)
	require.NoError(g.t, wt.AddWithOptions(&git.AddOptions{All: true}))

	hash, err := wt.Commit(msg, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  "postgit",
			Email: "postgit@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(g.t, err, "Failed to commit")

	return hash.String()
}

// Tag creates a lightweight tag pointing at HEAD.
func (g *GitRepo) Tag(name string) {
	g.t.Helper()

	head, err := g.Repo.Head()
	require.NoError(g.t, err)

	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), head.Hash())
	require.NoError(g.t, g.Repo.Storer.SetReference(ref))
}
