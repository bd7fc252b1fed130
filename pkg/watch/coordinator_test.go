package watch_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/cmd/testutil"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	. "github.com/pseudomuto/postgit/pkg/watch"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeDeployer struct {
	deploys chan string
	err     error
}

func (f *fakeDeployer) Deploy(_ context.Context, desired string) (*pipeline.Result, error) {
	f.deploys <- desired
	if f.err != nil {
		return &pipeline.Result{State: pipeline.FailedRecoverable, Err: f.err}, f.err
	}

	return &pipeline.Result{State: pipeline.Succeeded}, nil
}

type harness struct {
	dir      string
	deployer *fakeDeployer
	stdout   *syncBuffer
	stderr   *syncBuffer
	done     chan error
	cancel   context.CancelFunc
}

func startWatch(t *testing.T, deployErr error) *harness {
	t.Helper()

	return startWatchIn(t, t.TempDir(), deployErr)
}

func startWatchIn(t *testing.T, dir string, deployErr error) *harness {
	t.Helper()

	h := &harness{
		dir:      dir,
		deployer: &fakeDeployer{deploys: make(chan string, 10), err: deployErr},
		stdout:   &syncBuffer{},
		stderr:   &syncBuffer{},
		done:     make(chan error, 1),
	}

	coordinator := NewCoordinator(h.dir, h.deployer,
		WithDebounce(50*time.Millisecond),
		WithOutput(h.stdout, h.stderr),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- coordinator.Watch(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	require.Eventually(t, func() bool {
		return strings.Contains(h.stdout.String(), "watching")
	}, 2*time.Second, 10*time.Millisecond)

	return h
}

func (h *harness) write(t *testing.T, name, content string) {
	t.Helper()

	path := filepath.Join(h.dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), consts.ModeDir))
	require.NoError(t, os.WriteFile(path, []byte(content), consts.ModeFile))
}

func (h *harness) nextDeploy(t *testing.T) string {
	t.Helper()

	select {
	case desired := <-h.deployer.deploys:
		return desired
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a deploy")
		return ""
	}
}

// waitForDeploy consumes deploys until one carries want.
func (h *harness) waitForDeploy(t *testing.T, want string) {
	t.Helper()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case desired := <-h.deployer.deploys:
			if desired == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for a deploy of %q", want)
		}
	}
}

func (h *harness) requireNoDeploy(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case desired := <-h.deployer.deploys:
		t.Fatalf("unexpected deploy of %q", desired)
	case <-time.After(wait):
	}
}

func TestCoordinator(t *testing.T) {
	t.Run("deploys the merged schema after changes", func(t *testing.T) {
		h := startWatch(t, nil)

		h.write(t, "002_table.sql", "-- import 001_schema.sql\ncreate table my_app.user (id int primary key);")
		h.write(t, "001_schema.sql", "create schema my_app;")

		// writes may be split across batches, the last deploy sees both files
		want := "create schema my_app;\n-- import 001_schema.sql\ncreate table my_app.user (id int primary key);"
		h.waitForDeploy(t, want)

		require.Eventually(t, func() bool {
			return strings.Contains(h.stdout.String(), "deploying changes ✓")
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("ignores non sql files", func(t *testing.T) {
		h := startWatch(t, nil)

		h.write(t, "README.md", "# schema")
		h.write(t, "notes.txt", "todo")
		h.requireNoDeploy(t, 300*time.Millisecond)
	})

	t.Run("watches directories created later", func(t *testing.T) {
		h := startWatch(t, nil)

		require.NoError(t, os.MkdirAll(filepath.Join(h.dir, "tables"), consts.ModeDir))
		time.Sleep(200 * time.Millisecond)
		h.write(t, "tables/users.sql", "create table users (id int);")

		h.waitForDeploy(t, "create table users (id int);")
	})

	t.Run("keeps running after a failed deploy", func(t *testing.T) {
		h := startWatch(t, errors.New("relation \"users\" already exists"))

		h.write(t, "a.sql", "create table users (id int);")
		h.nextDeploy(t)

		require.Eventually(t, func() bool {
			return strings.Contains(h.stdout.String(), "deploying changes ❌")
		}, 2*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			return strings.Contains(h.stderr.String(), `relation "users" already exists`)
		}, 2*time.Second, 10*time.Millisecond)

		h.write(t, "b.sql", "create table posts (id int);")
		h.nextDeploy(t)
	})

	t.Run("merge errors are reported without deploying", func(t *testing.T) {
		h := startWatch(t, nil)

		h.write(t, "a.sql", "-- import b.sql\na")
		h.write(t, "b.sql", "-- import a.sql\nb")

		require.Eventually(t, func() bool {
			return strings.Contains(h.stderr.String(), "dependency cycle")
		}, 5*time.Second, 10*time.Millisecond)
		require.Contains(t, h.stdout.String(), "❌")
	})

	t.Run("keys files from the work tree root", func(t *testing.T) {
		g := testutil.NewGitRepo(t)
		dir := filepath.Join(g.Dir, "schema")
		require.NoError(t, os.MkdirAll(dir, consts.ModeDir))

		h := startWatchIn(t, dir, nil)
		h.write(t, "a_user.sql", "-- import schema/b_schema.sql\ncreate table my_app.user (id int);")
		h.write(t, "b_schema.sql", "create schema my_app;")

		h.waitForDeploy(t, "create schema my_app;\n-- import schema/b_schema.sql\ncreate table my_app.user (id int);")
	})

	t.Run("reads hidden directories", func(t *testing.T) {
		h := startWatch(t, nil)

		require.NoError(t, os.MkdirAll(filepath.Join(h.dir, ".types"), consts.ModeDir))
		time.Sleep(200 * time.Millisecond)
		h.write(t, ".types/mood.sql", "create type mood as enum ('ok');")
		h.waitForDeploy(t, "create type mood as enum ('ok');")
	})

	t.Run("returns when cancelled", func(t *testing.T) {
		h := startWatch(t, nil)
		h.cancel()

		select {
		case err := <-h.done:
			require.NoError(t, err)
			h.done <- err
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not return")
		}
	})
}

func TestCoordinatorMissingRoot(t *testing.T) {
	deployer := &fakeDeployer{deploys: make(chan string, 1)}
	err := NewCoordinator(filepath.Join(t.TempDir(), "nope"), deployer).Watch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to watch")
}

func TestCoordinatorRootIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	require.NoError(t, os.WriteFile(path, nil, consts.ModeFile))

	deployer := &fakeDeployer{deploys: make(chan string, 1)}
	err := NewCoordinator(path, deployer).Watch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a directory")
}
