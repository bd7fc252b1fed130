package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	. "github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/stretchr/testify/require"
)

var (
	errStatement = errors.New("syntax error at or near \"tabel\"")

	spec = config.DiffEngine{
		Source: config.Postgres{Host: "localhost", Port: 5432, User: "postgres", DBName: "src"},
		Target: config.Postgres{Host: "localhost", Port: 5432, User: "postgres", DBName: "tgt"},
	}

	target = config.Postgres{Host: "localhost", Port: 5432, User: "postgres", DBName: "app"}
)

// fakeDB keeps databases in memory. A database's content is the list of scripts loaded into it.
type fakeDB struct {
	dbs      map[string][]string
	ops      []string
	failLoad map[string]int
	failDrop map[string]error
}

func newFakeDB(existing ...string) *fakeDB {
	db := &fakeDB{
		dbs:      make(map[string][]string),
		failLoad: make(map[string]int),
		failDrop: make(map[string]error),
	}

	for _, name := range existing {
		db.dbs[name] = nil
	}

	return db
}

func (f *fakeDB) Create(_ context.Context, db config.Postgres) error {
	f.ops = append(f.ops, "create "+db.DBName)
	if _, ok := f.dbs[db.DBName]; ok {
		return errors.Errorf("database %q already exists", db.DBName)
	}

	f.dbs[db.DBName] = nil
	return nil
}

func (f *fakeDB) Drop(_ context.Context, db config.Postgres) error {
	f.ops = append(f.ops, "drop "+db.DBName)
	if err := f.failDrop[db.DBName]; err != nil {
		return err
	}

	delete(f.dbs, db.DBName)
	return nil
}

func (f *fakeDB) LoadScript(_ context.Context, db config.Postgres, script string) error {
	f.ops = append(f.ops, "load "+db.DBName)
	if _, ok := f.dbs[db.DBName]; !ok {
		return errors.Errorf("database %q does not exist", db.DBName)
	}

	if f.failLoad[db.DBName] > 0 {
		f.failLoad[db.DBName]--
		return errStatement
	}

	if script != "" {
		f.dbs[db.DBName] = append(f.dbs[db.DBName], script)
	}

	return nil
}

func (f *fakeDB) content(name string) string {
	return strings.Join(f.dbs[name], ";")
}

func (f *fakeDB) exists(name string) bool {
	_, ok := f.dbs[name]
	return ok
}

// fakeEngine describes the databases it was asked to compare.
type fakeEngine struct {
	db    *fakeDB
	err   error
	specs []config.DiffEngine
}

func (e *fakeEngine) Diff(_ context.Context, spec config.DiffEngine) (string, error) {
	e.specs = append(e.specs, spec)
	if e.err != nil {
		return "", e.err
	}

	return fmt.Sprintf("from[%s] to[%s]", e.db.content(spec.Source.DBName), e.db.content(spec.Target.DBName)), nil
}

type recorder struct {
	states []State
}

func (r *recorder) observe(s State) {
	r.states = append(r.states, s)
}

func newPipeline(db *fakeDB, engine *fakeEngine, rec *recorder, opts ...Option) *Pipeline {
	opts = append(opts,
		WithObserver(rec.observe),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return New(db, engine, spec, target, opts...)
}

func requireNoComparisonDatabases(t *testing.T, db *fakeDB) {
	t.Helper()

	require.False(t, db.exists("src"), "source comparison database should be dropped")
	require.False(t, db.exists("tgt"), "target comparison database should be dropped")
}

func ptr(s string) *string {
	return &s
}

func TestComputeDiff(t *testing.T) {
	ctx := context.Background()

	t.Run("stages both schemas and diffs them", func(t *testing.T) {
		db := newFakeDB("app")
		engine := &fakeEngine{db: db}
		rec := &recorder{}

		script, err := newPipeline(db, engine, rec).ComputeDiff(ctx, ptr("create table a"), "create table b")
		require.NoError(t, err)
		require.Equal(t, "from[create table a] to[create table b]", script)

		require.Equal(t, []string{
			"drop src", "create src",
			"drop tgt", "create tgt",
			"load src", "load tgt",
			"drop src", "drop tgt",
		}, db.ops)
		require.Equal(t, []State{StagingSource, StagingTarget, Diffing, Succeeded, Idle}, rec.states)
		require.Equal(t, []config.DiffEngine{spec}, engine.specs)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("no source diffs against an empty database", func(t *testing.T) {
		db := newFakeDB()
		engine := &fakeEngine{db: db}

		script, err := newPipeline(db, engine, &recorder{}).ComputeDiff(ctx, nil, "create table b")
		require.NoError(t, err)
		require.Equal(t, "from[] to[create table b]", script)
		require.NotContains(t, db.ops, "load src")
		requireNoComparisonDatabases(t, db)
	})

	t.Run("heals leftovers of an aborted run", func(t *testing.T) {
		db := newFakeDB("src", "tgt")
		db.dbs["src"] = []string{"stale"}
		engine := &fakeEngine{db: db}

		script, err := newPipeline(db, engine, &recorder{}).ComputeDiff(ctx, nil, "b")
		require.NoError(t, err)
		require.Equal(t, "from[] to[b]", script)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("diff failure", func(t *testing.T) {
		db := newFakeDB()
		engine := &fakeEngine{db: db, err: errors.New("migra: connection refused")}
		rec := &recorder{}

		script, err := newPipeline(db, engine, rec).ComputeDiff(ctx, ptr("a"), "b")
		require.Error(t, err)
		require.Empty(t, script)
		require.Contains(t, err.Error(), "connection refused")
		require.Equal(t, []State{StagingSource, StagingTarget, Diffing, FailedFatal, Idle}, rec.states)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("staging failure", func(t *testing.T) {
		db := newFakeDB()
		db.failLoad["src"] = 1
		engine := &fakeEngine{db: db}

		_, err := newPipeline(db, engine, &recorder{}).ComputeDiff(ctx, ptr("create tabel a"), "b")
		require.True(t, errors.Is(err, errStatement))
		require.Contains(t, err.Error(), "failed to load source schema")
		require.Empty(t, engine.specs, "diff should not run")
		requireNoComparisonDatabases(t, db)
	})

	t.Run("failing reset is reported", func(t *testing.T) {
		db := newFakeDB()
		db.failDrop["tgt"] = errors.New("permission denied")
		engine := &fakeEngine{db: db}

		_, err := newPipeline(db, engine, &recorder{}).ComputeDiff(ctx, nil, "b")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to drop comparison database tgt: permission denied")
		require.Empty(t, engine.specs)
		require.False(t, db.exists("src"))
	})
}

func TestPush(t *testing.T) {
	ctx := context.Background()

	t.Run("first migration creates the schema from empty", func(t *testing.T) {
		db := newFakeDB("app")
		engine := &fakeEngine{db: db}
		rec := &recorder{}

		res, err := newPipeline(db, engine, rec).Push(ctx, nil, "create table users (id int, email text)")
		require.NoError(t, err)
		require.Equal(t, Succeeded, res.State)
		require.False(t, res.Recreated)
		require.Equal(t, "from[] to[create table users (id int, email text)]", res.Script)
		require.Equal(t, []string{res.Script}, db.dbs["app"])
		require.Equal(t, []State{StagingSource, StagingTarget, Diffing, Applying, Succeeded, Idle}, rec.states)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("apply failure is fatal without recreate", func(t *testing.T) {
		db := newFakeDB("app")
		db.dbs["app"] = []string{"existing"}
		db.failLoad["app"] = 1
		engine := &fakeEngine{db: db}
		rec := &recorder{}

		res, err := newPipeline(db, engine, rec).Push(ctx, ptr("a"), "b")
		require.True(t, errors.Is(err, ErrApply))
		require.True(t, errors.Is(err, errStatement))
		require.Equal(t, FailedFatal, res.State)
		require.Equal(t, err, res.Err)
		require.Equal(t, []string{"existing"}, db.dbs["app"], "target should be untouched")
		require.NotContains(t, db.ops, "drop app")
		require.Equal(t, FailedFatal, rec.states[len(rec.states)-2])
	})

	t.Run("recreate on fail retries from an empty database", func(t *testing.T) {
		db := newFakeDB("app")
		db.dbs["app"] = []string{"drifted"}
		db.failLoad["app"] = 1
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}, WithRecreateOnFail(true)).Push(ctx, ptr("a"), "b")
		require.NoError(t, err)
		require.Equal(t, Succeeded, res.State)
		require.True(t, res.Recreated)
		require.Equal(t, "from[] to[b]", res.Script)
		require.Equal(t, []string{"from[] to[b]"}, db.dbs["app"])
		require.Len(t, engine.specs, 2)

		require.Equal(t, []string{
			"drop src", "create src", "drop tgt", "create tgt", "load src", "load tgt", "drop src", "drop tgt",
			"load app",
			"drop app", "create app",
			"drop src", "create src", "drop tgt", "create tgt", "load tgt", "drop src", "drop tgt",
			"load app",
		}, db.ops)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("failed retry is reported", func(t *testing.T) {
		db := newFakeDB("app")
		db.failLoad["app"] = 2
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}, WithRecreateOnFail(true)).Push(ctx, nil, "b")
		require.True(t, errors.Is(err, ErrApply))
		require.Equal(t, FailedRecoverable, res.State)
		require.True(t, res.Recreated)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("failing target drop is not a recreate", func(t *testing.T) {
		db := newFakeDB("app")
		db.dbs["app"] = []string{"existing"}
		db.failLoad["app"] = 1
		db.failDrop["app"] = errors.New("permission denied")
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}, WithRecreateOnFail(true)).Push(ctx, ptr("a"), "b")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to drop target database")
		require.Equal(t, FailedFatal, res.State)
		require.False(t, res.Recreated)
		require.Equal(t, []string{"existing"}, db.dbs["app"])
		require.NotContains(t, db.ops, "create app")
		require.Len(t, engine.specs, 1)
	})

	t.Run("diff failure", func(t *testing.T) {
		db := newFakeDB("app")
		engine := &fakeEngine{db: db, err: errors.New("boom")}

		res, err := newPipeline(db, engine, &recorder{}).Push(ctx, nil, "b")
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrApply))
		require.Equal(t, FailedFatal, res.State)
		require.Empty(t, res.Script)
		require.NotContains(t, db.ops, "load app")
	})
}

func TestDeploy(t *testing.T) {
	ctx := context.Background()

	t.Run("diffs the live target against the desired schema", func(t *testing.T) {
		db := newFakeDB("app")
		db.dbs["app"] = []string{"live"}
		engine := &fakeEngine{db: db}
		rec := &recorder{}

		res, err := newPipeline(db, engine, rec).Deploy(ctx, "desired")
		require.NoError(t, err)
		require.Equal(t, Succeeded, res.State)
		require.Equal(t, "from[live] to[desired]", res.Script)
		require.Equal(t, []string{"live", "from[live] to[desired]"}, db.dbs["app"])

		require.Equal(t, []config.DiffEngine{spec.Reversed(target)}, engine.specs)
		require.Equal(t, []string{"drop src", "create src", "load src", "drop src", "load app"}, db.ops)
		require.Equal(t, []State{StagingTarget, Diffing, Applying, Succeeded, Idle}, rec.states)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("apply failure is recoverable", func(t *testing.T) {
		db := newFakeDB("app")
		db.failLoad["app"] = 1
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}).Deploy(ctx, "desired")
		require.True(t, errors.Is(err, ErrApply))
		require.Equal(t, FailedRecoverable, res.State)
	})

	t.Run("diff failure is recoverable", func(t *testing.T) {
		db := newFakeDB("app")
		engine := &fakeEngine{db: db, err: errors.New("boom")}

		res, err := newPipeline(db, engine, &recorder{}).Deploy(ctx, "desired")
		require.Error(t, err)
		require.Equal(t, FailedRecoverable, res.State)
		requireNoComparisonDatabases(t, db)
	})

	t.Run("recreate on fail rediffs against the empty target", func(t *testing.T) {
		db := newFakeDB("app")
		db.dbs["app"] = []string{"broken"}
		db.failLoad["app"] = 1
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}, WithRecreateOnFail(true)).Deploy(ctx, "desired")
		require.NoError(t, err)
		require.True(t, res.Recreated)
		require.Equal(t, "from[] to[desired]", res.Script)
		require.Equal(t, []string{"from[] to[desired]"}, db.dbs["app"])
		requireNoComparisonDatabases(t, db)
	})

	t.Run("missing target is recreated", func(t *testing.T) {
		db := newFakeDB()
		engine := &fakeEngine{db: db}

		res, err := newPipeline(db, engine, &recorder{}, WithRecreateOnFail(true)).Deploy(ctx, "desired")
		require.NoError(t, err)
		require.True(t, res.Recreated)
		require.True(t, db.exists("app"))
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		db := newFakeDB("app")
		rec := &recorder{}

		require.NoError(t, newPipeline(db, &fakeEngine{db: db}, rec).Apply(ctx, "alter table a"))
		require.Equal(t, []string{"alter table a"}, db.dbs["app"])
		require.Equal(t, []State{Applying, Succeeded, Idle}, rec.states)
	})

	t.Run("failure", func(t *testing.T) {
		db := newFakeDB("app")
		db.failLoad["app"] = 1
		pl := newPipeline(db, &fakeEngine{db: db}, &recorder{}, WithRecreateOnFail(true))

		err := pl.Apply(ctx, "alter tabel a")
		require.True(t, errors.Is(err, ErrApply))
		require.True(t, errors.Is(err, errStatement))
		require.Contains(t, err.Error(), "failed to apply migration: syntax error")
		require.NotContains(t, db.ops, "drop app", "Apply never recreates")
		require.Equal(t, Idle, pl.State())
	})
}

func TestState(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
	}{
		{Idle, "idle", false},
		{StagingSource, "staging source", false},
		{StagingTarget, "staging target", false},
		{Diffing, "diffing", false},
		{Applying, "applying", false},
		{Succeeded, "succeeded", true},
		{FailedRecoverable, "failed (recoverable)", true},
		{FailedFatal, "failed (fatal)", true},
		{State(42), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.state.String())
			require.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}
