package cmd

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/cmd/testutil"
	"github.com/pseudomuto/postgit/pkg/config"
)

const (
	initialSchema = `create schema my_app;
create table my_app.user (
  id int primary key generated always as identity,
  given_name text,
  family_name text,
  email text
);`

	requiredEmailSchema = `create schema my_app;
create table my_app.user (
  id int primary key generated always as identity,
  given_name text,
  family_name text,
  email text not null
);`

	splitSchema = `-- import schema/schema.sql
create table my_app.user (
  id int primary key generated always as identity,
  given_name text not null,
  family_name text,
  email text not null
);`

	emailMigration = `alter table "my_app"."user" alter column "email" set not null;`
)

// schemaRepo creates a repository with three commits: the initial schema.sql, a second
// revision making email required, and a third moving the schema into a schema/ directory.
// The commit hashes are returned oldest first.
func schemaRepo(t *testing.T) (*testutil.GitRepo, []string) {
	t.Helper()

	r := testutil.NewGitRepo(t)
	commits := []string{
		r.WriteFile("schema.sql", initialSchema).Commit("initial schema"),
		r.WriteFile("schema.sql", requiredEmailSchema).Commit("require email"),
	}

	r.Remove("schema.sql").
		WriteFile("schema/schema.sql", "create schema my_app;").
		WriteFile("schema/user.sql", splitSchema)
	commits = append(commits, r.Commit("split schema"))

	return r, commits
}

func testConfig() *config.Config {
	server := config.Postgres{Host: "localhost", Port: 5432, User: "postgres"}

	return &config.Config{
		Target: server.Maintenance("app"),
		DiffEngine: config.DiffEngine{
			Source: server.Maintenance("postgit_diff_source"),
			Target: server.Maintenance("postgit_diff_target"),
		},
		Watch:         config.Watch{Debounce: "50ms"},
		MaintenanceDB: "postgres",
	}
}

type load struct {
	db     string
	script string
}

// fakeDB records the scripts loaded into each database. It is shared with the watch loop's
// goroutine, hence the lock.
type fakeDB struct {
	mu       sync.Mutex
	ops      []string
	loads    []load
	failLoad map[string]int
}

func newFakeDB() *fakeDB {
	return &fakeDB{failLoad: make(map[string]int)}
}

func (f *fakeDB) Create(_ context.Context, db config.Postgres) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, "create "+db.DBName)
	return nil
}

func (f *fakeDB) Drop(_ context.Context, db config.Postgres) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, "drop "+db.DBName)
	return nil
}

func (f *fakeDB) LoadScript(_ context.Context, db config.Postgres, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, "load "+db.DBName)
	if f.failLoad[db.DBName] > 0 {
		f.failLoad[db.DBName]--
		return errors.Errorf("failed to load into %s", db.DBName)
	}

	f.loads = append(f.loads, load{db: db.DBName, script: script})
	return nil
}

// loaded returns the scripts loaded into the named database, oldest first.
func (f *fakeDB) loaded(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var scripts []string
	for _, l := range f.loads {
		if l.db == name {
			scripts = append(scripts, l.script)
		}
	}

	return scripts
}

func (f *fakeDB) hasOp(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.ops {
		if o == op {
			return true
		}
	}

	return false
}

// fakeEngine returns a canned script and records every spec it was asked to diff.
type fakeEngine struct {
	mu     sync.Mutex
	script string
	err    error
	specs  []config.DiffEngine
}

func (f *fakeEngine) Diff(_ context.Context, spec config.DiffEngine) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.specs = append(f.specs, spec)
	return f.script, f.err
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.specs)
}
