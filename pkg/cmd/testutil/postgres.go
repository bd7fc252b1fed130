package testutil

import (
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/stretchr/testify/require"
)

// OpenDB opens a database/sql handle on db, closed when the test ends.
func OpenDB(t *testing.T, db config.Postgres) *sql.DB {
	t.Helper()

	conn, err := sql.Open("postgres", db.URL()+"?sslmode=disable")
	require.NoError(t, err, "Failed to open %s", db)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.PingContext(t.Context()), "Failed to connect to %s", db)
	return conn
}

// Tables returns the schema-qualified names of the user tables in db, sorted.
func Tables(t *testing.T, db config.Postgres) []string {
	t.Helper()

	rows, err := OpenDB(t, db).QueryContext(t.Context(), `
		select table_schema || '.' || table_name
		from information_schema.tables
		where table_type = 'BASE TABLE'
		  and table_schema not in ('pg_catalog', 'information_schema')
		order by 1`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())

	return tables
}

// RequireTables asserts that db holds exactly the given user tables.
func RequireTables(t *testing.T, db config.Postgres, expected ...string) {
	t.Helper()

	require.Equal(t, expected, Tables(t, db), "Unexpected tables in %s", db.DBName)
}

// DatabaseExists reports whether db.DBName exists on db's server. The query runs against the
// maintenance database.
func DatabaseExists(t *testing.T, db config.Postgres) bool {
	t.Helper()

	var exists bool
	err := OpenDB(t, db.Maintenance("postgres")).
		QueryRowContext(t.Context(), "select exists (select 1 from pg_database where datname = $1)", db.DBName).
		Scan(&exists)
	require.NoError(t, err)

	return exists
}

// RequireNoDatabase asserts that db.DBName does not exist.
func RequireNoDatabase(t *testing.T, db config.Postgres) {
	t.Helper()

	require.False(t, DatabaseExists(t, db), "Database %s should not exist", db.DBName)
}
