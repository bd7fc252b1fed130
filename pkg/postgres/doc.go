// Package postgres manages the lifecycle of disposable PostgreSQL databases.
//
// Client creates and drops databases through the server's maintenance database and loads
// SQL scripts into them in a single transaction. Every call opens and closes its own
// connection; nothing is pooled across calls.
//
// Failures are reported as *Error values classified as ErrConnection or ErrStatement:
//
//	err := client.LoadScript(ctx, db, script)
//	switch {
//	case errors.Is(err, postgres.ErrConnection):
//		// the server could not be reached
//	case errors.Is(err, postgres.ErrStatement):
//		// the server rejected the script, nothing was applied
//	}
package postgres
