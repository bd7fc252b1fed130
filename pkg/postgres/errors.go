package postgres

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConnection classifies failures to reach or authenticate against a server.
	ErrConnection = errors.New("database connection error")

	// ErrStatement classifies statements rejected by the server.
	ErrStatement = errors.New("database statement error")
)

// Error describes a failed database operation. It matches its Kind with errors.Is and unwraps to
// the driver error, which carries the server's message.
type Error struct {
	// Kind is ErrConnection or ErrStatement
	Kind error

	// Op is the failed operation (create, drop, load)
	Op string

	// Database is the name of the database the operation targeted
	Database string

	// Err is the underlying driver error
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Database, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func connectionError(op, db string, err error) error {
	return &Error{Kind: ErrConnection, Op: op, Database: db, Err: err}
}

func statementError(op, db string, err error) error {
	return &Error{Kind: ErrStatement, Op: op, Database: db, Err: err}
}
