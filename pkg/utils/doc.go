// Package utils provides small helpers shared across postgit packages.
//
// # Identifier Utilities (identifier.go)
//
// Database names coming from configuration end up in CREATE DATABASE and DROP DATABASE
// statements, which cannot be parameterized. ValidateIdentifier rejects anything that is not a
// plain PostgreSQL identifier and QuoteIdentifier renders the name so the server keeps its case:
//
//	if err := utils.ValidateIdentifier(name); err != nil {
//		return err
//	}
//
//	stmt := "CREATE DATABASE " + utils.QuoteIdentifier(name)
//	// Result: CREATE DATABASE "postgit_diff_source"
//
// QuoteIdentifier is idempotent, calling it on an already quoted identifier returns it as-is.
// IsQuoted reports whether a name already carries its quotes.
package utils
