package utils

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN-1; longer names are silently truncated by the server.
const MaxIdentifierLength = 63

// ErrInvalidIdentifier is returned by ValidateIdentifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier checks that name is a plain (unquoted-safe) PostgreSQL identifier that the
// server will not truncate.
//
// Examples:
//   - "postgit_diff_source" -> nil
//   - "_tmp$1" -> nil
//   - "" -> ErrInvalidIdentifier
//   - "1db" -> ErrInvalidIdentifier
//   - "my-db" -> ErrInvalidIdentifier
//   - "db; drop database prod" -> ErrInvalidIdentifier
func ValidateIdentifier(name string) error {
	if len(name) > MaxIdentifierLength {
		return errors.Wrapf(ErrInvalidIdentifier, "%q exceeds %d bytes", name, MaxIdentifierLength)
	}

	if !validIdentifier.MatchString(name) {
		return errors.Wrapf(ErrInvalidIdentifier, "%q", name)
	}

	return nil
}

// QuoteIdentifier wraps an identifier in double quotes, doubling any embedded quotes.
//
// Examples:
//   - "users" -> "\"users\""
//   - "MyDb" -> "\"MyDb\"" (case is preserved)
//   - "a\"b" -> "\"a\"\"b\""
//   - "\"users\"" -> "\"users\"" (already quoted, not double-quoted)
//   - "" -> ""
func QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}

	if IsQuoted(name) {
		return name
	}

	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IsQuoted checks if a string is a single double-quoted identifier.
//
// Examples:
//   - "\"users\"" -> true
//   - "users" -> false
//   - "\"a\"\"b\"" -> true (escaped quote inside)
//   - "\"a\".\"b\"" -> false (qualified name, not a single identifier)
func IsQuoted(s string) bool {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return false
	}

	inner := s[1 : len(s)-1]
	return !strings.Contains(strings.ReplaceAll(inner, `""`, ""), `"`)
}
