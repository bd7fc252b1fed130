package schema

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrDependencyCycle is returned by Merge when import directives form a cycle.
var ErrDependencyCycle = errors.New("dependency cycle found")

// importDirective matches lines ending in "-- import <path>". The directive may follow SQL on
// the same line and a file may contain any number of them.
var importDirective = regexp.MustCompile(`(?m)^.*--\s*import\s+(.*)$`)

type (
	// FileSet maps a normalized, slash-separated file path (no leading "./") to its raw content.
	FileSet map[string]string

	// Edge states that the content of From must appear before the content of To.
	Edge struct {
		From string
		To   string
	}
)

// Keys returns the paths in the set in lexicographic order.
func (fs FileSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

// Merge combines the files into a single script ordered so that every imported file precedes
// the files importing it.
//
// Import directives are lines ending in "-- import <path>". Paths starting with "./" or "../"
// are resolved against the importing file's directory, anything else is relative to the root
// of the set. Files that neither import nor are imported are chained in lexicographic order,
// which makes the output independent of map iteration order. Imports of paths missing from the
// set constrain nothing and contribute no content.
//
// A set with a single file is returned unchanged, an empty set yields an empty script.
//
// Example:
//
//	script, err := schema.Merge(schema.FileSet{
//		"schema/a.sql": "-- import schema/b.sql\ncreate table foo.bar(id int);",
//		"schema/b.sql": "create schema foo;",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// script == "create schema foo;\n-- import schema/b.sql\ncreate table foo.bar(id int);"
func Merge(files FileSet) (string, error) {
	switch len(files) {
	case 0:
		return "", nil
	case 1:
		for _, content := range files {
			return content, nil
		}
	}

	keys := files.Keys()
	g := newGraph()
	for _, key := range keys {
		g.addNode(key)
		for _, imported := range Imports(key, files[key]) {
			g.addEdge(imported, key)
		}
	}

	// Chain isolated files to their predecessor so unrelated files keep a stable order. The
	// first key has no predecessor and is chained to the second key instead.
	for i, key := range keys {
		if !g.isolated(key) {
			continue
		}

		if i == 0 {
			g.addEdge(keys[0], keys[1])
		} else {
			g.addEdge(keys[i-1], key)
		}
	}

	order, err := g.sort()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(files))
	for _, node := range order {
		if content, ok := files[node]; ok {
			parts = append(parts, content)
		}
	}

	return strings.Join(parts, "\n"), nil
}

// Edges returns the import edges declared by the files in the set, sorted by importing file
// and then by declaration order.
func Edges(files FileSet) []Edge {
	var edges []Edge
	for _, key := range files.Keys() {
		for _, imported := range Imports(key, files[key]) {
			edges = append(edges, Edge{From: imported, To: key})
		}
	}

	return edges
}

// Imports returns the normalized paths imported by the file at key, in declaration order.
//
// Examples (key "b/d/e.sql"):
//   - "-- import ../c.sql" -> "b/c.sql"
//   - "-- import ./f.sql" -> "b/d/f.sql"
//   - "-- import a.sql" -> "a.sql"
func Imports(key, content string) []string {
	matches := importDirective.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	imports := make([]string, 0, len(matches))
	for _, m := range matches {
		arg := strings.TrimSpace(m[1])
		if arg == "" {
			continue
		}

		if isRelative(arg) {
			arg = parentDir(key) + "/" + arg
		}

		imports = append(imports, NormalizePath(arg))
	}

	return imports
}

func isRelative(p string) bool {
	return p == "." || p == ".." || strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")
}

func parentDir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}

	return ""
}

// NormalizePath lexically collapses "." and ".." segments without touching the filesystem.
// Unlike path.Clean, a ".." that would climb above the root is dropped, and the result never
// starts with "/" or "./".
//
// Examples:
//   - "b/d/../c" -> "b/c"
//   - "./schema.sql" -> "schema.sql"
//   - "../x" -> "x"
//   - "a//b/" -> "a/b"
func NormalizePath(p string) string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	return strings.Join(out, "/")
}
