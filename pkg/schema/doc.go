// Package schema turns a tree of SQL files into a single script that can be loaded into
// a database in one go.
//
// Schema files declare their dependencies with import directives. A directive is any line
// ending in "-- import <path>", where the path names another file of the same tree:
//
//	-- import ../001_schema.sql
//	-- import tables/users.sql
//	create view my_app.active_users as select * from my_app.users where active;
//
// Paths starting with "./" or "../" are resolved against the directory of the importing
// file. Every other path is relative to the root of the tree. Both forms are normalized
// lexically, so "tables/../tables/users.sql" and "tables/users.sql" name the same file.
//
// Merge orders the files so that every imported file precedes its importers and
// concatenates their contents with a newline separator. Files that take part in no import
// relationship keep their lexicographic order, which makes the output a pure function of
// the file set:
//
//	files, err := schema.LoadDir("db/schema")
//	if err != nil {
//		return err
//	}
//
//	script, err := schema.Merge(files)
//	if errors.Is(err, schema.ErrDependencyCycle) {
//		// two or more files import each other
//	}
//
// Imports that name a file missing from the tree are ignored. They neither constrain the
// order nor contribute content. The directive lines themselves are kept verbatim in the
// merged script since they are plain SQL comments.
package schema
