// Package diff computes migration scripts by delegating to an external diff tool.
//
// The tool is given two database URLs and prints the SQL that turns the first database into
// the second. By default migra is used:
//
//	migra postgresql://postgres@localhost:5432/postgit_diff_source \
//	      postgresql://postgres@localhost:5432/postgit_diff_target --unsafe
//
// Any other tool can be configured as a shell command. It runs through sh with the URLs as
// its positional parameters:
//
//	diff_engine:
//	  command: my-diff-tool --from "$1" --to "$2"
package diff
