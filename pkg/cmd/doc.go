// Package cmd provides the CLI commands for the postgit tool.
//
// Commands are plain functions returning a *cli.Command, following the urfave/cli/v3
// pattern. Their dependencies (the loaded configuration, the database client and the diff
// engine) are injected by fx, and Module registers every command in the "commands" value
// group consumed by Run.
//
// # Available Commands
//
//   - diff: print the migration between the schema at two git revisions
//   - push: apply that migration to the target database
//   - watch: redeploy a schema directory to the target database on every change
//
// diff and push read schemas from git rather than the work tree:
//
//	postgit diff --from HEAD^1 --to HEAD db/schema
//	postgit diff --to v2 --from v1 --source-path schema db/schema
//	postgit push -r ../app --to main db/schema
//
// Omitting --from diffs against an empty database, which yields the script creating the
// whole schema.
//
// # Global Options
//
//   - --verbose: log debug output to stderr
//   - --help, -h: display command help
//   - --version: display version information
package cmd
