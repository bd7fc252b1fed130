// Package pipeline orchestrates a diff-and-apply cycle.
//
// A run moves through the following states:
//
//	Idle -> StagingSource -> StagingTarget -> Diffing -> Applying -> Succeeded
//	                                                              \-> FailedRecoverable
//	                                                              \-> FailedFatal
//
// and returns to Idle when it ends. Staging recreates the comparison databases and loads the
// schemas into them, Diffing runs the diff engine, and Applying loads the computed script into
// the target database. The comparison databases are dropped as soon as the diff is done,
// whatever its outcome.
//
// Three entry points share these steps:
//
//   - ComputeDiff stages both schemas and returns the migration script
//   - Push does the same and applies the script; every failure is fatal
//   - Deploy diffs the live target against a desired schema and applies the result; failures
//     are recoverable so a watch loop can carry on
//
// With WithRecreateOnFail a failed apply drops and recreates the target database, computes
// the migration again from the empty database and retries once.
package pipeline
