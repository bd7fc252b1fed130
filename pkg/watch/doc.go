// Package watch keeps a database in sync with a schema directory.
//
// A Coordinator registers a watch on every directory below its root and feeds the raw
// filesystem events through a debouncer. Once events stop arriving for the debounce window,
// the batch is inspected. If any event touched a .sql file, every SQL file below the root is
// loaded, merged with schema.Merge and handed to the Deployer:
//
//	p := pipeline.New(client, engine, cfg.DiffEngine, cfg.Target,
//		pipeline.WithRecreateOnFail(cfg.Watch.RecreateDBOnFail),
//	)
//
//	err := watch.NewCoordinator("db/schema", p).Watch(ctx)
//
// Each deploy prints "deploying changes" followed by a check mark or a cross. Errors are
// printed and the coordinator waits for the next change.
//
// Files are keyed by their path from the root of the git work tree containing the watched
// directory, the same keys a commit of that tree yields. A root-relative import like
// "-- import schema/schema.sql" therefore orders files identically for watch and push. Outside
// of a work tree, keys are relative to the watched directory.
package watch
