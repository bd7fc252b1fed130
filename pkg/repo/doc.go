// Package repo reads schema files out of versioned trees.
//
// A TreeStore resolves revisions and lists the files of a commit. GitStore implements it on
// top of a local git repository and MemoryStore keeps trees in memory for tests. Reader
// selects the files found under a path of a revision and ResolveSchema merges them into a
// single script with schema.Merge:
//
//	store, err := repo.OpenGitStore(".")
//	if err != nil {
//		return err
//	}
//
//	current, err := repo.ResolveSchema(store, "HEAD^1", "db/schema", repo.MatchSegments)
//	desired, err := repo.ResolveSchema(store, "HEAD", "db/schema", repo.MatchSegments)
//
// Files are keyed by their path from the repository root, so root-relative imports name
// files the same way git does.
package repo
