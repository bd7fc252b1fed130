package schema

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boyter/gocodewalker"
	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/consts"
)

// LoadDir reads every SQL file below dir into a FileSet keyed by the slash-separated path
// relative to dir. Ignore files are not consulted and hidden files are read, only the .git
// directory is skipped.
//
// Example:
//
//	files, err := schema.LoadDir("db/schema")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	script, err := schema.Merge(files)
func LoadDir(dir string) (FileSet, error) {
	return LoadTree(dir, dir)
}

// LoadTree reads every SQL file below dir like LoadDir, but keys the files by their path
// relative to base, which must contain dir. With base set to the repository root, the keys
// match the paths a commit of the same tree would produce, so root-relative imports such as
// "-- import schema/schema.sql" resolve the same way on disk as they do in git.
//
// Example:
//
//	files, err := schema.LoadTree(".", "db/schema")
//	// files has keys like "db/schema/tables/users.sql"
func LoadTree(base, dir string) (FileSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}

	base, err = resolveDir(base)
	if err != nil {
		return nil, err
	}

	dir, err = resolveDir(dir)
	if err != nil {
		return nil, err
	}

	if rel, err := filepath.Rel(base, dir); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.Errorf("%s is not below %s", dir, base)
	}

	queue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(dir, queue)
	walker.AllowListExtensions = []string{strings.TrimPrefix(consts.SQLExtension, ".")}
	walker.IgnoreGitIgnore = true
	walker.IgnoreIgnoreFile = true
	walker.IgnoreGitModules = true
	walker.IncludeHidden = true
	walker.ExcludeDirectory = []string{".git"}

	var (
		mu      sync.Mutex
		walkErr error
	)
	walker.SetErrorHandler(func(e error) bool {
		mu.Lock()
		defer mu.Unlock()
		if walkErr == nil {
			walkErr = e
		}
		return true
	})

	files := make(FileSet)
	var readErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range queue {
			if readErr != nil {
				continue
			}

			rel, err := filepath.Rel(base, f.Location)
			if err != nil {
				readErr = errors.Wrapf(err, "failed to relativize %s", f.Location)
				continue
			}

			data, err := os.ReadFile(f.Location)
			if err != nil {
				readErr = errors.Wrapf(err, "failed to read file %s", f.Location)
				continue
			}

			files[filepath.ToSlash(rel)] = string(data)
		}
	}()

	if err := walker.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", dir)
	}

	wg.Wait()
	if readErr != nil {
		return nil, readErr
	}

	if walkErr != nil {
		return nil, errors.Wrapf(walkErr, "failed to walk %s", dir)
	}

	return files, nil
}

// resolveDir returns the absolute, symlink free form of dir so paths below it can be made
// relative to one another.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", dir)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", dir)
	}

	return resolved, nil
}
