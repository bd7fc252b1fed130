package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/pseudomuto/postgit/pkg/repo"
	"github.com/pseudomuto/postgit/pkg/schema"
)

const gitDir = ".git"

type (
	// Deployer migrates the target database to a desired schema. pipeline.Pipeline implements
	// it.
	Deployer interface {
		Deploy(ctx context.Context, desired string) (*pipeline.Result, error)
	}

	// Option configures a Coordinator.
	Option func(*Coordinator)

	// Coordinator redeploys a schema directory whenever one of its SQL files changes.
	Coordinator struct {
		root     string
		base     string
		deployer Deployer
		debounce time.Duration
		logger   *slog.Logger
		stdout   io.Writer
		stderr   io.Writer
	}
)

// WithDebounce sets the quiescence window used to coalesce file events (default: 1s).
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithBase sets the directory file keys are relative to. It defaults to the root of the git
// work tree containing the watched directory, or the watched directory itself outside of a
// repository.
func WithBase(dir string) Option {
	return func(c *Coordinator) { c.base = dir }
}

// WithLogger sets the logger for the coordinator (default: slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithOutput sets the writers progress and deploy errors are printed to (default: os.Stdout
// and os.Stderr).
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Coordinator) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// NewCoordinator creates a Coordinator watching root and deploying through deployer.
//
// Example:
//
//	coordinator := watch.NewCoordinator("db/schema", p,
//		watch.WithDebounce(cfg.Watch.DebounceWindow()),
//	)
//
//	// blocks until ctx is cancelled
//	err := coordinator.Watch(ctx)
func NewCoordinator(root string, deployer Deployer, opts ...Option) *Coordinator {
	c := &Coordinator{
		root:     root,
		deployer: deployer,
		debounce: consts.DefaultDebounce,
		logger:   slog.Default(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Watch watches every directory below the root and redeploys the schema after each burst of
// changes touching a SQL file. Deploys run one at a time. A failed deploy is printed and the
// loop carries on.
//
// Watch returns when ctx is cancelled, or with an error when the root cannot be watched.
func (c *Coordinator) Watch(ctx context.Context) error {
	info, err := os.Stat(c.root)
	if err != nil {
		return errors.Wrapf(err, "failed to watch %s", c.root)
	}
	if !info.IsDir() {
		return errors.Errorf("failed to watch %s: not a directory", c.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer func() { _ = fsw.Close() }()

	if err := c.addTree(fsw, c.root); err != nil {
		return err
	}

	base := c.keyBase()
	c.logger.Debug("Keying schema files", "base", base)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := newDebouncer(c.debounce, fsw.Events)
	d.onEvent = func(ev fsnotify.Event) {
		// directories created after start need their own watch
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := c.addTree(fsw, ev.Name); err != nil {
					c.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
		}
	}
	go d.run(ctx)

	errs := fsw.Errors
	_, _ = fmt.Fprintf(c.stdout, "watching %s ...\n", c.root)
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			c.logger.Warn("File watcher error", "error", err)

		case batch := <-d.out:
			if !touchesSQL(batch) {
				c.logger.Debug("Ignoring file events", "count", len(batch))
				continue
			}

			c.trigger(ctx, base)
		}
	}
}

func (c *Coordinator) trigger(ctx context.Context, base string) {
	_, _ = fmt.Fprint(c.stdout, "deploying changes ")

	res, err := c.deploy(ctx, base)
	if err != nil {
		_, _ = fmt.Fprintln(c.stdout, "❌")
		_, _ = fmt.Fprintln(c.stderr, err)
		return
	}

	_, _ = fmt.Fprintln(c.stdout, "✓")
	if res != nil && res.Recreated {
		_, _ = fmt.Fprintln(c.stdout, "target database was recreated")
	}
}

func (c *Coordinator) deploy(ctx context.Context, base string) (*pipeline.Result, error) {
	files, err := schema.LoadTree(base, c.root)
	if err != nil {
		return nil, err
	}

	desired, err := schema.Merge(files)
	if err != nil {
		return nil, errors.Wrap(err, "the schema in the watched directory could not be merged")
	}

	return c.deployer.Deploy(ctx, desired)
}

// keyBase returns the directory schema file keys are relative to.
func (c *Coordinator) keyBase() string {
	if c.base != "" {
		return c.base
	}

	root, err := repo.WorkTreeRoot(c.root)
	if err != nil {
		c.logger.Debug("Watched directory is not in a git work tree", "path", c.root, "error", err)
		return c.root
	}

	return root
}

// addTree watches dir and every directory below it except .git.
func (c *Coordinator) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to walk %s", path)
		}

		if !d.IsDir() {
			return nil
		}

		if d.Name() == gitDir {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}

		c.logger.Debug("Watching directory", "path", path)
		return nil
	})
}

func touchesSQL(batch []fsnotify.Event) bool {
	for _, ev := range batch {
		if strings.EqualFold(filepath.Ext(ev.Name), consts.SQLExtension) {
			return true
		}
	}

	return false
}
