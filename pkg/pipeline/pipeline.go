package pipeline

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
)

// ErrApply matches every failure to load a migration into the target database.
var ErrApply = errors.New("failed to apply migration")

type (
	// Databases manages the databases a pipeline works with. postgres.Client implements it.
	Databases interface {
		Create(ctx context.Context, db config.Postgres) error
		Drop(ctx context.Context, db config.Postgres) error
		LoadScript(ctx context.Context, db config.Postgres, script string) error
	}

	// Result describes a completed apply run.
	Result struct {
		// State is the terminal state of the run
		State State

		// Script is the last migration script the run computed
		Script string

		// Recreated is set when the target database was dropped and recreated
		Recreated bool

		// Err is the failure of the run, nil when State is Succeeded
		Err error
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// Pipeline stages comparison databases, computes migrations with a diff engine and applies
	// them to the target database.
	//
	// A Pipeline runs one operation at a time and is not safe for concurrent use.
	Pipeline struct {
		db       Databases
		engine   diff.Engine
		spec     config.DiffEngine
		target   config.Postgres
		recreate bool
		observer func(State)
		logger   *slog.Logger
		state    State
	}

	applyError struct {
		err error
	}
)

func (e *applyError) Error() string { return ErrApply.Error() + ": " + e.err.Error() }
func (e *applyError) Unwrap() error { return e.err }
func (e *applyError) Is(target error) bool {
	return target == ErrApply
}

// WithRecreateOnFail drops and recreates the target database when applying a migration fails,
// then recomputes the migration and retries once.
func WithRecreateOnFail(enabled bool) Option {
	return func(p *Pipeline) {
		p.recreate = enabled
	}
}

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(State)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithLogger sets the logger used for progress and cleanup failures (default: slog.Default).
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline computing migrations with the comparison databases of spec and
// applying them to target.
//
// Example:
//
//	p := pipeline.New(
//		postgres.NewClient(cfg.MaintenanceDB),
//		diff.NewCommandEngine(),
//		cfg.DiffEngine,
//		cfg.Target,
//		pipeline.WithRecreateOnFail(cfg.Watch.RecreateDBOnFail),
//	)
//
//	res, err := p.Push(ctx, &current, desired)
func New(db Databases, engine diff.Engine, spec config.DiffEngine, target config.Postgres, opts ...Option) *Pipeline {
	p := &Pipeline{
		db:     db,
		engine: engine,
		spec:   spec,
		target: target,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// State returns the state of the current or last run.
func (p *Pipeline) State() State {
	return p.state
}

// ComputeDiff returns the script migrating a database holding source to one holding target.
// A nil source means an empty database, which is how the very first migration is computed.
//
// Both comparison databases are recreated before and dropped after the diff, whether it
// succeeds or not.
func (p *Pipeline) ComputeDiff(ctx context.Context, source *string, target string) (string, error) {
	script, err := p.computeDiff(ctx, source, target)
	if err != nil {
		p.finish(FailedFatal)
		return "", err
	}

	p.finish(Succeeded)
	return script, nil
}

// Push computes the migration from source to target and applies it to the target database.
// Every failure is fatal.
func (p *Pipeline) Push(ctx context.Context, source *string, target string) (*Result, error) {
	script, err := p.computeDiff(ctx, source, target)
	if err != nil {
		return p.fail(FailedFatal, script, false, err)
	}

	return p.apply(ctx, script, FailedFatal, func() (string, error) {
		// the target database is empty after being recreated
		return p.computeDiff(ctx, nil, target)
	})
}

// Deploy migrates the target database from its live schema to desired. The desired schema is
// staged into the source comparison database and diffed against the target itself. Failures
// are recoverable so a watch loop can try again on the next change.
func (p *Pipeline) Deploy(ctx context.Context, desired string) (*Result, error) {
	script, err := p.deployDiff(ctx, desired)
	if err != nil {
		return p.fail(FailedRecoverable, script, false, err)
	}

	return p.apply(ctx, script, FailedRecoverable, func() (string, error) {
		return p.deployDiff(ctx, desired)
	})
}

// Apply loads script into the target database once, without the recreate policy.
func (p *Pipeline) Apply(ctx context.Context, script string) error {
	p.transition(Applying)
	if err := p.db.LoadScript(ctx, p.target, script); err != nil {
		p.finish(FailedFatal)
		return &applyError{err: err}
	}

	p.finish(Succeeded)
	return nil
}

func (p *Pipeline) computeDiff(ctx context.Context, source *string, target string) (string, error) {
	p.transition(StagingSource)
	defer p.cleanup(ctx, p.spec.Source, p.spec.Target)

	if err := p.reset(ctx, p.spec.Source); err != nil {
		return "", err
	}
	if err := p.reset(ctx, p.spec.Target); err != nil {
		return "", err
	}

	if source != nil {
		if err := p.db.LoadScript(ctx, p.spec.Source, *source); err != nil {
			return "", errors.Wrap(err, "failed to load source schema")
		}
	}

	p.transition(StagingTarget)
	if err := p.db.LoadScript(ctx, p.spec.Target, target); err != nil {
		return "", errors.Wrap(err, "failed to load target schema")
	}

	p.transition(Diffing)
	script, err := p.engine.Diff(ctx, p.spec)
	if err != nil {
		return "", errors.Wrap(err, "failed to compute diff")
	}

	return script, nil
}

func (p *Pipeline) deployDiff(ctx context.Context, desired string) (string, error) {
	p.transition(StagingTarget)
	defer p.cleanup(ctx, p.spec.Source)

	if err := p.reset(ctx, p.spec.Source); err != nil {
		return "", err
	}

	if err := p.db.LoadScript(ctx, p.spec.Source, desired); err != nil {
		return "", errors.Wrap(err, "failed to load desired schema")
	}

	p.transition(Diffing)
	script, err := p.engine.Diff(ctx, p.spec.Reversed(p.target))
	if err != nil {
		return "", errors.Wrap(err, "failed to compute diff")
	}

	return script, nil
}

func (p *Pipeline) apply(ctx context.Context, script string, failure State, rediff func() (string, error)) (*Result, error) {
	p.transition(Applying)
	err := p.db.LoadScript(ctx, p.target, script)
	if err == nil {
		return p.succeed(script, false)
	}

	if !p.recreate {
		return p.fail(failure, script, false, &applyError{err: err})
	}

	p.logger.Warn("Applying migration failed, recreating target database",
		"database", p.target.String(),
		"error", err,
	)

	if err := p.db.Drop(ctx, p.target); err != nil {
		return p.fail(failure, script, false, errors.Wrap(err, "failed to drop target database"))
	}
	if err := p.db.Create(ctx, p.target); err != nil {
		return p.fail(failure, script, false, errors.Wrap(err, "failed to recreate target database"))
	}

	script, err = rediff()
	if err != nil {
		return p.fail(failure, script, true, err)
	}

	p.transition(Applying)
	if err := p.db.LoadScript(ctx, p.target, script); err != nil {
		// the retry is spent, the next trigger may try again
		return p.fail(FailedRecoverable, script, true, &applyError{err: err})
	}

	return p.succeed(script, true)
}

func (p *Pipeline) succeed(script string, recreated bool) (*Result, error) {
	p.finish(Succeeded)
	return &Result{State: Succeeded, Script: script, Recreated: recreated}, nil
}

func (p *Pipeline) fail(state State, script string, recreated bool, err error) (*Result, error) {
	p.finish(state)
	return &Result{State: state, Script: script, Recreated: recreated, Err: err}, err
}

// reset drops db if a previous run left it behind and creates it empty.
func (p *Pipeline) reset(ctx context.Context, db config.Postgres) error {
	if err := p.db.Drop(ctx, db); err != nil {
		return errors.Wrapf(err, "failed to drop comparison database %s", db.DBName)
	}

	if err := p.db.Create(ctx, db); err != nil {
		return errors.Wrapf(err, "failed to create comparison database %s", db.DBName)
	}

	return nil
}

// cleanup drops the comparison databases, even when ctx is already cancelled.
func (p *Pipeline) cleanup(ctx context.Context, dbs ...config.Postgres) {
	ctx = context.WithoutCancel(ctx)
	for _, db := range dbs {
		if err := p.db.Drop(ctx, db); err != nil {
			p.logger.Warn("Failed to drop comparison database", "database", db.String(), "error", err)
		}
	}
}

func (p *Pipeline) transition(s State) {
	p.state = s
	p.logger.Debug("Pipeline state changed", "state", s.String())
	if p.observer != nil {
		p.observer(s)
	}
}

// finish records the terminal state of a run and returns to Idle.
func (p *Pipeline) finish(s State) {
	p.transition(s)
	p.transition(Idle)
}
