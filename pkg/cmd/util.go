package cmd

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
	"github.com/pseudomuto/postgit/pkg/docker"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/pseudomuto/postgit/pkg/repo"
	"github.com/urfave/cli/v3"
)

// revisionFlags are shared by the commands reading schemas out of git.
func revisionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "repo-path",
			Aliases: []string{"r"},
			Usage:   "the git repository to read schemas from",
			Value:   ".",
			Config:  cli.StringConfig{TrimSpace: true},
		},
		&cli.StringFlag{
			Name:    "from",
			Aliases: []string{"f"},
			Usage:   "the revision holding the current schema (omit to start from an empty database)",
			Config:  cli.StringConfig{TrimSpace: true},
		},
		&cli.StringFlag{
			Name:     "to",
			Aliases:  []string{"t"},
			Usage:    "the revision holding the desired schema",
			Required: true,
			Config:   cli.StringConfig{TrimSpace: true},
		},
		&cli.StringFlag{
			Name:        "source-path",
			Usage:       "the schema path in the --from revision",
			DefaultText: "PATH",
			Config:      cli.StringConfig{TrimSpace: true},
		},
	}
}

func recreateFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "recreate-on-fail",
		Usage: "drop and recreate the target database when a migration fails, then retry once",
	}
}

// schemaPath returns the single PATH argument.
func schemaPath(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errors.New("exactly one path argument is required")
	}

	return cmd.Args().First(), nil
}

// resolveSchemas reads the current and desired schemas from the revisions named by the
// revision flags. The current schema is nil when --from was not given.
func resolveSchemas(cmd *cli.Command, cfg *config.Config) (*string, string, error) {
	path, err := schemaPath(cmd)
	if err != nil {
		return nil, "", err
	}

	store, err := repo.OpenGitStore(cmd.String("repo-path"))
	if err != nil {
		return nil, "", err
	}

	mode := repo.MatchSegments
	if cfg.Schema.PrefixMatch {
		mode = repo.MatchPrefix
	}

	target, err := repo.ResolveSchema(store, cmd.String("to"), path, mode)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to resolve the desired schema")
	}

	from := cmd.String("from")
	if from == "" {
		return nil, target, nil
	}

	sourcePath := cmd.String("source-path")
	if sourcePath == "" {
		sourcePath = path
	}

	source, err := repo.ResolveSchema(store, from, sourcePath, mode)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to resolve the current schema")
	}

	return &source, target, nil
}

// newPipeline creates a pipeline for cfg. When the comparison databases live in a throwaway
// container, the container is started here and stopped by the returned func, which must
// always be called.
func newPipeline(
	ctx context.Context,
	cfg *config.Config,
	db pipeline.Databases,
	engine diff.Engine,
	opts ...pipeline.Option,
) (*pipeline.Pipeline, func(), error) {
	spec := cfg.DiffEngine
	stop := func() {}

	if spec.Container.Enabled {
		container := docker.NewWithOptions(docker.DockerOptions{Image: spec.Container.Image})
		if err := container.Start(ctx); err != nil {
			return nil, stop, errors.Wrap(err, "failed to start the comparison server")
		}

		stop = func() {
			if err := container.Stop(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to stop the comparison server", "error", err)
			}
		}

		server, err := container.Endpoint(ctx)
		if err != nil {
			stop()
			return nil, func() {}, err
		}

		slog.Debug("Started comparison server", "server", server.Server(), "image", spec.Container.Image)
		spec = docker.Relocate(spec, server)
	}

	return pipeline.New(db, engine, spec, cfg.Target, opts...), stop, nil
}
