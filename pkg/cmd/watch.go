package cmd

import (
	"context"
	"log/slog"

	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/pseudomuto/postgit/pkg/watch"
	"github.com/urfave/cli/v3"
)

// watchCmd creates a CLI command keeping the target database in sync with a directory of
// schema files until interrupted.
func watchCmd(cfg *config.Config, db pipeline.Databases, engine diff.Engine) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Deploy a schema directory to the target database whenever it changes",
		ArgsUsage: "<path>",
		Description: `Watches the SQL files below <path> on disk. After every change the files are
merged and the target database is migrated to the result. Failed deploys are
reported and retried on the next change.`,
		Flags: []cli.Flag{recreateFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := schemaPath(cmd)
			if err != nil {
				return err
			}

			recreate := cfg.Watch.RecreateDBOnFail || cmd.Bool("recreate-on-fail")
			p, stop, err := newPipeline(ctx, cfg, db, engine, pipeline.WithRecreateOnFail(recreate))
			defer stop()
			if err != nil {
				return err
			}

			slog.Debug("Starting watch", "path", path, "target", cfg.Target.String(), "recreate", recreate)

			root := cmd.Root()
			return watch.NewCoordinator(path, p,
				watch.WithDebounce(cfg.Watch.DebounceWindow()),
				watch.WithOutput(root.Writer, root.ErrWriter),
			).Watch(ctx)
		},
	}
}
