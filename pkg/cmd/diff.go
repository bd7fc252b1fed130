package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

// diffCmd creates a CLI command printing the migration between the schema at two revisions.
// Without --from, the migration creates the schema from an empty database.
func diffCmd(cfg *config.Config, db pipeline.Databases, engine diff.Engine) *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Print the migration between two revisions of a schema",
		ArgsUsage: "<path>",
		Description: `Loads the schema found under <path> at --from and --to into the comparison
databases and prints the migration script produced by the diff tool. Nothing is
printed when both revisions hold the same schema.`,
		Flags: revisionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			source, target, err := resolveSchemas(cmd, cfg)
			if err != nil {
				return err
			}

			p, stop, err := newPipeline(ctx, cfg, db, engine)
			defer stop()
			if err != nil {
				return err
			}

			script, err := p.ComputeDiff(ctx, source, target)
			if err != nil {
				return err
			}

			if script != "" {
				fmt.Fprintln(cmd.Root().Writer, script)
			}

			return nil
		},
	}
}
