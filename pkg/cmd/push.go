package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

// push creates a CLI command applying the migration between two revisions to the target
// database.
func push(cfg *config.Config, db pipeline.Databases, engine diff.Engine) *cli.Command {
	flags := append(revisionFlags(), recreateFlag())

	return &cli.Command{
		Name:      "push",
		Usage:     "Apply the migration between two revisions to the target database",
		ArgsUsage: "<path>",
		Description: `Computes the migration like diff does and runs it against the target database
in a single transaction. With --recreate-on-fail, a failed migration drops and
recreates the target database and applies the full --to schema instead.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			source, target, err := resolveSchemas(cmd, cfg)
			if err != nil {
				return err
			}

			p, stop, err := newPipeline(ctx, cfg, db, engine,
				pipeline.WithRecreateOnFail(cmd.Bool("recreate-on-fail")),
			)
			defer stop()
			if err != nil {
				return err
			}

			res, err := p.Push(ctx, source, target)
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			if res.Recreated {
				fmt.Fprintf(w, "✓ Recreated %s\n", cfg.Target.DBName)
			}

			if res.Script == "" {
				fmt.Fprintf(w, "%s is up to date\n", cfg.Target.DBName)
				return nil
			}

			fmt.Fprintln(w, res.Script)
			fmt.Fprintf(w, "✓ Migration applied to %s\n", cfg.Target.DBName)
			return nil
		},
	}
}
