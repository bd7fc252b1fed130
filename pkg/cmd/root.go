package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates the postgit CLI application and executes it with the given arguments once the
// fx application starts. The fx application is shut down when the command returns, with exit
// code 1 if it failed.
//
// Global Flags:
//   - --verbose: Log debug output to stderr
//
// Example usage:
//
//	postgit diff --from HEAD^1 --to HEAD db/schema
//	postgit push --to HEAD db/schema
//	postgit watch db/schema
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := newApp(p.Version.Version, p.Commands)

	p.Lifecycle.Append(fx.StartHook(func() {
		// watch blocks until interrupted, so the app must not hold up fx's start timeout
		go func() {
			if err := app.Run(p.Ctx, p.Args); err != nil {
				slog.Error("Error running command", "err", err)
				_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				return
			}

			_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
		}()
	}))
}

func newApp(version string, commands []*cli.Command) *cli.Command {
	return &cli.Command{
		Name:  "postgit",
		Usage: "Git-aware PostgreSQL schema migrations",
		Description: `postgit reads schema files straight out of a git repository, loads two
revisions into throwaway databases and asks a diff tool (migra by default)
for the migration between them. The migration can be printed, applied to the
target database, or kept in sync with a directory of schema files.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log debug output to stderr",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			return ctx, nil
		},
		Commands: commands,
	}
}
