package diff

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/consts"
)

type (
	// Engine computes the script migrating the database at spec.Source to the schema of the
	// database at spec.Target.
	Engine interface {
		Diff(ctx context.Context, spec config.DiffEngine) (string, error)
	}

	// CommandEngine runs an external diff tool. Without a configured command it runs
	// `migra <source> <target> --unsafe`, otherwise `sh -c <command> postgit <source> <target>`
	// so the command sees the URLs as $1 and $2.
	CommandEngine struct {
		// Shell runs custom commands (default: sh)
		Shell string

		// Tool is the default diff tool (default: migra)
		Tool string
	}

	// CommandError is returned when the diff tool fails. Its message is the tool's stderr when
	// it wrote any.
	CommandError struct {
		// Command is the program that was run
		Command string

		// Stderr is everything the tool wrote to stderr
		Stderr string

		// Err is the failure to run the tool, if any
		Err error
	}
)

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}

	return errors.Wrapf(e.Err, "failed to run %s", e.Command).Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandEngine returns a CommandEngine using sh and migra.
func NewCommandEngine() *CommandEngine {
	return &CommandEngine{
		Shell: "sh",
		Tool:  consts.DefaultDiffTool,
	}
}

// Diff runs the diff tool and returns its stdout with surrounding whitespace removed.
//
// Anything written to stderr fails the diff, whatever the exit status. A non-zero exit status
// alone does not: migra exits with 2 when it found differences. Failing to start the tool or
// the tool being killed by a signal are errors.
//
// Example:
//
//	spec := cfg.DiffEngine
//	script, err := diff.NewCommandEngine().Diff(ctx, spec)
//	if err != nil {
//		var cmdErr *diff.CommandError
//		if errors.As(err, &cmdErr) {
//			fmt.Fprintln(os.Stderr, cmdErr.Stderr)
//		}
//	}
func (e *CommandEngine) Diff(ctx context.Context, spec config.DiffEngine) (string, error) {
	cmd := e.command(ctx, spec)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running diff tool", "command", cmd.Path, "source", spec.Source.String(), "target", spec.Target.String())
	err := cmd.Run()

	if stderr.Len() > 0 {
		return "", &CommandError{Command: cmd.Path, Stderr: stderr.String(), Err: err}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Exited() {
			return "", &CommandError{Command: cmd.Path, Err: err}
		}

		slog.Debug("Diff tool exited with non-zero status", "code", exitErr.ExitCode())
	}

	return strings.TrimSpace(stdout.String()), nil
}

func (e *CommandEngine) command(ctx context.Context, spec config.DiffEngine) *exec.Cmd {
	source, target := spec.Source.URL(), spec.Target.URL()

	if spec.Command != "" {
		shell := e.Shell
		if shell == "" {
			shell = "sh"
		}

		return exec.CommandContext(ctx, shell, "-c", spec.Command, consts.ProgramName, source, target)
	}

	tool := e.Tool
	if tool == "" {
		tool = consts.DefaultDiffTool
	}

	return exec.CommandContext(ctx, tool, source, target, consts.DefaultDiffToolUnsafeFlag)
}
