package testutil

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/urfave/cli/v3"
)

// RunCommand executes a command with test context
func RunCommand(t *testing.T, command *cli.Command, args []string) error {
	t.Helper()

	return RunCommandWithContext(t.Context(), t, command, args)
}

// RunCommandWithContext executes a command with a custom context
func RunCommandWithContext(ctx context.Context, t *testing.T, command *cli.Command, args []string) error {
	t.Helper()

	return RunCommandWithOutput(ctx, t, command, args, io.Discard, io.Discard)
}

// RunCommandWithOutput executes a command writing its output to stdout and stderr.
func RunCommandWithOutput(ctx context.Context, t *testing.T, command *cli.Command, args []string, stdout, stderr io.Writer) error {
	t.Helper()

	// Create a test CLI app
	app := &cli.Command{
		Name:      "test",
		Commands:  []*cli.Command{command},
		Writer:    stdout,
		ErrWriter: stderr,
	}

	// Prepend command name to args
	fullArgs := append([]string{"test", command.Name}, args...)

	return app.Run(ctx, fullArgs)
}

// CaptureCommand executes a command and returns what it printed to stdout.
func CaptureCommand(t *testing.T, command *cli.Command, args []string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	err := RunCommandWithOutput(t.Context(), t, command, args, &stdout, io.Discard)
	return stdout.String(), err
}
