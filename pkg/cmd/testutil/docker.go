package testutil

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/docker"
	"github.com/stretchr/testify/require"
)

// SkipIfNoDocker skips the test if Docker is not available
func SkipIfNoDocker(t *testing.T) {
	t.Helper()

	// Check if Docker binary exists
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	// Check if Docker daemon is running
	cmd := exec.CommandContext(t.Context(), "docker", "ps")
	if err := cmd.Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

// SkipIfNoCommand skips the test if name cannot be found on PATH
func SkipIfNoCommand(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

// StartPostgres starts a throwaway PostgreSQL server for the duration of the test and returns
// its endpoint, connected to the maintenance database. The test is skipped in short mode or
// when Docker is unavailable.
func StartPostgres(t *testing.T) config.Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container := docker.New()
	require.NoError(t, container.Start(ctx), "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		_ = container.Stop(context.Background())
	})

	server, err := container.Endpoint(ctx)
	require.NoError(t, err, "Failed to get PostgreSQL endpoint")

	return server
}
