package docker

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// DefaultPostgresPort is the port PostgreSQL listens on inside the container
	DefaultPostgresPort = "5432/tcp"

	defaultUser     = "postgres"
	defaultPassword = "postgres"
	dataDir         = "/var/lib/postgresql/data"
)

type (
	// DockerOptions represents options for running PostgreSQL in Docker
	DockerOptions struct {
		// Image is the PostgreSQL image to run (default: consts.DefaultPostgresImage)
		Image string

		// StartupTimeout bounds how long Start waits for the server to accept connections
		// (default: 2m)
		StartupTimeout time.Duration
	}

	// Container manages a throwaway PostgreSQL server
	Container struct {
		options   DockerOptions
		container *tcpostgres.PostgresContainer
	}
)

// New creates a new Docker container with default options
func New() *Container {
	return NewWithOptions(DockerOptions{})
}

// NewWithOptions creates a new Docker container with custom options
//
// Example:
//
//	container := docker.NewWithOptions(docker.DockerOptions{Image: "postgres:17-alpine"})
//
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
//
//	server, err := container.Endpoint(ctx)
func NewWithOptions(opts DockerOptions) *Container {
	if opts.Image == "" {
		opts.Image = consts.DefaultPostgresImage
	}
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = 2 * time.Minute
	}

	return &Container{options: opts}
}

// Start starts the PostgreSQL container and waits until it accepts connections
func (c *Container) Start(ctx context.Context) error {
	if c.container != nil {
		return errors.New("container is already running")
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.StartupTimeout)
	defer cancel()

	pg, err := tcpostgres.Run(ctx,
		c.options.Image,
		tcpostgres.WithUsername(defaultUser),
		tcpostgres.WithPassword(defaultPassword),
		tcpostgres.WithDatabase(consts.DefaultMaintenanceDatabase),
		tcpostgres.BasicWaitStrategies(),
		// comparison databases never outlive the container
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.Mounts = []mount.Mount{
				{
					Type:   mount.TypeTmpfs,
					Target: dataDir,
				},
			}
		}),
	)
	if err != nil {
		// Run can return a container alongside the error
		if pg != nil {
			_ = testcontainers.TerminateContainer(pg)
		}

		return errors.Wrapf(err, "failed to start PostgreSQL container %s", c.options.Image)
	}

	c.container = pg
	return nil
}

// Stop stops and removes the PostgreSQL container
func (c *Container) Stop(ctx context.Context) error {
	if c.container == nil {
		return nil // Already stopped
	}

	err := c.container.Terminate(ctx)
	c.container = nil

	if err != nil {
		return errors.Wrap(err, "failed to stop PostgreSQL container")
	}

	return nil
}

// Endpoint returns the connection details of the server, connected to the maintenance
// database.
func (c *Container) Endpoint(ctx context.Context) (config.Postgres, error) {
	if c.container == nil {
		return config.Postgres{}, errors.New("container is not running")
	}

	host, err := c.container.Host(ctx)
	if err != nil {
		return config.Postgres{}, errors.Wrap(err, "failed to get container host")
	}

	port, err := c.container.MappedPort(ctx, DefaultPostgresPort)
	if err != nil {
		return config.Postgres{}, errors.Wrap(err, "failed to get container port")
	}

	return config.Postgres{
		Host:     host,
		Port:     uint16(port.Int()),
		User:     defaultUser,
		Password: defaultPassword,
		DBName:   consts.DefaultMaintenanceDatabase,
	}, nil
}

// IsRunning returns true if the container is currently running
func (c *Container) IsRunning() bool {
	return c.container != nil
}

// Relocate moves both comparison databases of spec onto server, keeping their names. It is
// used to point the diff engine at a container started for the duration of a command.
func Relocate(spec config.DiffEngine, server config.Postgres) config.DiffEngine {
	move := func(p config.Postgres) config.Postgres {
		server.DBName = p.DBName
		return server
	}

	spec.Source = move(spec.Source)
	spec.Target = move(spec.Target)
	return spec
}
