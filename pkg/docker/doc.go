// Package docker runs throwaway PostgreSQL servers for comparison databases and tests.
//
// The comparison databases used to compute diffs are normally created on a server the user
// already runs. When diff_engine.container is enabled, a Container is started for the
// duration of the command instead and Relocate moves both comparison databases onto it:
//
//	container := docker.NewWithOptions(docker.DockerOptions{Image: "postgres:16-alpine"})
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
//
//	server, err := container.Endpoint(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg.DiffEngine = docker.Relocate(cfg.DiffEngine, server)
//
// Containers are managed with testcontainers-go, so the usual DOCKER_HOST and
// TESTCONTAINERS_* environment variables apply.
package docker
