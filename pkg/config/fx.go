package config

import "go.uber.org/fx"

var Module = fx.Module("config", fx.Provide(
	// Loads postgit.yaml/postgit.toml from the working directory (or POSTGIT_CONFIG). A missing
	// file is not an error, the defaults derived from the PG* environment variables are used.
	func() (*Config, error) {
		return Load(".")
	},
))
