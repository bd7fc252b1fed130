package cmd

import (
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/diff"
	"github.com/pseudomuto/postgit/pkg/pipeline"
	"github.com/pseudomuto/postgit/pkg/postgres"
	"go.uber.org/fx"
)

var Module = fx.Module("cli",
	fx.Provide(
		fx.Annotate(newDatabases, fx.As(new(pipeline.Databases))),
		fx.Annotate(diff.NewCommandEngine, fx.As(new(diff.Engine))),
		fx.Annotate(diffCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(push, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(watchCmd, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)

func newDatabases(cfg *config.Config) *postgres.Client {
	return postgres.NewClient(cfg.MaintenanceDB)
}
