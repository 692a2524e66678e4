package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/tempo/adapter/cli"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check the database, cache, broker and advisory model").
		Handler(func(ctx context.Context, input struct{}) (*observability.HealthReport, error) {
			return health(ctx, app)
		})

	return nil
}

func health(ctx context.Context, app *cli.App) (*observability.HealthReport, error) {
	if app == nil {
		return nil, errors.New("app not initialized")
	}
	if app.Health == nil {
		return &observability.HealthReport{Status: observability.HealthStatusHealthy}, nil
	}
	report := app.Health.Check(ctx)
	return &report, nil
}
