package mcp

import (
	"github.com/felixgeelhaar/tempo/adapter/cli"
	"github.com/felixgeelhaar/tempo/internal/app"
	"github.com/google/uuid"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container, currentUser uuid.UUID) *cli.App {
	cliApp := cli.NewApp(
		container.GeneratePlanHandler,
		container.RecordProgressHandler,
		container.RescheduleHandler,
		container.ReconcileExternalHandler,
		container.GetPlanHandler,
		container.GetProgressHandler,
		container.GetInsightsHandler,
	)

	cliApp.SetCurrentUserID(currentUser)
	cliApp.SetLocation(container.Location)
	if container.Health != nil {
		cliApp.SetHealth(container.Health)
	}

	return cliApp
}
