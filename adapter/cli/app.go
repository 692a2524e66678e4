package cli

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
)

var errNotInitialized = errors.New("application not initialized - database connection required")

// App holds the CLI application dependencies.
type App struct {
	// Command Handlers
	GeneratePlanHandler      *commands.GeneratePlanHandler
	RecordProgressHandler    *commands.RecordProgressHandler
	RescheduleHandler        *commands.RescheduleHandler
	ReconcileExternalHandler *commands.ReconcileExternalHandler

	// Query Handlers
	GetPlanHandler     *queries.GetPlanHandler
	GetProgressHandler *queries.GetProgressHandler
	GetInsightsHandler *queries.GetInsightsHandler

	Health *observability.HealthRegistry

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
	Location      *time.Location

	clock func() time.Time
}

// NewApp creates a new CLI application with the provided handlers.
func NewApp(
	generatePlanHandler *commands.GeneratePlanHandler,
	recordProgressHandler *commands.RecordProgressHandler,
	rescheduleHandler *commands.RescheduleHandler,
	reconcileExternalHandler *commands.ReconcileExternalHandler,
	getPlanHandler *queries.GetPlanHandler,
	getProgressHandler *queries.GetProgressHandler,
	getInsightsHandler *queries.GetInsightsHandler,
) *App {
	return &App{
		GeneratePlanHandler:      generatePlanHandler,
		RecordProgressHandler:    recordProgressHandler,
		RescheduleHandler:        rescheduleHandler,
		ReconcileExternalHandler: reconcileExternalHandler,
		GetPlanHandler:           getPlanHandler,
		GetProgressHandler:       getProgressHandler,
		GetInsightsHandler:       getInsightsHandler,
		CurrentUserID:            uuid.Nil,
		Location:                 time.Local,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// SetLocation sets the time zone dates and clock times are read in.
func (a *App) SetLocation(loc *time.Location) {
	if loc != nil {
		a.Location = loc
	}
}

// SetHealth updates the health registry.
func (a *App) SetHealth(health *observability.HealthRegistry) {
	a.Health = health
}

// SetClock overrides the current time, for tests.
func (a *App) SetClock(clock func() time.Time) {
	a.clock = clock
}

// Now returns the current time in the app's location.
func (a *App) Now() time.Time {
	if a.clock != nil {
		return a.clock().In(a.loc())
	}
	return time.Now().In(a.loc())
}

// Today is the current calendar date in the app's location.
func (a *App) Today() time.Time {
	now := a.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (a *App) loc() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
