package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/tempo/adapter/cli"
	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
)

type taskRefInput struct {
	// Task is a task id, an external id or a 1-based position in the plan.
	Task string `json:"task" jsonschema:"required"`
	Date string `json:"date,omitempty"`
	// At is an RFC3339 timestamp, default now.
	At string `json:"at,omitempty"`
}

type taskCompleteInput struct {
	Task          string `json:"task" jsonschema:"required"`
	Date          string `json:"date,omitempty"`
	At            string `json:"at,omitempty"`
	ActualMinutes int    `json:"actual_minutes,omitempty"`
}

type progressOutput struct {
	Task     *queries.TaskDTO        `json:"task"`
	Changed  bool                    `json:"changed"`
	Progress services.ProgressTotals `json:"totals"`
	Delta    int                     `json:"minutes_ahead_behind"`
	Plan     *queries.PlanDTO        `json:"plan"`
}

func registerProgressTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("progress.show").
		Description("Show completion, minutes ahead or behind, momentum and skip risk for a day").
		Handler(func(ctx context.Context, input planDateInput) (*queries.ProgressDTO, error) {
			return showProgress(ctx, app, input)
		})

	srv.Tool("task.start").
		Description("Mark a planned task as started").
		Handler(func(ctx context.Context, input taskRefInput) (*progressOutput, error) {
			return startTask(ctx, app, input)
		})

	srv.Tool("task.complete").
		Description("Mark a planned task as completed, optionally with the actual minutes spent").
		Handler(func(ctx context.Context, input taskCompleteInput) (*progressOutput, error) {
			return completeTask(ctx, app, input)
		})

	srv.Tool("insights.show").
		Description("Show the learned estimation buffer, productive hours and momentum trends").
		Handler(func(ctx context.Context, input struct{}) (*queries.InsightsDTO, error) {
			return showInsights(ctx, app)
		})

	return nil
}

func showProgress(ctx context.Context, app *cli.App, input planDateInput) (*queries.ProgressDTO, error) {
	if app == nil || app.GetProgressHandler == nil {
		return nil, fmt.Errorf("progress %w", errNoDatabase)
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	return app.GetProgressHandler.Handle(ctx, queries.GetProgressQuery{
		UserID:   app.CurrentUserID,
		Date:     date,
		Location: app.Location,
		Now:      app.Now(),
	})
}

func startTask(ctx context.Context, app *cli.App, input taskRefInput) (*progressOutput, error) {
	if app == nil || app.RecordProgressHandler == nil {
		return nil, fmt.Errorf("task start %w", errNoDatabase)
	}
	if input.Task == "" {
		return nil, errors.New("task is required")
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	at, err := parseOptionalTime(input.At, app.Now())
	if err != nil {
		return nil, err
	}
	result, err := app.RecordProgressHandler.Start(ctx, commands.StartTaskCommand{
		UserID:   app.CurrentUserID,
		Date:     date,
		TaskRef:  input.Task,
		At:       at,
		Location: app.Location,
	})
	if err != nil {
		return nil, err
	}
	return toProgressOutput(app, result), nil
}

func completeTask(ctx context.Context, app *cli.App, input taskCompleteInput) (*progressOutput, error) {
	if app == nil || app.RecordProgressHandler == nil {
		return nil, fmt.Errorf("task completion %w", errNoDatabase)
	}
	if input.Task == "" {
		return nil, errors.New("task is required")
	}
	if input.ActualMinutes < 0 {
		return nil, errors.New("actual_minutes cannot be negative")
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	at, err := parseOptionalTime(input.At, app.Now())
	if err != nil {
		return nil, err
	}
	result, err := app.RecordProgressHandler.Complete(ctx, commands.CompleteTaskCommand{
		UserID:        app.CurrentUserID,
		Date:          date,
		TaskRef:       input.Task,
		At:            at,
		Location:      app.Location,
		ActualMinutes: input.ActualMinutes,
	})
	if err != nil {
		return nil, err
	}
	return toProgressOutput(app, result), nil
}

func toProgressOutput(app *cli.App, result *commands.ProgressResult) *progressOutput {
	plan := queries.ToPlanDTO(result.Plan, app.Now())
	out := &progressOutput{
		Changed:  result.Changed,
		Progress: result.Progress.Totals,
		Delta:    result.Progress.MinutesAheadBehind,
		Plan:     plan,
	}
	for i := range plan.Tasks {
		if plan.Tasks[i].TaskID == result.Task.TaskID {
			out.Task = &plan.Tasks[i]
			break
		}
	}
	return out
}

func showInsights(ctx context.Context, app *cli.App) (*queries.InsightsDTO, error) {
	if app == nil || app.GetInsightsHandler == nil {
		return nil, fmt.Errorf("insights %w", errNoDatabase)
	}
	return app.GetInsightsHandler.Handle(ctx, queries.GetInsightsQuery{
		UserID:   app.CurrentUserID,
		Location: app.Location,
		Now:      app.Now(),
	})
}
