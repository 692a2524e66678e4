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
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
)

type planTaskInput struct {
	ID               string `json:"id,omitempty"`
	ExternalID       string `json:"external_id,omitempty"`
	Title            string `json:"title" jsonschema:"required"`
	Priority         int    `json:"priority" jsonschema:"required"`
	EstimatedMinutes int    `json:"estimated_minutes" jsonschema:"required"`
	DueDate          string `json:"due_date,omitempty"`
	Project          string `json:"project,omitempty"`
}

type planGenerateInput struct {
	Date          string          `json:"date,omitempty"`
	CapacityScore int             `json:"capacity_score" jsonschema:"required"`
	Mode          string          `json:"mode,omitempty"`
	Tasks         []planTaskInput `json:"tasks,omitempty"`
	FromSync      bool            `json:"from_sync,omitempty"`
	ApplyMomentum bool            `json:"apply_momentum,omitempty"`
}

type planDateInput struct {
	Date string `json:"date,omitempty"`
}

type rescheduleInput struct {
	Date     string   `json:"date,omitempty"`
	Apply    bool     `json:"apply,omitempty"`
	Simplify bool     `json:"simplify,omitempty"`
	Goals    []string `json:"goals,omitempty"`
}

// planGenerateOutput is the generated plan with the models that shaped it.
type planGenerateOutput struct {
	Plan          *queries.PlanDTO       `json:"plan"`
	Buffer        services.BufferProfile `json:"buffer"`
	PeakHours     []int                  `json:"peak_hours"`
	BudgetMinutes int                    `json:"budget_minutes"`
}

type rescheduleOutput struct {
	Decision services.Decision         `json:"decision"`
	Proposal domain.RescheduleProposal `json:"proposal"`
	Momentum services.MomentumMetrics  `json:"momentum"`
	Applied  bool                      `json:"applied"`
	Plan     *queries.PlanDTO          `json:"plan,omitempty"`
}

type reconcileOutput struct {
	Completed int              `json:"completed"`
	Reopened  int              `json:"reopened"`
	Unmatched int              `json:"unmatched"`
	Plan      *queries.PlanDTO `json:"plan"`
}

func registerPlanTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("plan.generate").
		Description("Build a day plan from a capacity score, a mode and a task list").
		Handler(func(ctx context.Context, input planGenerateInput) (*planGenerateOutput, error) {
			return generatePlan(ctx, app, input)
		})

	srv.Tool("plan.show").
		Description("Show the plan for a day (default today)").
		Handler(func(ctx context.Context, input planDateInput) (*queries.PlanDTO, error) {
			return showPlan(ctx, app, input)
		})

	srv.Tool("plan.reschedule").
		Description("Evaluate the day and propose a rebuilt remaining schedule; apply=true stores it").
		Handler(func(ctx context.Context, input rescheduleInput) (*rescheduleOutput, error) {
			return reschedule(ctx, app, input)
		})

	srv.Tool("sync.reconcile").
		Description("Pull completions and reopens from the configured task source").
		Handler(func(ctx context.Context, input planDateInput) (*reconcileOutput, error) {
			return reconcile(ctx, app, input)
		})

	return nil
}

func generatePlan(ctx context.Context, app *cli.App, input planGenerateInput) (*planGenerateOutput, error) {
	if app == nil || app.GeneratePlanHandler == nil {
		return nil, fmt.Errorf("plan generation %w", errNoDatabase)
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	mode := domain.ModeBalanced
	if input.Mode != "" {
		mode, err = domain.ParseMode(input.Mode)
		if err != nil {
			return nil, err
		}
	}
	tasks, err := toTasks(input.Tasks)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 && !input.FromSync {
		return nil, errors.New("nothing to plan: pass tasks or from_sync")
	}

	result, err := app.GeneratePlanHandler.Handle(ctx, commands.GeneratePlanCommand{
		UserID:        app.CurrentUserID,
		Date:          date,
		CapacityScore: input.CapacityScore,
		Mode:          mode,
		Tasks:         tasks,
		FromSync:      input.FromSync,
		ApplyMomentum: input.ApplyMomentum,
		Location:      app.Location,
	})
	if err != nil {
		return nil, err
	}
	return &planGenerateOutput{
		Plan:          queries.ToPlanDTO(result.Plan, app.Now()),
		Buffer:        result.Buffer,
		PeakHours:     result.Windows.PeakHours,
		BudgetMinutes: result.BudgetMinutes,
	}, nil
}

func showPlan(ctx context.Context, app *cli.App, input planDateInput) (*queries.PlanDTO, error) {
	if app == nil || app.GetPlanHandler == nil {
		return nil, fmt.Errorf("plan lookup %w", errNoDatabase)
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	return app.GetPlanHandler.Handle(ctx, queries.GetPlanQuery{
		UserID: app.CurrentUserID,
		Date:   date,
		Now:    app.Now(),
	})
}

func reschedule(ctx context.Context, app *cli.App, input rescheduleInput) (*rescheduleOutput, error) {
	if app == nil || app.RescheduleHandler == nil {
		return nil, fmt.Errorf("reschedule %w", errNoDatabase)
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	result, err := app.RescheduleHandler.Handle(ctx, commands.RescheduleCommand{
		UserID:   app.CurrentUserID,
		Date:     date,
		Location: app.Location,
		Apply:    input.Apply,
		Goals:    input.Goals,
		Simplify: input.Simplify,
	})
	if err != nil {
		return nil, err
	}
	out := &rescheduleOutput{
		Decision: result.Decision,
		Proposal: result.Proposal,
		Momentum: result.Evaluation.Momentum,
		Applied:  result.Applied,
	}
	if result.Applied {
		out.Plan = queries.ToPlanDTO(result.Plan, app.Now())
	}
	return out, nil
}

func reconcile(ctx context.Context, app *cli.App, input planDateInput) (*reconcileOutput, error) {
	if app == nil || app.ReconcileExternalHandler == nil {
		return nil, fmt.Errorf("sync %w", errNoDatabase)
	}
	date, err := parseDate(input.Date, app.Today())
	if err != nil {
		return nil, err
	}
	result, err := app.ReconcileExternalHandler.Handle(ctx, commands.ReconcileExternalCommand{
		UserID:   app.CurrentUserID,
		Date:     date,
		Location: app.Location,
	})
	if err != nil {
		return nil, err
	}
	return &reconcileOutput{
		Completed: result.Completed,
		Reopened:  result.Reopened,
		Unmatched: result.Unmatched,
		Plan:      queries.ToPlanDTO(result.Plan, app.Now()),
	}, nil
}
