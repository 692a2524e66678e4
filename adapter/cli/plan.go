package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/spf13/cobra"
)

var (
	planDate     string
	planCapacity int
	planMode     string
	planTasks    []string
	planFromSync bool
	planMomentum bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan your day",
	Long: `Build a plan for today or a specific date.

The capacity score (0-100) and mode set the minute budget. Tasks are
padded by your learned estimation buffer and placed around your
productive hours, most important first. Tasks that do not fit stay
on the plan as unscheduled.

Tasks are given as MINUTES:PRIORITY:TITLE, priority 1 (urgent) to 4.

Examples:
  tempo plan --capacity 70 --task "60:1:Write report" --task "30:3:Inbox"
  tempo plan --from-sync --mode deep_work
  tempo plan --date 2026-03-02 --capacity 40 --mode recovery --momentum
  tempo plan show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.GeneratePlanHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, planDate)
		if err != nil {
			return err
		}
		mode, err := domain.ParseMode(planMode)
		if err != nil {
			return err
		}
		tasks := make([]domain.TaskToSchedule, 0, len(planTasks))
		for _, spec := range planTasks {
			task, err := ParseTaskSpec(spec)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		if len(tasks) == 0 && !planFromSync {
			return errors.New("nothing to plan: add --task or --from-sync")
		}

		result, err := app.GeneratePlanHandler.Handle(cmd.Context(), commands.GeneratePlanCommand{
			UserID:        app.CurrentUserID,
			Date:          date,
			CapacityScore: planCapacity,
			Mode:          mode,
			Tasks:         tasks,
			FromSync:      planFromSync,
			ApplyMomentum: planMomentum,
			Location:      app.Location,
		})
		if err != nil {
			return fmt.Errorf("failed to generate plan: %w", err)
		}

		dto := queries.ToPlanDTO(result.Plan, app.Now())
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), dto)
		}
		printPlan(cmd.OutOrStdout(), dto, app.Location)
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "  Buffer x%.2f (%s confidence), budget %dm\n\n",
				result.Buffer.Buffer, result.Buffer.Confidence, result.BudgetMinutes)
		}
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the plan for a day",
	Long: `Show the plan with each task's window and current status.

Examples:
  tempo plan show
  tempo plan show --date 2026-03-02 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.GetPlanHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, planDate)
		if err != nil {
			return err
		}
		dto, err := app.GetPlanHandler.Handle(cmd.Context(), queries.GetPlanQuery{
			UserID: app.CurrentUserID,
			Date:   date,
			Now:    app.Now(),
		})
		if errors.Is(err, domain.ErrPlanNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No plan for %s. Create one with: tempo plan --task ...\n", date.Format(dateLayout))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), dto)
		}
		printPlan(cmd.OutOrStdout(), dto, app.Location)
		return nil
	},
}

func init() {
	planCmd.PersistentFlags().StringVar(&planDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	planCmd.Flags().IntVar(&planCapacity, "capacity", 70, "capacity score 0-100")
	planCmd.Flags().StringVar(&planMode, "mode", string(domain.ModeBalanced), "recovery, balanced or deep_work")
	planCmd.Flags().StringArrayVarP(&planTasks, "task", "t", nil, "task as MINUTES:PRIORITY:TITLE (repeatable)")
	planCmd.Flags().BoolVar(&planFromSync, "from-sync", false, "add pending tasks from the task source")
	planCmd.Flags().BoolVar(&planMomentum, "momentum", false, "lower the budget after a weak or collapsed day")

	planCmd.AddCommand(planShowCmd)
	rootCmd.AddCommand(planCmd)
}
