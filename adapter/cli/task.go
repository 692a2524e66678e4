package cli

import (
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/spf13/cobra"
)

var (
	taskDate    string
	doneMinutes int
)

var startCmd = &cobra.Command{
	Use:   "start <task>",
	Short: "Start a task",
	Long: `Mark a task as started. The task is named by its position in the
plan, its id or its external id.

Examples:
  tempo start 1
  tempo start 8f14e45f-ceea-467e-9c3a-1f2a3b4c5d6e`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.RecordProgressHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, taskDate)
		if err != nil {
			return err
		}
		result, err := app.RecordProgressHandler.Start(cmd.Context(), commands.StartTaskCommand{
			UserID:   app.CurrentUserID,
			Date:     date,
			TaskRef:  args[0],
			At:       app.Now(),
			Location: app.Location,
		})
		if err != nil {
			return fmt.Errorf("failed to start task: %w", err)
		}
		return printProgressResult(cmd, app, result, "Started")
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <task>",
	Aliases: []string{"complete", "finish", "x"},
	Short:   "Complete a task",
	Long: `Mark a task as completed. The actual duration comes from when the
task was started unless --minutes is given. Actual durations feed the
estimation buffer used by future plans.

Examples:
  tempo done 1
  tempo done 2 --minutes 45`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.RecordProgressHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, taskDate)
		if err != nil {
			return err
		}
		result, err := app.RecordProgressHandler.Complete(cmd.Context(), commands.CompleteTaskCommand{
			UserID:        app.CurrentUserID,
			Date:          date,
			TaskRef:       args[0],
			At:            app.Now(),
			Location:      app.Location,
			ActualMinutes: doneMinutes,
		})
		if err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		return printProgressResult(cmd, app, result, "Completed")
	},
}

func printProgressResult(cmd *cobra.Command, app *App, result *commands.ProgressResult, verb string) error {
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), queries.ToPlanDTO(result.Plan, app.Now()))
	}

	w := cmd.OutOrStdout()
	if !result.Changed {
		fmt.Fprintf(w, "Already recorded: %s\n", result.Task.Title)
		return nil
	}
	fmt.Fprintf(w, "%s: %s\n", verb, result.Task.Title)
	if result.Task.ActualMinutes > 0 {
		fmt.Fprintf(w, "  took %dm (estimated %dm)\n", result.Task.ActualMinutes, result.Task.OriginalMinutes)
	}
	p := result.Progress
	fmt.Fprintf(w, "  %d/%d done, %s\n", p.Totals.Completed, p.Totals.Total, aheadBehind(p.MinutesAheadBehind))
	if p.NextTask != nil {
		fmt.Fprintf(w, "  Next: %s at %s\n", p.NextTask.Title, clock(p.NextTask.ScheduledStart, app.Location))
	}
	return nil
}

func init() {
	startCmd.Flags().StringVar(&taskDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	doneCmd.Flags().StringVar(&taskDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	doneCmd.Flags().IntVarP(&doneMinutes, "minutes", "m", 0, "actual minutes spent")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(doneCmd)
}
