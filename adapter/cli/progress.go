package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/spf13/cobra"
)

var progressDate string

var progressCmd = &cobra.Command{
	Use:     "progress",
	Aliases: []string{"status"},
	Short:   "Show how the day is going",
	Long: `Show completion, minutes ahead or behind, momentum and the task most
likely to be skipped. The last line tells you whether a reschedule
would change anything right now.

Examples:
  tempo progress
  tempo progress --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.GetProgressHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, progressDate)
		if err != nil {
			return err
		}
		dto, err := app.GetProgressHandler.Handle(cmd.Context(), queries.GetProgressQuery{
			UserID:   app.CurrentUserID,
			Date:     date,
			Location: app.Location,
			Now:      app.Now(),
		})
		if errors.Is(err, domain.ErrPlanNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No plan for %s.\n", date.Format(dateLayout))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load progress: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), dto)
		}
		printProgress(cmd.OutOrStdout(), dto, app.Location)
		return nil
	},
}

func init() {
	progressCmd.Flags().StringVar(&progressDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(progressCmd)
}
