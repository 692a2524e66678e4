package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/spf13/cobra"
)

var syncDate string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull completions from your task manager",
	Long: `Reconcile the plan with the configured task source. Tasks finished
there are marked completed here, and tasks reopened there are reopened.

Examples:
  tempo sync
  tempo sync --date 2026-03-02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.ReconcileExternalHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, syncDate)
		if err != nil {
			return err
		}
		result, err := app.ReconcileExternalHandler.Handle(cmd.Context(), commands.ReconcileExternalCommand{
			UserID:   app.CurrentUserID,
			Date:     date,
			Location: app.Location,
		})
		if errors.Is(err, domain.ErrPlanNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No plan for %s.\n", date.Format(dateLayout))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), map[string]int{
				"completed": result.Completed,
				"reopened":  result.Reopened,
				"unmatched": result.Unmatched,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %s: %d completed, %d reopened, %d no longer listed\n",
			date.Format(dateLayout), result.Completed, result.Reopened, result.Unmatched)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(syncCmd)
}
