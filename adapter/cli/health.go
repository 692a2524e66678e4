package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database, cache, broker and advisory model",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errNotInitialized
		}
		if app.Health == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}

		report := app.Health.Check(cmd.Context())
		if outputJSON {
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			names := make([]string, 0, len(report.Checks))
			for name := range report.Checks {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Overall: %s\n", report.Status)
			for _, name := range names {
				check := report.Checks[name]
				fmt.Fprintf(out, "  %-10s %-9s %s\n", name, check.Status, check.Message)
			}
		}
		if report.Status == observability.HealthStatusUnhealthy {
			return errors.New("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
