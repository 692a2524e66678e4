package cli

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/spf13/cobra"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show what Tempo has learned about you",
	Long: `Show the estimation buffer, your peak and low hours and momentum
trends across recent days.

Examples:
  tempo insights
  tempo insights --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.GetInsightsHandler == nil {
			return errNotInitialized
		}

		dto, err := app.GetInsightsHandler.Handle(cmd.Context(), queries.GetInsightsQuery{
			UserID:   app.CurrentUserID,
			Location: app.Location,
			Now:      app.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to load insights: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), dto)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  INSIGHTS (%d days)\n", dto.Days)
		fmt.Fprintln(w, strings.Repeat("=", 60))
		fmt.Fprintf(w, "  Estimation buffer: x%.2f (%s confidence, %d samples)\n",
			dto.Buffer.Buffer, dto.Buffer.Confidence, dto.Buffer.SampleSize)
		if dto.Buffer.Recommendation != "" {
			fmt.Fprintf(w, "    %s\n", dto.Buffer.Recommendation)
		}
		fmt.Fprintf(w, "  Peak hours: %s\n", formatHours(dto.PeakHours))
		fmt.Fprintf(w, "  Low hours:  %s\n", formatHours(dto.LowHours))
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "  Morning start strength:   %3d%%\n", dto.Trends.MorningStartStrength)
		fmt.Fprintf(w, "  Completion after a win:   %3d%%\n", dto.Trends.CompletionAfterEarlyWinRate)
		fmt.Fprintf(w, "  Afternoon falloff:        %3d%%\n", dto.Trends.AfternoonFalloff)
		fmt.Fprintf(w, "  Trend confidence: %s\n", dto.Trends.Confidence)

		if verbose {
			fmt.Fprintln(w, strings.Repeat("-", 60))
			for _, h := range dto.Hours {
				if h.Total == 0 {
					continue
				}
				fmt.Fprintf(w, "  %02d:00  %3d/%-3d  %3.0f%%\n", h.Hour, h.Completed, h.Total, h.Rate*100)
			}
		}
		fmt.Fprintln(w)
		return nil
	},
}

func formatHours(hours []int) string {
	if len(hours) == 0 {
		return "not enough data yet"
	}
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d:00", h)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(insightsCmd)
}
