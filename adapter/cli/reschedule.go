package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	rescheduleDate     string
	rescheduleApply    bool
	rescheduleSimplify bool
	rescheduleGoals    []string
)

// rescheduleView is the JSON shape of a reschedule run.
type rescheduleView struct {
	Decision services.Decision         `json:"decision"`
	Proposal domain.RescheduleProposal `json:"proposal"`
	Momentum services.MomentumMetrics  `json:"momentum"`
	Applied  bool                      `json:"applied"`
	Plan     *queries.PlanDTO          `json:"plan,omitempty"`
}

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule",
	Short: "Rebuild the rest of the day",
	Long: `Check whether the day has drifted from the plan and propose a new
schedule for the remaining tasks. Without --apply nothing is changed.

When protected work no longer fits, the rebuild switches to rescue
mode and keeps only the urgent tasks. --simplify asks for the recovery
rebuild even when momentum looks fine.

Examples:
  tempo reschedule
  tempo reschedule --apply
  tempo reschedule --apply --goal "ship the release notes"
  tempo reschedule --simplify --apply`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.RescheduleHandler == nil {
			return errNotInitialized
		}

		date, err := parseDate(app, rescheduleDate)
		if err != nil {
			return err
		}
		result, err := app.RescheduleHandler.Handle(cmd.Context(), commands.RescheduleCommand{
			UserID:   app.CurrentUserID,
			Date:     date,
			Location: app.Location,
			Apply:    rescheduleApply,
			Goals:    rescheduleGoals,
			Simplify: rescheduleSimplify,
		})
		if errors.Is(err, domain.ErrPlanNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No plan for %s.\n", date.Format(dateLayout))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to reschedule: %w", err)
		}

		if outputJSON {
			view := rescheduleView{
				Decision: result.Decision,
				Proposal: result.Proposal,
				Momentum: result.Evaluation.Momentum,
				Applied:  result.Applied,
			}
			if result.Applied {
				view.Plan = queries.ToPlanDTO(result.Plan, app.Now())
			}
			return printJSON(cmd.OutOrStdout(), view)
		}
		printReschedule(cmd.OutOrStdout(), app, result)
		return nil
	},
}

func printReschedule(w io.Writer, app *App, result *commands.RescheduleResult) {
	titles := make(map[uuid.UUID]string)
	for _, t := range result.Plan.Tasks() {
		titles[t.TaskID] = t.Title
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  RESCHEDULE: %s\n", result.Decision.Type)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "  %s\n", result.Decision.Reason)
	fmt.Fprintf(w, "  %dm left until end of day, %dm budget left\n",
		result.Decision.MinutesUntilEnd, result.Decision.RemainingBudget)

	if result.Decision.Type == domain.RescheduleNone && !rescheduleSimplify {
		fmt.Fprintln(w)
		return
	}

	if len(result.Proposal.Scheduled) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, win := range result.Proposal.Scheduled {
			start, end := win.Start, win.End
			fmt.Fprintf(w, "  %s-%s  %-32s %3dm\n",
				clock(&start, app.Location), clock(&end, app.Location),
				truncate(titles[win.TaskID], 32), win.AdjustedMinutes)
			if verbose && win.Reason != "" {
				fmt.Fprintf(w, "               %s\n", win.Reason)
			}
		}
	}
	if len(result.Proposal.Deferred) > 0 {
		fmt.Fprintln(w, "  Deferred:")
		for _, d := range result.Proposal.Deferred {
			fmt.Fprintf(w, "    %-32s %s\n", truncate(titles[d.TaskID], 32), d.Reason)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	if result.Proposal.Rescue {
		fmt.Fprintln(w, "  Rescue mode: only protected work is kept.")
	}
	if result.Proposal.Justification != "" {
		fmt.Fprintf(w, "  %s (%s)\n", result.Proposal.Justification, result.Proposal.Source)
	}
	if result.Applied {
		fmt.Fprintln(w, "  Applied.")
	} else {
		fmt.Fprintln(w, "  Not applied. Run with --apply to use this schedule.")
	}
	fmt.Fprintln(w)
}

func init() {
	rescheduleCmd.Flags().StringVar(&rescheduleDate, "date", "", "plan date (YYYY-MM-DD, default today)")
	rescheduleCmd.Flags().BoolVar(&rescheduleApply, "apply", false, "store the new schedule")
	rescheduleCmd.Flags().BoolVar(&rescheduleSimplify, "simplify", false, "rebuild in recovery mode")
	rescheduleCmd.Flags().StringArrayVar(&rescheduleGoals, "goal", nil, "goal for the rest of the day (repeatable)")
	rootCmd.AddCommand(rescheduleCmd)
}
