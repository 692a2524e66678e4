package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for the daily planning loop.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("daily_planning").
		Description("Plan today from an energy check-in and a task list.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			energy := strings.TrimSpace(args["energy"])
			if energy == "" {
				energy = "ask me how I feel on a scale of 0 to 100"
			}
			return userPrompt("Daily Planning Session", fmt.Sprintf(`Help me plan my day.

1. Capacity: %s.
2. Read tempo://insights to see my estimation buffer and productive hours.
3. Ask me for today's tasks with estimates in minutes and a priority from 1 (urgent) to 4.
4. Pick a mode: recovery for a low-energy day, deep_work when I want long focus blocks, balanced otherwise.
5. Call plan.generate with the capacity score, mode and tasks.

Then walk me through the plan. Point out any unscheduled tasks and suggest
what I could drop or move if the day looks too full.`, energy)), nil
		})

	srv.Prompt("midday_check_in").
		Description("Review progress and decide whether to rebuild the rest of the day.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Midday Check-in", `Check how my day is going.

1. Read tempo://progress/today.
2. Tell me whether I am ahead or behind and which task is most at risk of being skipped.
3. If a reschedule is suggested, call plan.reschedule without apply and explain the proposal.
4. Ask before calling plan.reschedule with apply=true.

If my momentum has stalled, keep the suggestions small and concrete.`), nil
		})

	srv.Prompt("end_of_day").
		Description("Close the day: record what got done and look at what carries over.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("End of Day Review", `Help me close out the day.

1. Call sync.reconcile if a task source is configured.
2. Read tempo://plan/today and ask which open tasks I actually finished, then record them with task.complete.
3. Summarize completed, skipped and deferred work.
4. Read tempo://insights and tell me one thing about my estimates or hours worth knowing for tomorrow.`), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
