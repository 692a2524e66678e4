package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose today's plan,
// progress and the learned insights.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	srv.Resource("tempo://plan/today").
		Name("Today's plan").
		Description("The plan for today with task windows and statuses").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			plan, err := showPlan(ctx, app, planDateInput{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, plan)
		})

	srv.Resource("tempo://progress/today").
		Name("Today's progress").
		Description("Completion, minutes ahead or behind, momentum and skip risk for today").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			progress, err := showProgress(ctx, app, planDateInput{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, progress)
		})

	srv.Resource("tempo://insights").
		Name("Insights").
		Description("Estimation buffer, productive hours and momentum trends").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			insights, err := showInsights(ctx, app)
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, insights)
		})

	srv.Resource("tempo://health").
		Name("Health").
		Description("Status of the database, cache, broker and advisory model").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			report, err := health(ctx, app)
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, report)
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
