package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/tempo/internal/app"
	mcpinternal "github.com/felixgeelhaar/tempo/internal/mcp"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start an MCP server over HTTP exposing the plan, progress, reschedule
and insights tools. Set MCP_AUTH_TOKEN to require a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}

		logger := newServerLogger(cmd.ErrOrStderr(), cfg.IsDevelopment())

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		cliApp := mcpinternal.NewCLIApp(container, container.UserID)
		err = mcpinternal.Serve(ctx, cfg, cliApp, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func newServerLogger(out io.Writer, debug bool) *slog.Logger {
	level := observability.LogLevelInfo
	if debug {
		level = observability.LogLevelDebug
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      observability.LogFormatText,
		Output:      out,
		ServiceName: "tempo-mcp",
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default MCP_ADDR)")
}
