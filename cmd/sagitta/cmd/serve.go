package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagittacore/sagitta/internal/events"
	"github.com/sagittacore/sagitta/internal/mcpserver"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/transport"
)

func newServeCmd() *cobra.Command {
	var mcpTransport string
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server and the HTTP session transport",
		Long: `Start two listeners sharing the same tool set and orchestrator:

  - an MCP server (stdio by default) for clients that speak the Model
    Context Protocol directly (Claude Code, Cursor);
  - an HTTP session transport (SSE + JSON-RPC invocation) at --http-addr
    for clients that prefer a plain HTTP session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, mcpTransport, httpAddr)
		},
	}

	cmd.Flags().StringVar(&mcpTransport, "mcp-transport", "stdio", "MCP transport (stdio)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Address for the HTTP session transport (empty disables it)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, mcpTransport, httpAddr string) error {
	deps, err := buildRuntimeDeps(ctx, ".", nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	handlers := toolHandlers(deps)
	broadcaster := events.NewBroadcaster[events.ToolEvent]()
	toolTimeout := defaultToolTimeout(deps.cfg.Orchestrator)

	mcp := mcpserver.New(handlers, nil)

	if httpAddr == "" {
		return mcp.Serve(ctx, mcpTransport)
	}

	sessions := transport.NewManager(transport.DefaultManagerConfig(), broadcaster, nil)
	defer sessions.Stop()

	planner := orchestrator.NewPlanner(toolTimeout)
	executor := orchestrator.NewExecutor(handlers, broadcaster, toolTimeout)
	httpServer := transport.NewServer(sessions, planner, executor, nil)

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           httpServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := mcp.Serve(ctx, mcpTransport); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("mcp server: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http session transport: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
