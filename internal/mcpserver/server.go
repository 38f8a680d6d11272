// Package mcpserver exposes the bounded tool set (internal/tools) to MCP
// clients (Claude Code, Cursor) over modelcontextprotocol/go-sdk, grounded
// on the donor's internal/mcp.Server registration pattern generalized from
// its per-tool typed handlers to a single map[string]any bridge, since
// every tool here already shares one orchestrator.Handler shape.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	protoerrors "github.com/sagittacore/sagitta/internal/mcp"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/pkg/version"
)

// ToolInfo describes one registered tool, for clients that want a listing
// without going through the wire protocol (e.g. this package's own tests).
type ToolInfo struct {
	Name        string
	Description string
}

// toolDescriptions holds the human-facing description shown to MCP clients for
// each canonical tool (spec §6's Tool API table).
var toolDescriptions = map[string]string{
	"ping":                      "Health check. Returns a pong message.",
	"repository_add":            "Clone or adopt a local Git repository and register it for indexing and search.",
	"repository_list":           "List every registered repository with its default and active branch.",
	"repository_remove":         "Deregister a repository. Does not delete its vector store collections.",
	"repository_sync":           "Bring a repository's branch collection up to date with its working tree.",
	"repository_switch_branch":  "Change a repository's active branch and check it out on disk.",
	"repository_view_file":      "Read a file from a registered repository's working tree, optionally windowed by line range.",
	"repository_map":            "Render a structural map of a registered repository's working tree.",
	"semantic_search":           "Search a repository's indexed branch by meaning, not just keywords.",
	"read_file":                 "Read a file from disk, optionally windowed by line range.",
	"write_file":                "Write content to a file, optionally creating parent directories.",
	"edit_file":                 "Replace an exact string occurrence in a file and return a unified diff.",
	"multi_edit_file":           "Apply a sequence of string replacements to a file atomically.",
	"create_directory":          "Create a directory, including any missing parents.",
	"shell_execute":             "Run a shell command, capturing stdout, stderr, and exit code.",
}

// Server wraps an mcp.Server configured with every tool the orchestrator
// knows how to run.
type Server struct {
	mcp      *mcp.Server
	handlers map[string]orchestrator.Handler
	logger   *slog.Logger
}

// New builds a Server, registering every handler in handlers as an MCP
// tool. Tool names not present in toolDescriptions still register, with an
// empty description.
func New(handlers map[string]orchestrator.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "sagitta",
			Version: version.Version,
		}, nil),
		handlers: handlers,
		logger:   logger,
	}

	for name, handler := range handlers {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        name,
			Description: toolDescriptions[name],
		}, bridgeHandler(name, handler))
		s.logger.Debug("registered MCP tool", "name", name)
	}

	return s
}

// bridgeHandler adapts an orchestrator.Handler (map[string]any in, out) into
// the MCP SDK's typed CallToolRequest/result shape.
func bridgeHandler(name string, handler orchestrator.Handler) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, map[string]any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
		output, err := handler(ctx, orchestrator.ToolExecutionRequest{ToolName: name, Params: input}, func(string) {})
		if err != nil {
			return nil, nil, protoerrors.MapError(err)
		}
		return nil, output, nil
	}
}

// ListTools returns every registered tool's name and description.
func (s *Server) ListTools() []ToolInfo {
	infos := make([]ToolInfo, 0, len(s.handlers))
	for name := range s.handlers {
		infos = append(infos, ToolInfo{Name: name, Description: toolDescriptions[name]})
	}
	return infos
}

// CallTool invokes a registered tool directly, bypassing the wire
// transport; useful for embedding the tool set in another host process
// and for this package's own tests.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	handler, ok := s.handlers[name]
	if !ok {
		return nil, protoerrors.NewMethodNotFoundError(name)
	}
	return handler(ctx, orchestrator.ToolExecutionRequest{ToolName: name, Params: args}, func(string) {})
}

// Serve runs the server over stdio, the only transport the SDK supports
// for a local MCP client today; the session transport (internal/transport)
// is the HTTP/SSE surface for remote clients.
func (s *Server) Serve(ctx context.Context, transportName string) error {
	s.logger.Info("starting MCP server", "transport", transportName)

	switch transportName {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", "error", err.Error())
		}
		return err
	default:
		return fmt.Errorf("unsupported MCP transport: %s (supported: stdio)", transportName)
	}
}
