package tools

import (
	"context"
	"os"
	"strings"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/mcp"
	"github.com/sagittacore/sagitta/internal/orchestrator"
)

// ReadFile returns a file's content, optionally restricted to a 1-indexed
// inclusive [start_line, end_line] window (spec §6's read_file).
func ReadFile(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	path, ok := stringParam(req.Params, "path")
	if !ok || path == "" {
		return nil, errors.ToolError("read_file requires a non-empty \"path\"", nil)
	}

	content, err := readLines(path, req.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content, "mime_type": mcp.MimeTypeForPath(path)}, nil
}

// readLines reads the file at path and slices it to the start_line/
// end_line window given in params, if any.
func readLines(path string, params map[string]any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.ToolError("read file "+path, err)
	}

	startLine := optionalInt(params, "start_line", 0)
	endLine := optionalInt(params, "end_line", 0)
	if startLine <= 0 && endLine <= 0 {
		return string(data), nil
	}

	lines := strings.Split(string(data), "\n")
	if startLine <= 0 {
		startLine = 1
	}
	if endLine <= 0 || endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) {
		return "", nil
	}
	return strings.Join(lines[startLine-1:endLine], "\n"), nil
}
