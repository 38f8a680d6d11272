package tools

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/orchestrator"
)

// WriteFile writes content to path, optionally creating parent
// directories first (spec §6's write_file).
func WriteFile(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	path, ok := stringParam(req.Params, "path")
	if !ok || path == "" {
		return nil, errors.ToolError("write_file requires a non-empty \"path\"", nil)
	}
	content, _ := stringParam(req.Params, "content")

	if optionalBool(req.Params, "create_dirs") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.ToolError("create parent directories for "+path, err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errors.ToolError("write file "+path, err)
	}
	return map[string]any{}, nil
}

// CreateDirectory creates path and any missing parents (spec §6's
// create_directory).
func CreateDirectory(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	path, ok := stringParam(req.Params, "path")
	if !ok || path == "" {
		return nil, errors.ToolError("create_directory requires a non-empty \"path\"", nil)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.ToolError("create directory "+path, err)
	}
	return map[string]any{}, nil
}
