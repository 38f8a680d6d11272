package tools

import (
	"context"

	"github.com/sagittacore/sagitta/internal/orchestrator"
)

// Ping answers liveness checks with a fixed payload (spec §6).
func Ping(_ context.Context, _ orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	return map[string]any{"message": "pong"}, nil
}
