package tools

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagittacore/sagitta/internal/orchestrator"
)

func TestShellExecuteRunsCommandAndCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell command")
	}
	d := &Deps{}

	result, err := d.ShellExecute(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"command": "echo hello"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result["exit_code"])
	require.Contains(t, result["stdout"], "hello")
	require.Equal(t, false, result["timed_out"])
}

func TestShellExecuteReportsNonZeroExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell command")
	}
	d := &Deps{}

	result, err := d.ShellExecute(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"command": "exit 3"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, result["exit_code"])
}

func TestShellExecuteTimesOutLongRunningCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell command")
	}
	d := &Deps{}

	result, err := d.ShellExecute(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"command": "sleep 5", "timeout_ms": float64(50)},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, -1, result["exit_code"])
	require.Equal(t, true, result["timed_out"])
}

func TestShellExecuteRequiresNonEmptyCommand(t *testing.T) {
	d := &Deps{}

	_, err := d.ShellExecute(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"command": ""},
	}, nil)
	require.Error(t, err)
}
