package tools

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/orchestrator"
)

const defaultShellTimeout = 30 * time.Second

// shellCommand returns the OS-appropriate shell invocation for running an
// arbitrary command string.
func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

// ShellExecute runs command through the host shell, capturing stdout and
// stderr separately and reporting exit_code=-1 with timed_out=true if the
// timeout elapses before the process exits (spec §6's shell_execute).
func (d *Deps) ShellExecute(ctx context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	command, ok := stringParam(req.Params, "command")
	if !ok || command == "" {
		return nil, errors.ToolError("shell_execute requires a non-empty \"command\"", nil)
	}

	timeout := defaultShellTimeout
	if ms := optionalInt(req.Params, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	workingDir := optionalString(req.Params, "working_directory")
	if workingDir == "" {
		workingDir = d.CurrentRepoPath
	}

	shell, args := shellCommand(command)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, shell, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if env, ok := req.Params["env"].(map[string]any); ok {
		cmd.Env = append(os.Environ(), envPairs(env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsedMs := time.Since(start).Milliseconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return map[string]any{
			"command":           command,
			"exit_code":         -1,
			"stdout":            "",
			"stderr":            "command timed out",
			"execution_time_ms": elapsedMs,
			"timed_out":         true,
		}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, errors.ToolError("execute command", err)
		}
	}

	return map[string]any{
		"command":           command,
		"exit_code":         exitCode,
		"stdout":            stdout.String(),
		"stderr":            stderr.String(),
		"execution_time_ms": elapsedMs,
		"timed_out":         false,
	}, nil
}

func envPairs(env map[string]any) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		s, _ := v.(string)
		pairs = append(pairs, k+"="+s)
	}
	return pairs
}
