// Package orchestrator plans and executes batches of tool invocations.
// A batch of ToolExecutionRequests is compiled into an ExecutionPlan whose
// phases respect declared dependencies, then run phase-sequentially with
// full concurrency within a phase, emitting lifecycle events as each tool
// starts, streams output, and completes.
package orchestrator

import (
	"context"
	"time"
)

// ResourceRequirement names one unit of a contended resource a tool needs
// (e.g. "embedder_slot", "shell_process") and how much of it.
type ResourceRequirement struct {
	ResourceType string
	Amount       uint32
}

// ToolExecutionRequest is one tool invocation to plan and run.
type ToolExecutionRequest struct {
	ToolName          string
	RunID             string
	Params            map[string]any
	Dependencies      []string
	Timeout           time.Duration
	RequiredResources []ResourceRequirement
}

// ExecutionPhase is a batch of tools with no remaining dependencies on each
// other, safe to run concurrently.
type ExecutionPhase struct {
	PhaseNumber       int
	Tools             []string
	EstimatedDuration time.Duration
	RequiredResources map[string]uint32
}

// ExecutionPlan is the compiled phase batching for one batch of requests.
type ExecutionPlan struct {
	ID                string
	Phases            []ExecutionPhase
	EstimatedDuration time.Duration
	CriticalPath      []string
}

// ToolResult is the settled outcome of one tool invocation.
type ToolResult struct {
	ToolName  string
	RunID     string
	Success   bool
	TimedOut  bool
	Output    map[string]any
	Error     string
	Duration  time.Duration
}

// ExecutionResult is the settled outcome of running an entire plan.
type ExecutionResult struct {
	Plan    ExecutionPlan
	Results []ToolResult
}

// Handler dispatches one tool invocation to its implementation. Streaming
// output, if any, is reported through emit before Handler returns; the
// orchestrator wraps the returned output/error into the terminal
// tool_completed event itself.
type Handler func(ctx context.Context, req ToolExecutionRequest, emit func(message string)) (map[string]any, error)
