package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sagittacore/sagitta/internal/events"
)

// Executor runs an ExecutionPlan phase by phase, dispatching each tool to
// its Handler and broadcasting lifecycle events on the given session.
type Executor struct {
	handlers           map[string]Handler
	broadcaster        *events.Broadcaster[events.ToolEvent]
	defaultToolTimeout time.Duration
}

// NewExecutor creates an Executor. handlers maps tool name to its
// dispatcher; broadcaster receives tool_started/streaming/tool_completed
// events for every invocation the executor runs.
func NewExecutor(handlers map[string]Handler, broadcaster *events.Broadcaster[events.ToolEvent], defaultToolTimeout time.Duration) *Executor {
	return &Executor{
		handlers:           handlers,
		broadcaster:        broadcaster,
		defaultToolTimeout: defaultToolTimeout,
	}
}

// Run executes every phase of plan sequentially; within a phase all tools
// run concurrently, each under its own timeout. A tool's failure does not
// abort its phase siblings; the next phase begins only once every tool in
// the current phase has settled. sessionID and seq tag emitted events for
// per-session strictly-monotonic ordering.
func (ex *Executor) Run(ctx context.Context, plan ExecutionPlan, requests []ToolExecutionRequest, sessionID string, seq *events.SequenceCounter) ExecutionResult {
	byName := make(map[string]ToolExecutionRequest, len(requests))
	for _, req := range requests {
		byName[req.ToolName] = req
	}

	result := ExecutionResult{Plan: plan}

	for _, phase := range plan.Phases {
		phaseResults := ex.runPhase(ctx, phase, byName, sessionID, seq)
		result.Results = append(result.Results, phaseResults...)

		select {
		case <-ctx.Done():
			return result
		default:
		}
	}

	return result
}

func (ex *Executor) runPhase(ctx context.Context, phase ExecutionPhase, byName map[string]ToolExecutionRequest, sessionID string, seq *events.SequenceCounter) []ToolResult {
	results := make([]ToolResult, len(phase.Tools))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range phase.Tools {
		i, name := i, name
		g.Go(func() error {
			results[i] = ex.runTool(gctx, byName[name], sessionID, seq)
			return nil
		})
	}
	// errgroup's own cancellation-on-first-error doesn't apply here since
	// runTool never returns an error; every tool settles independently.
	_ = g.Wait()

	return results
}

func (ex *Executor) runTool(ctx context.Context, req ToolExecutionRequest, sessionID string, seq *events.SequenceCounter) ToolResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = ex.defaultToolTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ex.publish(sessionID, req.RunID, req.ToolName, events.ToolEventStarted, seq, true, "")

	handler, ok := ex.handlers[req.ToolName]
	if !ok {
		msg := "no handler registered for tool " + req.ToolName
		ex.publish(sessionID, req.RunID, req.ToolName, events.ToolEventCompleted, seq, false, msg)
		return ToolResult{ToolName: req.ToolName, RunID: req.RunID, Success: false, Error: msg}
	}

	emit := func(message string) {
		ex.publish(sessionID, req.RunID, req.ToolName, events.ToolEventStreaming, seq, true, message)
	}

	start := time.Now()
	output, err := handler(toolCtx, req, emit)
	duration := time.Since(start)

	if err != nil {
		timedOut := toolCtx.Err() == context.DeadlineExceeded
		msg := err.Error()
		ex.publish(sessionID, req.RunID, req.ToolName, events.ToolEventCompleted, seq, false, msg)
		return ToolResult{ToolName: req.ToolName, RunID: req.RunID, Success: false, TimedOut: timedOut, Error: msg, Duration: duration}
	}

	ex.publish(sessionID, req.RunID, req.ToolName, events.ToolEventCompleted, seq, true, "")
	return ToolResult{ToolName: req.ToolName, RunID: req.RunID, Success: true, Output: output, Duration: duration}
}

func (ex *Executor) publish(sessionID, runID, tool string, kind events.ToolEventKind, seq *events.SequenceCounter, success bool, message string) {
	if ex.broadcaster == nil {
		return
	}
	ex.broadcaster.Publish(events.ToolEvent{
		SessionID: sessionID,
		RunID:     runID,
		Tool:      tool,
		Kind:      kind,
		Sequence:  seq.Next(),
		Success:   success,
		Message:   message,
		Timestamp: time.Now(),
	})
}
