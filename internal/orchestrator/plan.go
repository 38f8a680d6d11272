package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sagittacore/sagitta/internal/errors"
)

// PlanTimeout bounds how long plan construction itself may take.
const PlanTimeout = 10 * time.Second

// Planner builds ExecutionPlans from a batch of requests.
type Planner struct {
	defaultToolTimeout time.Duration
}

// NewPlanner creates a Planner that falls back to defaultToolTimeout for
// any request that doesn't specify its own.
func NewPlanner(defaultToolTimeout time.Duration) *Planner {
	return &Planner{defaultToolTimeout: defaultToolTimeout}
}

// CreatePlan builds an ExecutionPlan for requests, batching into phases by
// dependency topology. It fails fast on a dependency cycle and is itself
// bounded by PlanTimeout.
func (p *Planner) CreatePlan(ctx context.Context, requests []ToolExecutionRequest) (ExecutionPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, PlanTimeout)
	defer cancel()

	type result struct {
		plan ExecutionPlan
		err  error
	}
	done := make(chan result, 1)

	go func() {
		plan, err := p.buildPlan(requests)
		done <- result{plan, err}
	}()

	select {
	case r := <-done:
		return r.plan, r.err
	case <-ctx.Done():
		return ExecutionPlan{}, errors.OrchestrationError("Execution plan creation timed out", ctx.Err())
	}
}

func (p *Planner) buildPlan(requests []ToolExecutionRequest) (ExecutionPlan, error) {
	nodes, edges := buildGraph(requests)

	if err := detectCycle(nodes, edges); err != nil {
		return ExecutionPlan{}, err
	}

	phases, err := p.createExecutionPhases(nodes, edges, requests)
	if err != nil {
		return ExecutionPlan{}, err
	}

	var estimatedDuration time.Duration
	for _, phase := range phases {
		estimatedDuration += phase.EstimatedDuration
	}

	return ExecutionPlan{
		ID:                uuid.NewString(),
		Phases:            phases,
		EstimatedDuration: estimatedDuration,
		CriticalPath:      findCriticalPath(nodes, edges),
	}, nil
}

// buildGraph reads node = tool name, edges[tool] = tool's dependencies
// directly off the requests.
func buildGraph(requests []ToolExecutionRequest) (nodes []string, edges map[string][]string) {
	edges = make(map[string][]string)
	for _, req := range requests {
		nodes = append(nodes, req.ToolName)
		if len(req.Dependencies) > 0 {
			edges[req.ToolName] = append([]string(nil), req.Dependencies...)
		}
	}
	return nodes, edges
}

// detectCycle runs Kahn's algorithm: a node belongs to the same phase as
// soon as every dependency it has is gone from the remaining set. If no
// node can be peeled off in some round, a cycle remains.
func detectCycle(nodes []string, edges map[string][]string) error {
	remaining := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n] = true
	}

	for len(remaining) > 0 {
		var peeled []string
		for n := range remaining {
			if !hasPendingDependency(n, edges, remaining) {
				peeled = append(peeled, n)
			}
		}
		if len(peeled) == 0 {
			return errors.OrchestrationError("Circular dependency detected", nil)
		}
		for _, n := range peeled {
			delete(remaining, n)
		}
	}
	return nil
}

func hasPendingDependency(node string, edges map[string][]string, remaining map[string]bool) bool {
	for _, dep := range edges[node] {
		if remaining[dep] {
			return true
		}
	}
	return false
}

// createExecutionPhases peels nodes with no remaining dependency into
// successive phases, mirroring the donor planner's remaining-set loop.
func (p *Planner) createExecutionPhases(nodes []string, edges map[string][]string, requests []ToolExecutionRequest) ([]ExecutionPhase, error) {
	remaining := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n] = true
	}

	byName := make(map[string]ToolExecutionRequest, len(requests))
	for _, req := range requests {
		byName[req.ToolName] = req
	}

	var phases []ExecutionPhase
	phaseNumber := 0

	for len(remaining) > 0 {
		var current []string
		for n := range remaining {
			if !hasPendingDependency(n, edges, remaining) {
				current = append(current, n)
			}
		}
		if len(current) == 0 {
			return nil, errors.OrchestrationError("Circular dependency detected", nil)
		}
		sort.Strings(current)
		for _, n := range current {
			delete(remaining, n)
		}

		phases = append(phases, ExecutionPhase{
			PhaseNumber:       phaseNumber,
			Tools:             current,
			EstimatedDuration: p.estimatePhaseDuration(current, byName),
			RequiredResources: calculatePhaseResources(current, byName),
		})
		phaseNumber++
	}

	return phases, nil
}

func (p *Planner) estimatePhaseDuration(tools []string, byName map[string]ToolExecutionRequest) time.Duration {
	var max time.Duration
	for _, name := range tools {
		req, ok := byName[name]
		if !ok {
			continue
		}
		d := req.Timeout
		if d <= 0 {
			d = p.defaultToolTimeout
		}
		if d > max {
			max = d
		}
	}
	return max
}

func calculatePhaseResources(tools []string, byName map[string]ToolExecutionRequest) map[string]uint32 {
	totals := make(map[string]uint32)
	for _, name := range tools {
		req, ok := byName[name]
		if !ok {
			continue
		}
		for _, r := range req.RequiredResources {
			totals[r.ResourceType] += r.Amount
		}
	}
	return totals
}

// findCriticalPath returns the longest dependency chain in the graph,
// searching from every node since the graph need not be connected.
func findCriticalPath(nodes []string, edges map[string][]string) []string {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)

	visited := make(map[string]bool, len(nodes))
	var longest []string
	for _, n := range sorted {
		if visited[n] {
			continue
		}
		path := longestPathFrom(n, edges, visited)
		if len(path) > len(longest) {
			longest = path
		}
	}
	return longest
}

// longestPathFrom walks dependency edges depth-first, guarding against
// cycles with the shared visited set (cleared on backtrack, as in the
// donor's recursive search) even though CreatePlan already rejects cycles
// before this runs.
func longestPathFrom(node string, edges map[string][]string, visited map[string]bool) []string {
	if visited[node] {
		return nil
	}
	visited[node] = true
	defer delete(visited, node)

	deps := append([]string(nil), edges[node]...)
	sort.Strings(deps)

	var longestSub []string
	for _, dep := range deps {
		sub := longestPathFrom(dep, edges, visited)
		if len(sub) > len(longestSub) {
			longestSub = sub
		}
	}

	return append([]string{node}, longestSub...)
}
