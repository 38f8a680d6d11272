// Package events carries sync and tool-execution progress out to whatever
// is listening (the session transport's SSE stream, a CLI progress bar).
// It generalizes the donor's async.IndexProgress polling snapshot into a
// push model, since spec §4.4/§4.6/§4.7 require consumers to observe
// every named stage or tool-lifecycle transition rather than sample a
// point-in-time snapshot.
package events

import (
	"sync"
	"time"
)

// Stage is one of the fixed named sync stages (spec §4.4).
type Stage string

const (
	StageGitFetch            Stage = "GitFetch"
	StageDiffCalculation     Stage = "DiffCalculation"
	StageCollectFiles        Stage = "CollectFiles"
	StageIndexFile           Stage = "IndexFile"
	StageDeleteFile          Stage = "DeleteFile"
	StageVerifyingCollection Stage = "VerifyingCollection"
	StageCompleted           Stage = "Completed"
	StageError               Stage = "Error"
	StageHeartbeat           Stage = "Heartbeat"
	StageIdle                Stage = "Idle"
)

// SyncEvent is a single progress update for one (repository, branch) sync.
type SyncEvent struct {
	Repository string    `json:"repository"`
	Branch     string    `json:"branch"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	Total      int       `json:"total,omitempty"`
	Completed  int       `json:"completed,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToolEventKind distinguishes the three moments of a tool invocation's
// lifecycle (spec §4.6's "emits, in order, tool_started, zero or more
// streaming events, then exactly one tool_completed").
type ToolEventKind string

const (
	ToolEventStarted   ToolEventKind = "tool_started"
	ToolEventStreaming ToolEventKind = "streaming"
	ToolEventCompleted ToolEventKind = "tool_completed"
)

// ToolEvent is one event in a tool invocation's lifecycle, tagged with the
// session and invocation (run) id so a transport can preserve per-
// invocation order without serializing unrelated invocations (spec §4.7).
type ToolEvent struct {
	SessionID string        `json:"session_id"`
	RunID     string        `json:"run_id"`
	Tool      string        `json:"tool"`
	Kind      ToolEventKind `json:"kind"`
	Sequence  uint64        `json:"sequence"`
	Success   bool          `json:"success,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// subscriberBuffer bounds how many unconsumed events a slow subscriber can
// pile up before further sends are dropped for it, so one stalled listener
// never backs up the publisher.
const subscriberBuffer = 256

// Broadcaster fans events of type T out to any number of subscribers. Each
// subscriber gets its own buffered channel; a full channel drops the event
// rather than blocking Publish.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// NewBroadcaster creates an empty event broadcaster for event type T.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must invoke when done.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan T, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
}

// Publish sends event to every current subscriber, non-blocking.
func (b *Broadcaster[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SequenceCounter hands out strictly increasing sequence numbers for one
// session's ToolEvents, so a transport can detect gaps or reordering.
type SequenceCounter struct {
	mu   sync.Mutex
	next uint64
}

// Next returns the next sequence number, starting at 1.
func (c *SequenceCounter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}
