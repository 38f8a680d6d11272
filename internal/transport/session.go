package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/events"
)

// Session is one live client connection: a cancellable context that cascades
// to every tool invocation running on behalf of the session, plus the
// bookkeeping needed to detect idleness and missed heartbeats (spec §4.7,
// §5).
type Session struct {
	ID       string
	events   <-chan events.ToolEvent
	unsub    func()
	cancel   context.CancelFunc
	ctx      context.Context

	mu            sync.Mutex
	lastActivity  time.Time
	lastHeartbeat time.Time
}

// Events returns the channel the session's owner reads ToolEvents from.
func (s *Session) Events() <-chan events.ToolEvent {
	return s.events
}

// Context is cancelled when the session is terminated, whether by
// disconnect, idle timeout, or missed heartbeat.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) recordHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) heartbeatSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastHeartbeat)
}

// ManagerConfig bounds a Manager's lifecycle behaviour (spec §4.7, §5).
type ManagerConfig struct {
	IdleTimeout       time.Duration
	HeartbeatInterval time.Duration
	MissedHeartbeats  int
}

// DefaultManagerConfig mirrors the donor's conservative session defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTimeout:       30 * time.Minute,
		HeartbeatInterval: 15 * time.Second,
		MissedHeartbeats:  3,
	}
}

// Manager is the registry of live sessions (spec §4.7's "session
// registry"). It owns each Session's broadcaster subscription and runs the
// idle-timeout/heartbeat sweep that terminates stale sessions.
type Manager struct {
	cfg         ManagerConfig
	broadcaster *events.Broadcaster[events.ToolEvent]
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a Manager sweeping for idle/unresponsive sessions on
// cfg's heartbeat interval. broadcaster is the orchestrator's ToolEvent
// broadcaster, shared across every session.
func NewManager(cfg ManagerConfig, broadcaster *events.Broadcaster[events.ToolEvent], logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:         cfg,
		broadcaster: broadcaster,
		logger:      logger,
		sessions:    make(map[string]*Session),
		stopCh:      make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Open registers a new Session and returns it along with its Handshake.
func (m *Manager) Open() (*Session, Handshake) {
	ch, unsub := m.broadcaster.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()
	now := time.Now()
	sess := &Session{
		ID:            id,
		events:        ch,
		unsub:         unsub,
		cancel:        cancel,
		ctx:           ctx,
		lastActivity:  now,
		lastHeartbeat: now,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, Handshake{SessionID: id, InvokeURL: "/sessions/" + id + "/invoke"}
}

// Get returns the session with id, if still registered.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Touch records activity on the session, resetting its idle timer.
func (m *Manager) Touch(id string) {
	if s, ok := m.Get(id); ok {
		s.touch()
	}
}

// Heartbeat records a heartbeat from the session's client.
func (m *Manager) Heartbeat(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return errors.SessionError("session "+id+" not found", nil)
	}
	s.recordHeartbeat()
	return nil
}

// Close terminates the session: its context is cancelled, cascading to
// every tool invocation it started, it is unsubscribed from the
// broadcaster, and removed from the registry (spec §4.7's "on disconnect,
// remove the session... and cancel all its tools").
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	s.cancel()
	s.unsub()
}

// Stop halts the sweep loop and closes every remaining session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

func (m *Manager) sweepLoop() {
	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	missedThreshold := time.Duration(m.cfg.MissedHeartbeats) * m.cfg.HeartbeatInterval

	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if m.cfg.IdleTimeout > 0 && s.idleSince() > m.cfg.IdleTimeout {
			stale = append(stale, id)
			continue
		}
		if missedThreshold > 0 && s.heartbeatSince() > missedThreshold {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.Info("terminating stale session", "session_id", id)
		m.Close(id)
	}
}
