// Package registry is the Connection Registry (spec.md §4.2): one
// actor-style Session per configured Client, a wall-clock-aligned
// heartbeat, and execute_shell/execute_telnet with per-session mutual
// exclusion.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starscheduler/starscheduler/internal/id"
	"github.com/starscheduler/starscheduler/internal/metrics"
	"github.com/starscheduler/starscheduler/internal/model"
	"github.com/starscheduler/starscheduler/internal/transport"
)

const (
	heartbeatTick     = 5 * time.Second
	heartbeatPoll     = 550 * time.Millisecond
	initialConnectCap = 1 * time.Second
	initialConnectTries = 3
)

// Session is one actor-style connection holder for a Client. Its own
// mutex serializes command execution and reconnects, making "at most
// one in-flight command per session" hold without a type-level
// guarantee (spec.md §9 notes the actor alternative; this struct is
// the lock-around-handle realization the teacher's codebase uses).
type Session struct {
	Client model.Client

	SessionUUID string

	mu        sync.Mutex
	handle    transport.Handle
	connected bool

	lastActivity int64 // unix nanos
	errorCount   int64
}

func newSession(cl model.Client) *Session {
	return &Session{
		Client:      cl,
		SessionUUID: id.SessionUUID(),
	}
}

// Connected reports the cached liveness flag. It never blocks on
// network I/O (spec.md §4.2's is_client_connected contract).
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LastActivity returns the time of the last successful execute call
// (the Unix epoch if there has been none).
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Unix(0, s.lastActivity)
}

// ErrorCount returns the cumulative count of failed connects and
// failed execute calls.
func (s *Session) ErrorCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// connectLocked dials a fresh handle. Caller must hold s.mu.
func (s *Session) connectLocked(ctx context.Context, drv transport.PersistentDriver) error {
	h, err := drv.Open(ctx, s.Client)
	if err != nil {
		s.setConnectedLocked(false)
		s.errorCount++
		return err
	}
	if s.handle != nil {
		s.handle.Close()
	}
	s.handle = h
	s.setConnectedLocked(true)
	return nil
}

// setConnectedLocked updates the cached liveness flag and the
// active-sessions gauge together so the two never drift apart. Caller
// must hold s.mu.
func (s *Session) setConnectedLocked(connected bool) {
	if s.connected == connected {
		return
	}
	s.connected = connected
	if connected {
		metrics.ActiveSessions.Inc()
	} else {
		metrics.ActiveSessions.Dec()
	}
}

// execute runs command against the session's live handle, falling
// back to marking the session dead on failure. The caller
// (Registry.ExecuteShell/ExecuteTelnet) guarantees drv matches the
// session's transport.
func (s *Session) execute(ctx context.Context, drv transport.PersistentDriver, command string, timeout time.Duration) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.handle == nil {
		if err := s.connectLocked(ctx, drv); err != nil {
			return "", "", fmt.Errorf("registry: reconnect %s: %w", s.Client.ID, err)
		}
	}

	stdout, stderr, err := s.handle.Execute(ctx, command, timeout)
	if err != nil {
		s.setConnectedLocked(false)
		s.errorCount++
		return stdout, stderr, err
	}
	s.lastActivity = time.Now().UnixNano()
	return stdout, stderr, nil
}

// heartbeatCheck snapshots liveness and, if dead, launches a
// best-effort reconnect. The caller must NOT hold s.mu before calling
// this (the registry heartbeat loop calls it without the lock held,
// per spec.md §4.2: "heartbeat never holds the session locks during
// reconnect").
func (s *Session) heartbeatCheck(ctx context.Context, drv transport.PersistentDriver) {
	s.mu.Lock()
	alive := s.connected && s.handle != nil && s.handle.Alive()
	s.setConnectedLocked(alive)
	needsReconnect := !alive
	s.mu.Unlock()

	if !needsReconnect {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return // another caller already reconnected it
	}
	if err := s.connectLocked(ctx, drv); err != nil {
		slog.Warn("heartbeat reconnect failed", "client_id", s.Client.ID, "error", err)
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	s.setConnectedLocked(false)
}

// Registry owns one Session per configured Client behind a
// sync.RWMutex map (spec.md §9's "registry as a map of session
// handles").
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUUID   map[string]*Session

	drivers map[model.Transport]transport.PersistentDriver
}

// New builds a Registry for clients. For shell and telnet it spawns
// an immediate non-blocking connect (smoothed by cenkalti/backoff's
// exponential backoff capped around 1s across up to 3 attempts); for
// datagram and subprocess it marks the session connected
// unconditionally, since those transports are stateless
// (spec.md §4.2's start contract).
func New(ctx context.Context, clients []model.Client) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session, len(clients)),
		byUUID:   make(map[string]*Session, len(clients)),
		drivers: map[model.Transport]transport.PersistentDriver{
			model.TransportShell:  transport.NewShellDriver(),
			model.TransportTelnet: transport.NewTelnetDriver(),
		},
	}

	for _, cl := range clients {
		s := newSession(cl)
		r.sessions[cl.ID] = s
		r.byUUID[s.SessionUUID] = s

		switch cl.Transport {
		case model.TransportShell, model.TransportTelnet:
			drv := r.drivers[cl.Transport]
			go r.initialConnect(ctx, s, drv)
		case model.TransportDatagram, model.TransportSubprocess:
			s.mu.Lock()
			s.setConnectedLocked(true)
			s.mu.Unlock()
		}
	}
	return r
}

// initialConnect smooths transient startup races (the target process
// may not be listening yet) without touching the heartbeat-driven
// reconnect timing invariant: up to initialConnectTries attempts with
// exponential backoff capped around initialConnectCap, matching the
// teacher's newDefaultBackoff/NextBackOff reconnect loop shape.
func (r *Registry) initialConnect(ctx context.Context, s *Session, drv transport.PersistentDriver) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = initialConnectCap
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2

	var lastErr error
	for attempt := 0; attempt < initialConnectTries; attempt++ {
		s.mu.Lock()
		lastErr = s.connectLocked(ctx, drv)
		s.mu.Unlock()
		if lastErr == nil {
			return
		}
		d := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
	if lastErr != nil {
		slog.Warn("initial connect failed, heartbeat will retry", "client_id", s.Client.ID, "error", lastErr)
	}
}

// GetSession returns the session for clientID, or nil.
func (r *Registry) GetSession(clientID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[clientID]
}

// GetSessionByUUID returns the session with the given session UUID, or nil.
func (r *Registry) GetSessionByUUID(uuid string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUUID[uuid]
}

// IsClientConnected returns the cached liveness flag for clientID.
// Never blocks on network I/O.
func (r *Registry) IsClientConnected(clientID string) bool {
	s := r.GetSession(clientID)
	if s == nil {
		return false
	}
	return s.Connected()
}

// ExecuteShell runs command over clientID's shell session.
func (r *Registry) ExecuteShell(ctx context.Context, clientID, command string, timeout time.Duration) (string, string, error) {
	return r.execute(ctx, model.TransportShell, clientID, command, timeout)
}

// ExecuteTelnet runs command over clientID's telnet session.
func (r *Registry) ExecuteTelnet(ctx context.Context, clientID, command string, timeout time.Duration) (string, string, error) {
	return r.execute(ctx, model.TransportTelnet, clientID, command, timeout)
}

func (r *Registry) execute(ctx context.Context, want model.Transport, clientID, command string, timeout time.Duration) (string, string, error) {
	s := r.GetSession(clientID)
	if s == nil {
		return "", "", fmt.Errorf("registry: no session for client %q", clientID)
	}
	if s.Client.Transport != want {
		return "", "", fmt.Errorf("registry: client %q is %s, not %s", clientID, s.Client.Transport, want)
	}
	drv := r.drivers[want]
	return s.execute(ctx, drv, command, timeout)
}

// RunHeartbeat runs the wall-clock-aligned heartbeat loop until ctx is
// canceled. It only acts on ticks whose wall-clock second is
// divisible by five, polling every heartbeatPoll so a miss cannot
// exceed one 5s tick (spec.md §4.2).
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Second()%5 != 0 {
				continue
			}
			r.heartbeatOnce(ctx)
		}
	}
}

func (r *Registry) heartbeatOnce(ctx context.Context) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		switch s.Client.Transport {
		case model.TransportShell, model.TransportTelnet:
			drv := r.drivers[s.Client.Transport]
			go s.heartbeatCheck(ctx, drv)
		}
	}
}

// Shutdown closes every session's handle and clears the registry so
// GetSession/GetSessionByUUID return nil for all clients afterward
// (spec.md §8). Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.close()
	}
	r.sessions = make(map[string]*Session)
	r.byUUID = make(map[string]*Session)
}

// SessionStatus is the observability snapshot of one session
// (spec.md §4.6's get_all_sessions_status).
type SessionStatus struct {
	ClientID     string
	SessionUUID  string
	Transport    model.Transport
	Connected    bool
	ErrorCount   int64
	LastActivity time.Time
}

// AllStatus returns one SessionStatus per registered session.
func (r *Registry) AllStatus() []SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionStatus, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionStatus{
			ClientID:     s.Client.ID,
			SessionUUID:  s.SessionUUID,
			Transport:    s.Client.Transport,
			Connected:    s.Connected(),
			ErrorCount:   s.ErrorCount(),
			LastActivity: s.LastActivity(),
		})
	}
	return out
}
