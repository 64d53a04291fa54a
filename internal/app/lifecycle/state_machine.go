// Package lifecycle tracks the connection states of one session and turns
// them into readiness, timeout and teardown decisions.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

type Outcome int

const (
	OutcomeConnected Outcome = iota + 1
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Hooks are the reactions injected by the owner of the session.
// Every hook is optional.
type Hooks struct {
	// OnTerminal runs once when a client session reaches a failure state.
	OnTerminal func(domain.OverallState)
	// OnConnectivityFailed runs once when a server session's connectivity fails.
	OnConnectivityFailed func()
	// OnTransition observes every recorded transition.
	OnTransition func(domain.StateEvent)
}

type StateMachine struct {
	role   Role
	hooks  Hooks
	logger zerolog.Logger

	mu       sync.Mutex
	state    domain.StateSnapshot
	terminal bool
	reached  bool
	deadline *time.Timer

	connected    chan struct{}
	connectOnce  sync.Once
	terminalOnce sync.Once
	failOnce     sync.Once
}

func New(sid domain.SessionID, role Role, hooks Hooks) *StateMachine {
	return &StateMachine{
		role:  role,
		hooks: hooks,
		logger: log.With().
			Str("module", "lifecycle").
			Str("sid", string(sid)).
			Str("role", role.String()).
			Logger(),
		state: domain.StateSnapshot{
			Signaling:    domain.SignalingStable,
			Connectivity: domain.ConnectivityNew,
			Overall:      domain.OverallNew,
		},
		connected: make(chan struct{}),
	}
}

func (m *StateMachine) RecordSignaling(s domain.SignalingState) {
	m.mu.Lock()
	m.state.Signaling = s
	m.mu.Unlock()
	m.logger.Info().Str("state", string(s)).Msg("signaling state changed")
	m.observe(domain.SignalingEvent(s))
}

func (m *StateMachine) RecordConnectivity(s domain.ConnectivityState) {
	m.mu.Lock()
	m.state.Connectivity = s
	m.mu.Unlock()
	m.logger.Info().Str("state", string(s)).Msg("connectivity state changed")
	m.observe(domain.ConnectivityEvent(s))

	if s == domain.ConnectivityFailed && m.role == RoleServer {
		m.failOnce.Do(func() {
			m.logger.Warn().Msg("connectivity failed, tearing session down")
			if m.hooks.OnConnectivityFailed != nil {
				m.hooks.OnConnectivityFailed()
			}
		})
	}
}

// RecordOverall acts on the first terminal state only; later values are
// logged and ignored.
func (m *StateMachine) RecordOverall(s domain.OverallState) {
	m.mu.Lock()
	if m.terminal {
		m.mu.Unlock()
		m.logger.Debug().Str("state", string(s)).Msg("overall state after terminal, ignored")
		return
	}
	m.state.Overall = s
	if s.IsTerminal() {
		m.terminal = true
	}
	if s == domain.OverallConnected {
		m.reached = true
		m.stopDeadlineLocked()
	}
	m.mu.Unlock()

	m.logger.Info().Str("state", string(s)).Msg("peer connection state changed")
	m.observe(domain.OverallEvent(s))

	switch {
	case s == domain.OverallConnected:
		m.connectOnce.Do(func() { close(m.connected) })
	case s.IsFailure() && m.role == RoleClient:
		m.terminalOnce.Do(func() {
			m.logger.Warn().Str("state", string(s)).Msg("peer connection ended")
			if m.hooks.OnTerminal != nil {
				m.hooks.OnTerminal(s)
			}
		})
	}
}

// Record dispatches ev to the recorder of its axis.
func (m *StateMachine) Record(ev domain.StateEvent) {
	switch ev.Axis {
	case domain.AxisSignaling:
		m.RecordSignaling(domain.SignalingState(ev.State))
	case domain.AxisConnectivity:
		m.RecordConnectivity(domain.ConnectivityState(ev.State))
	case domain.AxisOverall:
		m.RecordOverall(domain.OverallState(ev.State))
	default:
		m.logger.Warn().Str("axis", ev.Axis.String()).Str("state", ev.State).Msg("unknown state axis")
	}
}

// Run records events in arrival order until ctx is done or events is closed.
func (m *StateMachine) Run(ctx context.Context, events <-chan domain.StateEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Record(ev)
		}
	}
}

// AwaitConnected blocks until the session connects, timeout elapses or ctx is
// done. A non-positive timeout waits on ctx alone.
func (m *StateMachine) AwaitConnected(ctx context.Context, timeout time.Duration) Outcome {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-m.connected:
		return OutcomeConnected
	case <-expired:
	case <-ctx.Done():
	}
	// connected may have raced the timer
	select {
	case <-m.connected:
		return OutcomeConnected
	default:
		m.logger.Warn().Dur("timeout", timeout).Msg("timed out waiting for connection")
		return OutcomeTimedOut
	}
}

// StartDeadline forces a failed connectivity transition if the overall state
// has not reached connected within d. An overall failure does not cancel it.
// Zero disables it.
func (m *StateMachine) StartDeadline(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reached || m.deadline != nil {
		return
	}
	m.deadline = time.AfterFunc(d, func() {
		m.mu.Lock()
		expired := !m.reached
		m.mu.Unlock()
		if !expired {
			return
		}
		m.logger.Warn().Dur("deadline", d).Msg("session did not connect in time")
		m.RecordConnectivity(domain.ConnectivityFailed)
	})
}

// Stop cancels a pending deadline.
func (m *StateMachine) Stop() {
	m.mu.Lock()
	m.stopDeadlineLocked()
	m.mu.Unlock()
}

func (m *StateMachine) stopDeadlineLocked() {
	if m.deadline != nil {
		m.deadline.Stop()
	}
}

func (m *StateMachine) Snapshot() domain.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateMachine) observe(ev domain.StateEvent) {
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(ev)
	}
}
