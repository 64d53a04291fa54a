package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/rs/zerolog/log"
)

// StateReporter is implemented by handles that can describe their current state.
type StateReporter interface {
	Snapshot() domain.StateSnapshot
}

// SessionInfo is a point-in-time view of one registered session.
type SessionInfo struct {
	ID    domain.SessionID      `json:"session_id"`
	State *domain.StateSnapshot `json:"state,omitempty"`
}

// Registry holds every live session of the server. Duplicate ids are kept
// as separate entries and removed together.
type Registry struct {
	mu       sync.Mutex
	sessions []core.SessionHandle

	cleanup chan domain.SessionID
	stopped chan struct{}
	stop    sync.Once

	hub     *Hub
	metrics *metrics.Metrics
}

func NewRegistry(queueSize int, hub *Hub, m *metrics.Metrics) *Registry {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Registry{
		cleanup: make(chan domain.SessionID, queueSize),
		stopped: make(chan struct{}),
		hub:     hub,
		metrics: m,
	}
}

func (r *Registry) Insert(s core.SessionHandle) {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SessionInserted()
	r.hub.Publish(domain.SessionEvent{Type: domain.SessionInserted, ID: s.ID(), At: time.Now()})
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID())).Int("live", n).Msg("inserted session")
}

// RemoveAndClose closes and drops every entry with the given id and returns
// how many were closed. A repeated call for the same id closes nothing.
func (r *Registry) RemoveAndClose(id domain.SessionID) int {
	r.mu.Lock()
	closed := 0
	r.sessions = slices.DeleteFunc(r.sessions, func(s core.SessionHandle) bool {
		if s.ID() != id {
			return false
		}
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("sid", string(id)).Msg("close session")
		}
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("closed and removed session")
		closed++
		return true
	})
	r.mu.Unlock()

	for range closed {
		r.metrics.SessionRemoved()
	}
	if closed > 0 {
		r.hub.Publish(domain.SessionEvent{Type: domain.SessionRemoved, ID: id, At: time.Now()})
	}
	return closed
}

// ScheduleRemoval queues id for the cleanup worker. It waits for room in the
// queue and gives up when ctx is done or the worker has stopped.
func (r *Registry) ScheduleRemoval(ctx context.Context, id domain.SessionID) bool {
	select {
	case <-r.stopped:
		log.Warn().Str("module", "app.registry").Str("sid", string(id)).Msg("cleanup worker stopped, removal not scheduled")
		return false
	default:
	}
	select {
	case r.cleanup <- id:
		log.Debug().Str("module", "app.registry").Str("sid", string(id)).Msg("scheduled removal")
		return true
	case <-r.stopped:
	case <-ctx.Done():
	}
	log.Warn().Str("module", "app.registry").Str("sid", string(id)).Msg("removal not scheduled")
	return false
}

// Run drains the cleanup queue until ctx is done. Call it once.
func (r *Registry) Run(ctx context.Context) error {
	log.Info().Str("module", "app.registry").Int("queue", cap(r.cleanup)).Msg("cleanup worker started")
	defer r.stop.Do(func() { close(r.stopped) })
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.registry").Msg("cleanup worker stopped")
			return nil
		case id := <-r.cleanup:
			r.RemoveAndClose(id)
		}
	}
}

// CloseAll closes every live session and empties the registry.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := r.sessions
	r.sessions = nil
	r.mu.Unlock()

	for _, s := range all {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("sid", string(s.ID())).Msg("close session")
		}
		r.metrics.SessionRemoved()
		r.hub.Publish(domain.SessionEvent{Type: domain.SessionRemoved, ID: s.ID(), At: time.Now()})
	}
	log.Info().Str("module", "app.registry").Int("closed", len(all)).Msg("closed all sessions")
	return len(all)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) IDs() []domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SessionID, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.ID())
	}
	return out
}

// Sessions snapshots the registry, including state where the handle reports one.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	snap := slices.Clone(r.sessions)
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(snap))
	for _, s := range snap {
		info := SessionInfo{ID: s.ID()}
		if rep, ok := s.(StateReporter); ok {
			st := rep.Snapshot()
			info.State = &st
		}
		out = append(out, info)
	}
	return out
}
