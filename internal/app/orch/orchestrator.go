package orch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/webrtc-echo/internal/app"
	"github.com/dkeye/webrtc-echo/internal/app/lifecycle"
	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/rs/zerolog/log"
)

const defaultStreamID = "echo"

// Server answers offers and owns every session it creates.
type Server struct {
	Engine   core.Engine
	Registry *app.Registry
	Hub      *app.Hub
	Metrics  *metrics.Metrics

	// ConnectTimeout bounds how long a session may take to connect. Zero disables it.
	ConnectTimeout time.Duration
	// GatherTimeout bounds the wait for candidate gathering before answering.
	GatherTimeout time.Duration
	StreamID      string

	relays sync.WaitGroup
}

// HandleOffer runs the server side of one exchange: create a session, attach
// the echo tracks, apply the offer and return the answer with its gathered
// candidates. Any failure removes and closes the session it created.
func (s *Server) HandleOffer(ctx context.Context, offer domain.Description) (domain.Description, error) {
	if err := offer.Expect(domain.SDPTypeOffer); err != nil {
		return domain.Description{}, err
	}

	sess, err := s.Engine.NewSession(ctx)
	if err != nil {
		return domain.Description{}, fmt.Errorf("new session: %w", err)
	}
	sid := sess.ID()
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Logger()

	tracked := s.track(sess)
	s.Registry.Insert(tracked)

	fail := func(step string, err error) (domain.Description, error) {
		logger.Error().Err(err).Str("step", step).Msg("offer handling failed")
		s.Registry.RemoveAndClose(sid)
		return domain.Description{}, fmt.Errorf("%s: %w", step, err)
	}

	if err := s.bindMedia(sess); err != nil {
		return fail("attach tracks", err)
	}
	if err := sess.SetRemoteDescription(offer); err != nil {
		return fail("set remote description", fmt.Errorf("%w: %w", domain.ErrNegotiation, err))
	}
	answer, err := sess.CreateAnswer()
	if err != nil {
		return fail("create answer", fmt.Errorf("%w: %w", domain.ErrNegotiation, err))
	}
	if err := sess.SetLocalDescription(answer); err != nil {
		return fail("set local description", fmt.Errorf("%w: %w", domain.ErrNegotiation, err))
	}

	if err := s.awaitGathering(ctx, sess); err != nil {
		return fail("gather candidates", err)
	}

	local, ok := sess.LocalDescription()
	if !ok {
		return fail("local description", fmt.Errorf("%w: no local description", domain.ErrNegotiation))
	}
	logger.Info().Int("sdp_bytes", len(local.SDP)).Msg("answer ready")
	return local, nil
}

// Shutdown closes every live session and waits for their relay loops to
// return, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	n := s.Registry.CloseAll()
	log.Info().Str("module", "orch").Int("sessions", n).Msg("server sessions closed")

	done := make(chan struct{})
	go func() {
		s.relays.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for relays: %w", ctx.Err())
	}
}

// track attaches a state machine to sess and starts its listener.
func (s *Server) track(sess core.PeerSession) *trackedSession {
	sid := sess.ID()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sess.Done()
		cancel()
	}()

	sm := lifecycle.New(sid, lifecycle.RoleServer, lifecycle.Hooks{
		OnConnectivityFailed: func() { s.Registry.ScheduleRemoval(ctx, sid) },
		OnTransition: func(ev domain.StateEvent) {
			s.Hub.Publish(domain.SessionEvent{
				Type:  domain.SessionState,
				ID:    sid,
				Axis:  ev.Axis.String(),
				State: ev.State,
				At:    time.Now(),
			})
		},
	})
	go sm.Run(ctx, sess.Events())
	sm.StartDeadline(s.ConnectTimeout)
	context.AfterFunc(ctx, sm.Stop)

	return &trackedSession{PeerSession: sess, sm: sm}
}

// awaitGathering returns once gathering completes or GatherTimeout passes.
// Only a cancelled request is an error.
func (s *Server) awaitGathering(ctx context.Context, sess core.PeerSession) error {
	var expired <-chan time.Time
	if s.GatherTimeout > 0 {
		t := time.NewTimer(s.GatherTimeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-sess.GatheringComplete():
	case <-expired:
		log.Warn().
			Str("module", "orch").
			Str("sid", string(sess.ID())).
			Dur("gather_timeout", s.GatherTimeout).
			Msg("gathering not complete, answering with candidates so far")
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrTransport, ctx.Err())
	}
	return nil
}

// trackedSession is what the registry holds for a server session.
type trackedSession struct {
	core.PeerSession
	sm *lifecycle.StateMachine
}

func (t *trackedSession) Snapshot() domain.StateSnapshot {
	return t.sm.Snapshot()
}
