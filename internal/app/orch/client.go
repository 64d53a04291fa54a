package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/webrtc-echo/internal/app/lifecycle"
	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Exchanger delivers one offer to the server and returns its answer.
type Exchanger interface {
	Exchange(ctx context.Context, offer domain.Description) (domain.Description, error)
}

// Client negotiates a single session with the echo server.
type Client struct {
	Engine core.Engine
	Signal Exchanger
	// Timeout bounds the wait for the connection once the answer is applied.
	Timeout time.Duration
	// LocalTrack, when set, is attached so the offer carries a send section.
	LocalTrack webrtc.TrackLocal
	// OnTerminal runs if the connection fails before the run is over.
	OnTerminal func(domain.OverallState)
}

// Run performs the exchange and waits for the connection. The session is
// closed before Run returns; its listener is detached first so closing does
// not count as a failure.
func (c *Client) Run(ctx context.Context) (lifecycle.Outcome, error) {
	sess, err := c.Engine.NewSession(ctx)
	if err != nil {
		return lifecycle.OutcomeTimedOut, fmt.Errorf("new session: %w", err)
	}
	sid := sess.ID()
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Logger()

	sm := lifecycle.New(sid, lifecycle.RoleClient, lifecycle.Hooks{OnTerminal: c.OnTerminal})
	listenCtx, detach := context.WithCancel(ctx)
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		sm.Run(listenCtx, sess.Events())
	}()
	defer func() {
		detach()
		<-listening
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("close session")
		}
	}()

	if c.LocalTrack != nil {
		if err := sess.AddTrack(c.LocalTrack); err != nil {
			return lifecycle.OutcomeTimedOut, fmt.Errorf("add local track: %w", err)
		}
	}

	offer, err := sess.CreateOffer()
	if err != nil {
		return lifecycle.OutcomeTimedOut, fmt.Errorf("%w: create offer: %w", domain.ErrNegotiation, err)
	}
	if err := sess.SetLocalDescription(offer); err != nil {
		return lifecycle.OutcomeTimedOut, fmt.Errorf("%w: set local description: %w", domain.ErrNegotiation, err)
	}

	select {
	case <-sess.GatheringComplete():
	case <-ctx.Done():
		return lifecycle.OutcomeTimedOut, fmt.Errorf("%w: gathering: %w", domain.ErrTransport, ctx.Err())
	}

	local, ok := sess.LocalDescription()
	if !ok {
		return lifecycle.OutcomeTimedOut, fmt.Errorf("%w: no local description", domain.ErrNegotiation)
	}

	answer, err := c.Signal.Exchange(ctx, local)
	if err != nil {
		logger.Error().Err(err).Msg("signaling exchange failed")
		return lifecycle.OutcomeTimedOut, err
	}
	if err := sess.SetRemoteDescription(answer); err != nil {
		return lifecycle.OutcomeTimedOut, fmt.Errorf("%w: set remote description: %w", domain.ErrNegotiation, err)
	}

	outcome := sm.AwaitConnected(ctx, c.Timeout)
	switch outcome {
	case lifecycle.OutcomeConnected:
		logger.Info().Msg("connected to echo server")
	default:
		logger.Warn().Dur("timeout", c.Timeout).Msg("timed out waiting for connected state, closing")
	}
	return outcome, nil
}
