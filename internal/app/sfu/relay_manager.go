package sfu

import (
	"fmt"
	"sync"

	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type trackAdder interface {
	AddTrack(webrtc.TrackLocal) error
}

// TrackSet owns the audio and video RelayTracks of one session.
type TrackSet struct {
	sid     domain.SessionID
	audio   *RelayTrack
	video   *RelayTrack
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

func NewTrackSet(sid domain.SessionID, streamID string, m *metrics.Metrics) *TrackSet {
	s := &TrackSet{
		sid:     sid,
		audio:   NewRelayTrack("audio", streamID, webrtc.RTPCodecTypeAudio),
		video:   NewRelayTrack("video", streamID, webrtc.RTPCodecTypeVideo),
		metrics: m,
	}
	s.audio.onForward = func() { m.RelayPacket(webrtc.RTPCodecTypeAudio.String()) }
	s.video.onForward = func() { m.RelayPacket(webrtc.RTPCodecTypeVideo.String()) }
	return s
}

// Attach adds both tracks to the session, audio first.
func (s *TrackSet) Attach(sess trackAdder) error {
	for _, t := range []*RelayTrack{s.audio, s.video} {
		if err := sess.AddTrack(t); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}
	return nil
}

func (s *TrackSet) Track(kind webrtc.RTPCodecType) (*RelayTrack, bool) {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return s.audio, true
	case webrtc.RTPCodecTypeVideo:
		return s.video, true
	}
	return nil, false
}

// StartRelay echoes remote through the track of the same kind on its own goroutine.
func (s *TrackSet) StartRelay(remote core.RemoteTrack) {
	logger := log.With().
		Str("module", "relay").
		Str("sid", string(s.sid)).
		Str("kind", remote.Kind().String()).
		Str("track_id", remote.ID()).
		Logger()

	out, ok := s.Track(remote.Kind())
	if !ok {
		logger.Warn().Msg("no relay track for remote kind, ignoring")
		return
	}

	logger.Info().Msg("track has started")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := out.Relay(remote, &logger); err != nil {
			s.metrics.RelayStopped(remote.Kind().String())
			return
		}
		logger.Info().Msg("track has ended")
	}()
}

// Wait blocks until every started relay loop has returned.
func (s *TrackSet) Wait() {
	s.wg.Wait()
}
