package orch

import (
	"github.com/dkeye/webrtc-echo/internal/app/sfu"
	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/rs/zerolog/log"
)

// bindMedia gives sess its echo tracks. Every inbound track is relayed back
// through the outbound track of the same kind. The relay loops are joined
// once the session is closed.
func (s *Server) bindMedia(sess core.PeerSession) error {
	streamID := s.StreamID
	if streamID == "" {
		streamID = defaultStreamID
	}
	tracks := sfu.NewTrackSet(sess.ID(), streamID, s.Metrics)
	sess.OnRemoteTrack(tracks.StartRelay)

	s.relays.Add(1)
	go func() {
		defer s.relays.Done()
		<-sess.Done()
		tracks.Wait()
		log.Debug().Str("module", "orch").Str("sid", string(sess.ID())).Msg("relays stopped")
	}()
	return tracks.Attach(sess)
}
