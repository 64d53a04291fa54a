package core

import (
	"context"

	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Engine creates peer sessions on top of the real-time transport engine.
type Engine interface {
	NewSession(ctx context.Context) (PeerSession, error)
}

// RemoteTrack is an inbound media source announced by the engine.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// PeerSession is the engine-side handle of one negotiated connection.
type PeerSession interface {
	SessionHandle

	CreateOffer() (domain.Description, error)
	CreateAnswer() (domain.Description, error)
	// SetLocalDescription also starts candidate gathering.
	SetLocalDescription(domain.Description) error
	SetRemoteDescription(domain.Description) error
	// LocalDescription returns the current local description including gathered candidates.
	LocalDescription() (domain.Description, bool)
	// GatheringComplete is closed once candidate gathering has finished.
	GatheringComplete() <-chan struct{}

	// AddTrack attaches an outbound track; the sender's RTCP is drained by the engine.
	AddTrack(webrtc.TrackLocal) error
	// OnRemoteTrack sets a callback invoked once per inbound track.
	OnRemoteTrack(func(RemoteTrack))

	// Events delivers state transitions in the order the engine reports them per axis.
	Events() <-chan domain.StateEvent
	// Done is closed once Close has been called.
	Done() <-chan struct{}
}
