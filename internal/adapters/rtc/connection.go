package rtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 32

// Connection is a core.PeerSession over a pion PeerConnection. Engine
// callbacks are turned into StateEvents on a channel.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    domain.SessionID
	logger zerolog.Logger

	events    chan domain.StateEvent
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	gathered <-chan struct{}
	onTrack  func(core.RemoteTrack)
}

var _ core.PeerSession = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, sid domain.SessionID) *Connection {
	c := &Connection{
		pc:     pc,
		sid:    sid,
		logger: log.With().Str("module", "webrtc").Str("sid", string(sid)).Logger(),
		events: make(chan domain.StateEvent, eventBuffer),
		done:   make(chan struct{}),
	}

	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		c.emit(domain.SignalingEvent(domain.SignalingState(s.String())))
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.emit(domain.ConnectivityEvent(domain.ConnectivityState(s.String())))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.emit(domain.OverallEvent(domain.OverallState(s.String())))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		codec := track.Codec()
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Uint8("payload_type", uint8(track.PayloadType())).
			Str("mime", codec.MimeType).
			Msg("OnTrack received")

		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
	return c
}

func (c *Connection) ID() domain.SessionID { return c.sid }

func (c *Connection) CreateOffer() (domain.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create offer: %w", err)
	}
	return toDomain(offer), nil
}

func (c *Connection) CreateAnswer() (domain.Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create answer: %w", err)
	}
	return toDomain(answer), nil
}

// SetLocalDescription arms the gathering-complete signal before gathering starts.
func (c *Connection) SetLocalDescription(d domain.Description) error {
	c.mu.Lock()
	c.gathered = webrtc.GatheringCompletePromise(c.pc)
	c.mu.Unlock()
	if err := c.pc.SetLocalDescription(fromDomain(d)); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

func (c *Connection) SetRemoteDescription(d domain.Description) error {
	if err := c.pc.SetRemoteDescription(fromDomain(d)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *Connection) LocalDescription() (domain.Description, bool) {
	ld := c.pc.LocalDescription()
	if ld == nil {
		return domain.Description{}, false
	}
	return toDomain(*ld), true
}

func (c *Connection) GatheringComplete() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gathered == nil {
		c.gathered = webrtc.GatheringCompletePromise(c.pc)
	}
	return c.gathered
}

// AddTrack attaches t and drains the sender's RTCP so interceptors keep running.
func (c *Connection) AddTrack(t webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(t)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) OnRemoteTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) Events() <-chan domain.StateEvent { return c.events }
func (c *Connection) Done() <-chan struct{}            { return c.done }

// Close is safe to call more than once; only the first call closes the
// PeerConnection and reports its error.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.pc.Close()
		if err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
	return err
}

// emit drops events once the connection is closed.
func (c *Connection) emit(ev domain.StateEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func toDomain(sd webrtc.SessionDescription) domain.Description {
	return domain.Description{Type: domain.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func fromDomain(d domain.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(strings.ToLower(string(d.Type))), SDP: d.SDP}
}
