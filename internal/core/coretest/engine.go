// Package coretest provides in-memory engine fakes for orchestration tests.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// OfferSDP and AnswerSDP parse as valid session descriptions.
const (
	OfferSDP = "v=0\r\n" +
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"
	AnswerSDP = "v=0\r\n" +
		"o=- 1 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=mid:0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"
)

var ErrInjected = errors.New("injected engine failure")

// Engine hands out Sessions and remembers them.
type Engine struct {
	// Configure runs on every new session before it is returned.
	Configure     func(*Session)
	NewSessionErr error
	// NextID overrides the default "sess-N" ids.
	NextID func(n int) domain.SessionID

	mu       sync.Mutex
	seq      int
	sessions []*Session
}

func (e *Engine) NewSession(_ context.Context) (core.PeerSession, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	e.mu.Lock()
	e.seq++
	id := domain.SessionID(fmt.Sprintf("sess-%d", e.seq))
	if e.NextID != nil {
		id = e.NextID(e.seq)
	}
	s := NewSession(id)
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	if e.Configure != nil {
		e.Configure(s)
	}
	return s, nil
}

func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// Session is a scripted PeerSession.
type Session struct {
	id domain.SessionID

	OfferErr, AnswerErr       error
	SetLocalErr, SetRemoteErr error
	AddTrackErr               error
	// HoldGathering keeps GatheringComplete open until ReleaseGathering.
	HoldGathering bool

	mu        sync.Mutex
	local     *domain.Description
	remote    *domain.Description
	tracks    []webrtc.TrackLocal
	onTrack   func(core.RemoteTrack)
	gathered  chan struct{}
	gatherOne sync.Once

	events    chan domain.StateEvent
	done      chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func NewSession(id domain.SessionID) *Session {
	return &Session{
		id:       id,
		gathered: make(chan struct{}),
		events:   make(chan domain.StateEvent, 64),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) CreateOffer() (domain.Description, error) {
	if s.OfferErr != nil {
		return domain.Description{}, s.OfferErr
	}
	return domain.Description{Type: domain.SDPTypeOffer, SDP: OfferSDP}, nil
}

func (s *Session) CreateAnswer() (domain.Description, error) {
	if s.AnswerErr != nil {
		return domain.Description{}, s.AnswerErr
	}
	return domain.Description{Type: domain.SDPTypeAnswer, SDP: AnswerSDP}, nil
}

func (s *Session) SetLocalDescription(d domain.Description) error {
	if s.SetLocalErr != nil {
		return s.SetLocalErr
	}
	s.mu.Lock()
	s.local = &d
	s.mu.Unlock()
	if !s.HoldGathering {
		s.ReleaseGathering()
	}
	return nil
}

func (s *Session) SetRemoteDescription(d domain.Description) error {
	if s.SetRemoteErr != nil {
		return s.SetRemoteErr
	}
	s.mu.Lock()
	s.remote = &d
	s.mu.Unlock()
	return nil
}

func (s *Session) LocalDescription() (domain.Description, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return domain.Description{}, false
	}
	return *s.local, true
}

func (s *Session) RemoteDescription() (domain.Description, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return domain.Description{}, false
	}
	return *s.remote, true
}

func (s *Session) GatheringComplete() <-chan struct{} { return s.gathered }

func (s *Session) ReleaseGathering() {
	s.gatherOne.Do(func() { close(s.gathered) })
}

func (s *Session) AddTrack(t webrtc.TrackLocal) error {
	if s.AddTrackErr != nil {
		return s.AddTrackErr
	}
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
	return nil
}

func (s *Session) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), s.tracks...)
}

func (s *Session) OnRemoteTrack(fn func(core.RemoteTrack)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

// EmitTrack announces an inbound track the way the engine would.
func (s *Session) EmitTrack(t core.RemoteTrack) {
	s.mu.Lock()
	fn := s.onTrack
	s.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// Emit delivers a state transition; it is dropped once the session is closed.
func (s *Session) Emit(ev domain.StateEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) Events() <-chan domain.StateEvent { return s.events }
func (s *Session) Done() <-chan struct{}            { return s.done }

func (s *Session) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int { return int(s.closes.Load()) }

// RemoteTrack feeds packets from a channel; closing the channel ends it with io.EOF.
type RemoteTrack struct {
	TrackID   string
	TrackKind webrtc.RTPCodecType
	Packets   chan *rtp.Packet
}

func NewRemoteTrack(kind webrtc.RTPCodecType, buffered int) *RemoteTrack {
	return &RemoteTrack{
		TrackID:   "remote-" + kind.String(),
		TrackKind: kind,
		Packets:   make(chan *rtp.Packet, buffered),
	}
}

func (t *RemoteTrack) ID() string                { return t.TrackID }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.TrackKind }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-t.Packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}
