package sfu

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	ErrTrackNotBound = errors.New("relay track has no bound sender")
	ErrNoCodecs      = errors.New("bind context advertises no codecs")
)

// RelayTrack is an outbound track fed by echoing an inbound one.
// It implements webrtc.TrackLocal; the engine calls Bind once per sender it
// attaches the track to.
type RelayTrack struct {
	id       string
	streamID string
	kind     webrtc.RTPCodecType

	mu       sync.RWMutex
	bindings []webrtc.TrackLocalContext

	onForward func()
}

func NewRelayTrack(id, streamID string, kind webrtc.RTPCodecType) *RelayTrack {
	return &RelayTrack{id: id, streamID: streamID, kind: kind}
}

// Bind accepts whatever the context offers; the track does not negotiate.
func (t *RelayTrack) Bind(c webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	codecs := c.CodecParameters()
	if len(codecs) == 0 {
		return webrtc.RTPCodecParameters{}, ErrNoCodecs
	}
	t.mu.Lock()
	t.bindings = append(t.bindings, c)
	t.mu.Unlock()
	return codecs[0], nil
}

// Unbind drops the context with the same ID. Unknown contexts are ignored.
func (t *RelayTrack) Unbind(c webrtc.TrackLocalContext) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.bindings[:0]
	for _, b := range t.bindings {
		if b.ID() != c.ID() {
			kept = append(kept, b)
		}
	}
	clear(t.bindings[len(kept):])
	t.bindings = kept
	return nil
}

func (t *RelayTrack) ID() string                { return t.id }
func (t *RelayTrack) RID() string               { return "" }
func (t *RelayTrack) StreamID() string          { return t.streamID }
func (t *RelayTrack) Kind() webrtc.RTPCodecType { return t.kind }

// Bindings returns how many sender contexts are bound.
func (t *RelayTrack) Bindings() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}

func (t *RelayTrack) primary() (webrtc.TrackLocalContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.bindings) == 0 {
		return nil, false
	}
	return t.bindings[0], true
}
