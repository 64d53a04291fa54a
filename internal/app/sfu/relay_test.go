package sfu

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/webrtc-echo/internal/core/coretest"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type written struct {
	header  rtp.Header
	payload []byte
}

type fakeWriter struct {
	mu   sync.Mutex
	err  error
	sent []written
}

func (w *fakeWriter) WriteRTP(h *rtp.Header, payload []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.sent = append(w.sent, written{header: *h, payload: append([]byte(nil), payload...)})
	return len(payload), nil
}

func (w *fakeWriter) Write(b []byte) (int, error) { return len(b), nil }

func (w *fakeWriter) packets() []written {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]written(nil), w.sent...)
}

type fakeContext struct {
	id     string
	ssrc   webrtc.SSRC
	codecs []webrtc.RTPCodecParameters
	w      *fakeWriter
}

func newContext(id string, ssrc webrtc.SSRC) *fakeContext {
	return &fakeContext{
		id:   id,
		ssrc: ssrc,
		codecs: []webrtc.RTPCodecParameters{
			{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, PayloadType: 96},
			{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000}, PayloadType: 98},
		},
		w: &fakeWriter{},
	}
}

func (c *fakeContext) CodecParameters() []webrtc.RTPCodecParameters           { return c.codecs }
func (c *fakeContext) HeaderExtensions() []webrtc.RTPHeaderExtensionParameter { return nil }
func (c *fakeContext) SSRC() webrtc.SSRC                                      { return c.ssrc }
func (c *fakeContext) SSRCRetransmission() webrtc.SSRC                        { return 0 }
func (c *fakeContext) SSRCForwardErrorCorrection() webrtc.SSRC                { return 0 }
func (c *fakeContext) WriteStream() webrtc.TrackLocalWriter                   { return c.w }
func (c *fakeContext) ID() string                                             { return c.id }
func (c *fakeContext) RTCPReader() interceptor.RTCPReader                     { return nil }

func packet(seq uint16, ts uint32, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0xdeadbeef,
		},
		Payload: payload,
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestRelayTrack_BindReturnsFirstCodec(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	ctx := newContext("a", 1)

	codec, err := track.Bind(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, codec.MimeType)
	assert.Equal(t, webrtc.PayloadType(96), codec.PayloadType)
	assert.Equal(t, 1, track.Bindings())

	assert.Equal(t, "video", track.ID())
	assert.Equal(t, "echo", track.StreamID())
	assert.Empty(t, track.RID())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, track.Kind())
}

func TestRelayTrack_BindWithoutCodecs(t *testing.T) {
	track := NewRelayTrack("audio", "echo", webrtc.RTPCodecTypeAudio)
	ctx := newContext("a", 1)
	ctx.codecs = nil

	_, err := track.Bind(ctx)
	assert.ErrorIs(t, err, ErrNoCodecs)
	assert.Zero(t, track.Bindings())
}

func TestRelayTrack_UnbindRemovesByID(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	first, second := newContext("a", 1), newContext("b", 2)
	_, _ = track.Bind(first)
	_, _ = track.Bind(second)

	require.NoError(t, track.Unbind(newContext("unknown", 9)))
	assert.Equal(t, 2, track.Bindings())

	require.NoError(t, track.Unbind(first))
	assert.Equal(t, 1, track.Bindings())

	c, ok := track.primary()
	require.True(t, ok)
	assert.Equal(t, "b", c.ID())
}

func TestRelayTrack_RelayRewritesOnlySSRC(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	out := newContext("a", 4242)
	_, _ = track.Bind(out)

	src := coretest.NewRemoteTrack(webrtc.RTPCodecTypeVideo, 3)
	in := []*rtp.Packet{packet(10, 1000, 1, 2), packet(11, 1100, 3), packet(12, 1200, 4, 5, 6)}
	for _, p := range in {
		src.Packets <- p
	}
	close(src.Packets)

	require.NoError(t, track.Relay(src, nopLogger()))

	got := out.w.packets()
	require.Len(t, got, len(in))
	for i, p := range in {
		assert.Equal(t, uint32(4242), got[i].header.SSRC)
		assert.Equal(t, p.SequenceNumber, got[i].header.SequenceNumber)
		assert.Equal(t, p.Timestamp, got[i].header.Timestamp)
		assert.Equal(t, p.PayloadType, got[i].header.PayloadType)
		assert.Equal(t, p.Payload, got[i].payload)
		assert.Equal(t, uint32(0xdeadbeef), p.SSRC, "inbound packet must not be mutated")
	}
}

func TestRelayTrack_OnlyFirstContextReceives(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	first, second := newContext("a", 1), newContext("b", 2)
	_, _ = track.Bind(first)
	_, _ = track.Bind(second)

	src := coretest.NewRemoteTrack(webrtc.RTPCodecTypeVideo, 2)
	src.Packets <- packet(1, 1)
	src.Packets <- packet(2, 2)
	close(src.Packets)

	require.NoError(t, track.Relay(src, nopLogger()))
	assert.Len(t, first.w.packets(), 2)
	assert.Empty(t, second.w.packets())
}

func TestRelayTrack_NotBoundStops(t *testing.T) {
	track := NewRelayTrack("audio", "echo", webrtc.RTPCodecTypeAudio)
	src := coretest.NewRemoteTrack(webrtc.RTPCodecTypeAudio, 2)
	src.Packets <- packet(1, 1)
	src.Packets <- packet(2, 2)

	err := track.Relay(src, nopLogger())
	assert.ErrorIs(t, err, ErrTrackNotBound)
	assert.Len(t, src.Packets, 1, "loop must stop after the first unforwardable packet")
}

func TestRelayTrack_WriteErrorStops(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	out := newContext("a", 1)
	boom := errors.New("boom")
	out.w.err = boom
	_, _ = track.Bind(out)

	src := coretest.NewRemoteTrack(webrtc.RTPCodecTypeVideo, 2)
	src.Packets <- packet(1, 1)
	src.Packets <- packet(2, 2)

	err := track.Relay(src, nopLogger())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, src.Packets, 1)
}

type failingSource struct{ err error }

func (s failingSource) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, s.err
}

func TestRelayTrack_ReadErrorStops(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	boom := errors.New("srtp closed")
	assert.ErrorIs(t, track.Relay(failingSource{err: boom}, nopLogger()), boom)
}

func TestRelayTrack_BindWhileRelaying(t *testing.T) {
	track := NewRelayTrack("video", "echo", webrtc.RTPCodecTypeVideo)
	first := newContext("a", 1)
	_, _ = track.Bind(first)

	src := coretest.NewRemoteTrack(webrtc.RTPCodecTypeVideo, 0)
	done := make(chan error, 1)
	go func() { done <- track.Relay(src, nopLogger()) }()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newContext(string(rune('b'+i)), webrtc.SSRC(10+i))
			_, _ = track.Bind(c)
			_ = track.Unbind(c)
		}()
	}
	for i := range 50 {
		src.Packets <- packet(uint16(i), uint32(i))
	}
	wg.Wait()
	close(src.Packets)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after source ended")
	}
	assert.Len(t, first.w.packets(), 50)
	assert.Equal(t, 1, track.Bindings())
}
