package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/webrtc-echo/internal/core"
	"github.com/dkeye/webrtc-echo/internal/domain"
	"github.com/dkeye/webrtc-echo/internal/logging"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Profile selects the capability set an Engine negotiates with.
type Profile int

const (
	// ProfileServer accepts every default codec and asks senders for periodic keyframes.
	ProfileServer Profile = iota
	// ProfileClient offers VP8 video only.
	ProfileClient
)

func (p Profile) String() string {
	if p == ProfileClient {
		return "client"
	}
	return "server"
}

type Options struct {
	Profile    Profile
	ICEServers []string
	// Verbose lets pion's own scopes log below Warn.
	Verbose bool
}

// Engine builds peer sessions from one shared pion API.
type Engine struct {
	api     *webrtc.API
	config  webrtc.Configuration
	profile Profile
}

var _ core.Engine = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	switch opts.Profile {
	case ProfileClient:
		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register vp8: %w", err)
		}
	default:
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register default codecs: %w", err)
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	if opts.Profile == ProfileServer {
		pli, err := intervalpli.NewReceiverInterceptor()
		if err != nil {
			return nil, fmt.Errorf("pli interceptor: %w", err)
		}
		registry.Add(pli)
	}

	settings := webrtc.SettingEngine{
		LoggerFactory: logging.PionFactory{Logger: log.Logger, Verbose: opts.Verbose},
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	)

	log.Info().
		Str("module", "webrtc").
		Str("profile", opts.Profile.String()).
		Strs("ice_servers", opts.ICEServers).
		Msg("engine ready")

	return &Engine{api: api, config: Configuration(opts.ICEServers), profile: opts.Profile}, nil
}

// Configuration turns plain ICE server URLs into a pion configuration.
func Configuration(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

func (e *Engine) NewSession(_ context.Context) (core.PeerSession, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, domain.SessionID(uuid.NewString())), nil
}

// NewLocalVideoTrack returns the VP8 track a client attaches so its offer
// carries a send section.
func NewLocalVideoTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"echo-client",
	)
}
