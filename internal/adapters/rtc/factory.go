// Package rtc implements the peer transport on pion/webrtc.
package rtc

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
)

const opusPayloadType = 111

var opusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

type Config struct {
	ICEServers []webrtc.ICEServer
	// ICE timeouts; zero keeps pion's defaults.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepaliveInterval   time.Duration

	LoggerFactory logging.LoggerFactory
	// Audio is the microphone; nil makes every transport receive-only.
	Audio AudioSource
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Factory builds one PeerConnection per negotiation attempt from a shared
// pion API.
type Factory struct {
	api   *webrtc.API
	pcCfg webrtc.Configuration
	audio AudioSource
}

var _ core.TransportFactory = (*Factory)(nil)

func NewFactory(cfg Config) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability,
		PayloadType:        opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}
	if cfg.DisconnectedTimeout > 0 && cfg.FailedTimeout > 0 && cfg.KeepaliveInterval > 0 {
		se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepaliveInterval)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{
		api:   api,
		pcCfg: webrtc.Configuration{ICEServers: cfg.ICEServers},
		audio: cfg.Audio,
	}, nil
}

func (f *Factory) NewTransport(h core.TransportHandlers) (core.PeerTransport, error) {
	pc, err := f.api.NewPeerConnection(f.pcCfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc, f.audio, h), nil
}
