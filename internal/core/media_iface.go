package core

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// TransportHandlers are the platform callbacks of one peer transport. They are
// invoked from pion goroutines; receivers must hand them off, not block.
type TransportHandlers struct {
	OnICECandidate             func(webrtc.ICECandidateInit)
	OnICEConnectionStateChange func(webrtc.ICEConnectionState)
	OnTrack                    func(*webrtc.TrackRemote)
}

// PeerTransport is one negotiation attempt's peer connection.
type PeerTransport interface {
	LinkProbe

	// AddLocalAudio captures the microphone and attaches it as the outgoing
	// audio track. On capture failure the transport stays receive-only and
	// the error is returned for logging.
	AddLocalAudio(ctx context.Context) error
	// CreateOffer creates an offer and installs it as the local description.
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and installs it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// SetAudioEnabled suspends or resumes the local audio send pipeline.
	SetAudioEnabled(enabled bool)
	// SetAudioMaxBitrate adjusts the outgoing audio encoding only.
	SetAudioMaxBitrate(bps int) error
	Close() error
}

type TransportFactory interface {
	NewTransport(TransportHandlers) (PeerTransport, error)
}

// ConnectionClass mirrors the effective connection type buckets.
type ConnectionClass string

const (
	ClassUnknown ConnectionClass = ""
	ClassSlow2G  ConnectionClass = "slow-2g"
	Class2G      ConnectionClass = "2g"
	Class3G      ConnectionClass = "3g"
	Class4G      ConnectionClass = "4g"
)

// LowTier reports whether the class cannot sustain normal voice bitrate.
func (c ConnectionClass) LowTier() bool {
	return c == ClassSlow2G || c == Class2G
}

type LinkQuality struct {
	// DownlinkKbps is the estimated downlink throughput; zero means unknown.
	DownlinkKbps float64
	RTT          time.Duration
	Class        ConnectionClass
}

type LinkProbe interface {
	LinkQuality() (LinkQuality, error)
}
