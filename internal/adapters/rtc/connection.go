package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
)

var (
	ErrNoLocalAudio = errors.New("no local audio")
	ErrNoCapture    = errors.New("audio capture not configured")
)

// AudioStream yields encoded opus frames from the microphone.
type AudioStream interface {
	ReadFrame() (data []byte, duration time.Duration, err error)
	SetBitrate(bps int) error
	Close() error
}

type AudioSource interface {
	Open() (AudioStream, error)
}

// Connection is one PeerConnection with at most one outgoing audio track.
type Connection struct {
	pc     *webrtc.PeerConnection
	source AudioSource
	logger zerolog.Logger

	enabled atomic.Bool

	mu     sync.Mutex
	stream AudioStream
	cancel context.CancelFunc
	closed bool
}

var _ core.PeerTransport = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, source AudioSource, h core.TransportHandlers) *Connection {
	c := &Connection{
		pc:     pc,
		source: source,
		logger: log.With().Str("module", "webrtc").Str("pc", uuid.NewString()[:8]).Logger(),
	}
	c.enabled.Store(true)

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || h.OnICECandidate == nil {
			return
		}
		h.OnICECandidate(cand.ToJSON())
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if h.OnICEConnectionStateChange != nil {
			h.OnICEConnectionStateChange(s)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio || h.OnTrack == nil {
			return
		}
		h.OnTrack(track)
	})
	return c
}

// AddLocalAudio opens the microphone and starts pumping it into an outgoing
// track. Without a microphone a receive-only transceiver keeps the audio
// m-line in the offer.
func (c *Connection) AddLocalAudio(ctx context.Context) error {
	if c.source == nil {
		c.addRecvOnly()
		return ErrNoCapture
	}
	stream, err := c.source.Open()
	if err != nil {
		c.addRecvOnly()
		return fmt.Errorf("open microphone: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(opusCapability, "audio", "duet")
	if err != nil {
		_ = stream.Close()
		c.addRecvOnly()
		return fmt.Errorf("local track: %w", err)
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		_ = stream.Close()
		c.addRecvOnly()
		return fmt.Errorf("add track: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.stream = stream
	c.cancel = cancel
	c.mu.Unlock()

	go c.drainRTCP(sender)
	go c.pump(ctx, stream, track)
	return nil
}

func (c *Connection) addRecvOnly() {
	if _, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		c.logger.Error().Err(err).Msg("AddTransceiver(audio) error")
	}
}

// pump copies microphone frames into the track. Frames read while muted are
// dropped so the encoder keeps running.
func (c *Connection) pump(ctx context.Context, stream AudioStream, track *webrtc.TrackLocalStaticSample) {
	defer c.logger.Debug().Msg("audio pump stopped")
	for {
		if ctx.Err() != nil {
			return
		}
		data, dur, err := stream.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("microphone read failed")
			}
			return
		}
		if !c.enabled.Load() {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			c.logger.Warn().Err(err).Msg("write sample failed")
		}
	}
}

func (c *Connection) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := ValidateDescription(desc); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(desc)
}

// AddICECandidate fails with core.ErrDrainHalted once the connection is
// closed, so a drain keeps the remaining candidates instead of burning them.
func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %w", core.ErrDrainHalted, webrtc.ErrConnectionClosed)
	}
	if ci.Candidate != "" {
		info, err := DescribeCandidate(ci.Candidate)
		if err != nil {
			return err
		}
		c.logger.Debug().Str("candidate", info).Msg("remote candidate")
	}
	if err := c.pc.AddICECandidate(ci); err != nil {
		if errors.Is(err, webrtc.ErrConnectionClosed) {
			return fmt.Errorf("%w: %w", core.ErrDrainHalted, err)
		}
		return err
	}
	return nil
}

func (c *Connection) SetAudioEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

func (c *Connection) SetAudioMaxBitrate(bps int) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return ErrNoLocalAudio
	}
	return stream.SetBitrate(bps)
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, stream := c.cancel, c.stream
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("closing microphone")
		}
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
