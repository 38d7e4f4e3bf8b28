// Package media adapts local audio devices: microphone capture and the
// playback destinations of the remote track.
package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
)

// Discard is the destination name that drops remote audio.
const Discard = "discard"

var ErrClosed = errors.New("output closed")

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type sink interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

type discardSink struct{}

func (discardSink) WriteRTP(*rtp.Packet) error { return nil }
func (discardSink) Close() error               { return nil }

func openSink(dest string) (sink, error) {
	if dest == "" || dest == Discard {
		return discardSink{}, nil
	}
	w, err := oggwriter.New(dest, 48000, 2)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dest, err)
	}
	return w, nil
}

// Output writes the remote opus track to the earpiece or the speaker
// destination. Destinations are opened lazily and kept until Close.
type Output struct {
	earpiece string
	speaker  string
	logger   zerolog.Logger

	mu      sync.Mutex
	sinks   map[string]sink
	routed  bool
	gen     uint64
	packets uint64
	closed  bool
}

var _ core.AudioOutput = (*Output)(nil)

func NewOutput(earpiece, speaker string) *Output {
	return &Output{
		earpiece: earpiece,
		speaker:  speaker,
		sinks:    make(map[string]sink),
		logger:   log.With().Str("module", "media.output").Logger(),
	}
}

func (o *Output) Attach(track *webrtc.TrackRemote) error {
	if track == nil {
		return errors.New("nil track")
	}
	return o.attach(track)
}

func (o *Output) attach(src rtpReader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if _, err := o.sinkLocked(o.destLocked()); err != nil {
		return err
	}
	o.gen++
	go o.loop(src, o.gen)
	return nil
}

// loop copies packets until the track ends or a newer attach supersedes it.
func (o *Output) loop(src rtpReader, gen uint64) {
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			o.logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		if !o.write(pkt, gen) {
			return
		}
	}
}

func (o *Output) write(pkt *rtp.Packet, gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.gen {
		return false
	}
	s, err := o.sinkLocked(o.destLocked())
	if err != nil {
		o.logger.Error().Err(err).Msg("audio destination unavailable")
		return true
	}
	if err := s.WriteRTP(pkt); err != nil {
		o.logger.Warn().Err(err).Msg("write RTP failed")
		return true
	}
	o.packets++
	return true
}

func (o *Output) Detach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
}

func (o *Output) Route(speaker bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	dest := o.earpiece
	if speaker {
		dest = o.speaker
	}
	if _, err := o.sinkLocked(dest); err != nil {
		return err
	}
	o.routed = speaker
	o.logger.Info().Bool("speaker", speaker).Str("dest", dest).Msg("audio routed")
	return nil
}

// Packets reports how many packets reached a destination.
func (o *Output) Packets() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.packets
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.gen++
	var errs []error
	for dest, s := range o.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", dest, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Output) destLocked() string {
	if o.routed {
		return o.speaker
	}
	return o.earpiece
}

func (o *Output) sinkLocked(dest string) (sink, error) {
	if s, ok := o.sinks[dest]; ok {
		return s, nil
	}
	s, err := openSink(dest)
	if err != nil {
		return nil, err
	}
	o.sinks[dest] = s
	return s, nil
}
