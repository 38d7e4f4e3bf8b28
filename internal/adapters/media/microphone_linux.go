//go:build linux

package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/adapters/rtc"
)

// Microphone opens the default capture device through mediadevices and
// encodes it to opus.
type Microphone struct {
	// Bitrate is the initial encoder target in bits per second.
	Bitrate int
}

var _ rtc.AudioSource = (*Microphone)(nil)

func NewMicrophone(bitrate int) *Microphone {
	return &Microphone{Bitrate: bitrate}
}

func (m *Microphone) Open() (rtc.AudioStream, error) {
	params, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	if m.Bitrate > 0 {
		params.BitRate = m.Bitrate
	}
	selector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&params))

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no audio track captured")
	}
	track := tracks[0]
	reader, err := track.NewEncodedReader(webrtc.MimeTypeOpus)
	if err != nil {
		_ = track.Close()
		return nil, fmt.Errorf("opus reader: %w", err)
	}
	log.Info().Str("module", "media.microphone").Str("track_id", track.ID()).Msg("microphone opened")
	return &micStream{track: track, reader: reader}, nil
}

type micStream struct {
	track  mediadevices.Track
	reader mediadevices.EncodedReadCloser

	once sync.Once
	err  error
}

func (s *micStream) ReadFrame() ([]byte, time.Duration, error) {
	buf, release, err := s.reader.Read()
	if err != nil {
		return nil, 0, err
	}
	defer release()
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return data, frameDuration(buf.Samples), nil
}

func (s *micStream) SetBitrate(bps int) error {
	ctrl, ok := s.reader.Controller().(codec.BitRateController)
	if !ok {
		return errors.New("encoder does not support bitrate control")
	}
	return ctrl.SetBitRate(bps)
}

func (s *micStream) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.reader.Close(), s.track.Close())
	})
	return s.err
}
