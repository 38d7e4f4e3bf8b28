//go:build !linux

package media

import (
	"errors"

	"github.com/dkeye/Duet/internal/adapters/rtc"
)

var ErrCaptureUnsupported = errors.New("audio capture is only supported on linux")

type Microphone struct {
	Bitrate int
}

var _ rtc.AudioSource = (*Microphone)(nil)

func NewMicrophone(bitrate int) *Microphone {
	return &Microphone{Bitrate: bitrate}
}

func (m *Microphone) Open() (rtc.AudioStream, error) {
	return nil, ErrCaptureUnsupported
}
