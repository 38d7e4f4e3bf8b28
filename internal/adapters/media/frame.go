package media

import "time"

const (
	opusClockRate       = 48000
	defaultOpusDuration = 20 * time.Millisecond
)

// frameDuration converts an encoder sample count at 48 kHz to a duration.
func frameDuration(samples uint32) time.Duration {
	if samples == 0 {
		return defaultOpusDuration
	}
	return time.Duration(samples) * time.Second / opusClockRate
}
