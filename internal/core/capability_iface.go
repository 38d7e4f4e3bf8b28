package core

import "github.com/pion/webrtc/v4"

// WakeLock keeps the host awake while a call is active.
type WakeLock interface {
	Acquire() error
	Release() error
}

// AudioOutput plays the remote audio track. Route switches between the
// default and the speaker destination.
type AudioOutput interface {
	Attach(track *webrtc.TrackRemote) error
	Detach()
	Route(speaker bool) error
}
