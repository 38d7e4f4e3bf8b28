package app

import "github.com/dkeye/Duet/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what happens when a peer's send queue is full.
type Policy interface {
	OnBackPressure(to core.SignalConnection, m core.MessageType) BackpressureAction
}

// SimplePolicy drops the frame, or disconnects the slow peer when Kick is
// set. Presence updates are never dropped silently.
type SimplePolicy struct {
	Kick bool
}

func (p SimplePolicy) OnBackPressure(_ core.SignalConnection, m core.MessageType) BackpressureAction {
	if p.Kick || m == core.TypePartnerOffline || m == core.TypePartnerOnline {
		return KickPeer
	}
	return DropFrame
}
