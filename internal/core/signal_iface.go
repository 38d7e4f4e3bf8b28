package core

import "errors"

// ErrBackpressure reports a send queue that is full.
var ErrBackpressure = errors.New("backpressure")

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

type SignalEventKind int

const (
	// SignalConnected is emitted after every successful (re)connect, once the
	// login message has been queued.
	SignalConnected SignalEventKind = iota
	SignalInbound
	// SignalClosed is emitted when the socket drops. A reconnect may follow.
	SignalClosed
)

func (k SignalEventKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalInbound:
		return "inbound"
	case SignalClosed:
		return "closed"
	}
	return "unknown"
}

type SignalEvent struct {
	Kind    SignalEventKind
	Message Message
	Err     error
}

// SignalingChannel is the client side of the relay connection.
// Send is fire-and-forget; it fails synchronously only when the message
// cannot be queued at all.
type SignalingChannel interface {
	Send(Message) error
	Events() <-chan SignalEvent
	IsOpen() bool
}
