// Package orch owns the call session state machine. Every input (signaling
// events, transport callbacks, quality decisions, UI commands) is serialized
// through a single event loop, so the session and its transport are only
// touched from Run.
package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/app/quality"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

var (
	ErrSignalingClosed = errors.New("signaling channel is not open")
	ErrPartnerOffline  = errors.New("partner is offline")
	ErrCallInProgress  = errors.New("a call is already in progress")
	ErrNoPendingOffer  = errors.New("no incoming offer to accept")
	ErrNoActiveCall    = errors.New("no active call")
	ErrStopped         = errors.New("orchestrator stopped")
)

const eventQueueSize = 256

type Deps struct {
	Local      domain.PeerID
	Remote     domain.PeerID
	Signal     core.SignalingChannel
	Transports core.TransportFactory
	// Output and WakeLock are optional capability services.
	Output   core.AudioOutput
	WakeLock core.WakeLock

	QualityPolicy   quality.Policy
	QualityInterval time.Duration
}

// Snapshot is a read-only view of the session for presentation.
type Snapshot struct {
	State              domain.CallState
	Local              domain.PeerID
	Remote             domain.PeerID
	SignalingOpen      bool
	PartnerPresent     bool
	IncomingOffer      bool
	Muted              bool
	SpeakerRouted      bool
	RemoteAudio        bool
	Foreground         bool
	WakeLockHeld       bool
	HasTransport       bool
	HasRemoteDesc      bool
	BufferedCandidates int
}

// session is the loop-owned call state.
type session struct {
	state           domain.CallState
	signalingOpen   bool
	partnerPresent  bool
	pendingOffer    *webrtc.SessionDescription
	localDesc       *webrtc.SessionDescription
	remoteDesc      *webrtc.SessionDescription
	offerer         bool
	restartPending  bool
	staleCandidates bool
	muted           bool
	speakerRouted   bool
	remoteTrack     bool
	foreground      bool
}

type Orchestrator struct {
	local      domain.PeerID
	remote     domain.PeerID
	signal     core.SignalingChannel
	transports core.TransportFactory
	output     core.AudioOutput
	wake       core.WakeLock
	policy     quality.Policy
	interval   time.Duration
	logger     zerolog.Logger

	events  chan event
	started chan struct{}
	stopped chan struct{}
	runOnce sync.Once

	// Owned by the Run goroutine.
	ctx       context.Context
	sess      session
	transport core.PeerTransport
	gen       uint64
	buffer    *core.CandidateBuffer
	monitor   *quality.Monitor
	wakeHeld  bool

	snapMu  sync.RWMutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// New creates the session for a logged-in peer. The session starts Idle and
// moves to WaitingForPartner once signaling connects.
func New(d Deps) *Orchestrator {
	if d.QualityPolicy == (quality.Policy{}) {
		d.QualityPolicy = quality.DefaultPolicy()
	}
	o := &Orchestrator{
		local:      d.Local,
		remote:     d.Remote,
		signal:     d.Signal,
		transports: d.Transports,
		output:     d.Output,
		wake:       d.WakeLock,
		policy:     d.QualityPolicy,
		interval:   d.QualityInterval,
		logger: log.With().
			Str("module", "orch").
			Str("local", string(d.Local)).
			Str("remote", string(d.Remote)).
			Logger(),
		events:  make(chan event, eventQueueSize),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		buffer:  core.NewCandidateBuffer(),
		subs:    make(map[int]chan Snapshot),
	}
	o.sess.foreground = true
	o.snap = o.snapshot()
	return o
}

// Run consumes events until ctx is cancelled. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) error {
	first := false
	o.runOnce.Do(func() { first = true })
	if !first {
		return errors.New("orchestrator already running")
	}
	o.ctx = ctx
	close(o.started)
	defer close(o.stopped)
	defer o.shutdown()

	o.logger.Info().Msg("call session started")
	inbound := o.signal.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-inbound:
			if !ok {
				inbound = nil
				o.handleSignalEvent(core.SignalEvent{Kind: core.SignalClosed})
				break
			}
			o.handleSignalEvent(ev)
		case ev := <-o.events:
			o.dispatch(ev)
		}
		o.publish()
	}
}

// Done is closed when Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.stopped }

func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// Subscribe returns a channel that always holds the latest snapshot. The
// current snapshot is delivered immediately.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	o.snapMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snap
	o.snapMu.Unlock()
	return ch, func() {
		o.snapMu.Lock()
		defer o.snapMu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	return Snapshot{
		State:              o.sess.state,
		Local:              o.local,
		Remote:             o.remote,
		SignalingOpen:      o.sess.signalingOpen,
		PartnerPresent:     o.sess.partnerPresent,
		IncomingOffer:      o.sess.pendingOffer != nil,
		Muted:              o.sess.muted,
		SpeakerRouted:      o.sess.speakerRouted,
		RemoteAudio:        o.sess.remoteTrack,
		Foreground:         o.sess.foreground,
		WakeLockHeld:       o.wakeHeld,
		HasTransport:       o.transport != nil,
		HasRemoteDesc:      o.sess.remoteDesc != nil,
		BufferedCandidates: o.buffer.Len(),
	}
}

func (o *Orchestrator) publish() {
	next := o.snapshot()
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	if next == o.snap {
		return
	}
	o.snap = next
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// transition moves the session along an edge of the state machine.
func (o *Orchestrator) transition(to domain.CallState, reason string) bool {
	from := o.sess.state
	if !domain.CanTransition(from, to) {
		o.logger.Error().Str("from", from.String()).Str("to", to.String()).Str("reason", reason).Msg("illegal transition")
		return false
	}
	o.sess.state = to
	if from != to {
		o.logger.Info().Str("from", from.String()).Str("to", to.String()).Str("reason", reason).Msg("state changed")
	}
	o.updateWakeLock()
	return true
}

func (o *Orchestrator) shutdown() {
	if o.sess.state.InCall() && o.sess.signalingOpen {
		o.sendReject()
	}
	o.teardown("shutdown")
	o.sess.pendingOffer = nil
	o.transition(domain.StateEnded, "shutdown")
	o.publish()

	o.snapMu.Lock()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
	o.snapMu.Unlock()
	o.logger.Info().Msg("call session ended")
}
