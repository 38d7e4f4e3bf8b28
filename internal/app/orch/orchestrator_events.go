package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type event interface{ isEvent() }

type commandKind int

const (
	cmdStartCall commandKind = iota
	cmdAccept
	cmdReject
	cmdHangUp
	cmdToggleMute
	cmdToggleSpeaker
	cmdSetForeground
)

func (k commandKind) String() string {
	switch k {
	case cmdStartCall:
		return "start_call"
	case cmdAccept:
		return "accept"
	case cmdReject:
		return "reject"
	case cmdHangUp:
		return "hang_up"
	case cmdToggleMute:
		return "toggle_mute"
	case cmdToggleSpeaker:
		return "toggle_speaker"
	case cmdSetForeground:
		return "set_foreground"
	}
	return "unknown"
}

type commandResult struct {
	// flag carries the new mute or speaker state for toggles.
	flag bool
	err  error
}

type commandEvent struct {
	kind  commandKind
	arg   bool
	reply chan commandResult
}

// Transport callbacks are tagged with the generation of the transport that
// produced them. Anything from an older generation is dropped.
type localCandidateEvent struct {
	gen       uint64
	candidate webrtc.ICECandidateInit
}

type iceStateEvent struct {
	gen   uint64
	state webrtc.ICEConnectionState
}

type remoteTrackEvent struct {
	gen   uint64
	track *webrtc.TrackRemote
}

type bitrateEvent struct {
	gen uint64
	bps int
}

func (commandEvent) isEvent()        {}
func (localCandidateEvent) isEvent() {}
func (iceStateEvent) isEvent()       {}
func (remoteTrackEvent) isEvent()    {}
func (bitrateEvent) isEvent()        {}

// post hands an event to the loop. It blocks while the queue is full and
// gives up once the loop has stopped.
func (o *Orchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.stopped:
		return false
	}
}

func (o *Orchestrator) tryPost(ev event) bool {
	select {
	case o.events <- ev:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) do(ctx context.Context, kind commandKind, arg bool) commandResult {
	select {
	case <-o.started:
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
	reply := make(chan commandResult, 1)
	select {
	case o.events <- commandEvent{kind: kind, arg: arg, reply: reply}:
	case <-o.stopped:
		return commandResult{err: ErrStopped}
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
	select {
	case r := <-reply:
		return r
	case <-o.stopped:
		return commandResult{err: ErrStopped}
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
}

func (o *Orchestrator) dispatch(ev event) {
	switch e := ev.(type) {
	case commandEvent:
		r := o.execute(e)
		if r.err != nil {
			o.logger.Warn().Err(r.err).Str("command", e.kind.String()).Msg("command rejected")
		}
		// Callers observe the new snapshot as soon as the command returns.
		o.publish()
		e.reply <- r
	case localCandidateEvent:
		if e.gen != o.gen {
			return
		}
		o.onLocalCandidate(e.candidate)
	case iceStateEvent:
		if e.gen != o.gen {
			o.logger.Debug().Str("ice", e.state.String()).Msg("stale ice state dropped")
			return
		}
		o.onICEState(e.state)
	case remoteTrackEvent:
		if e.gen != o.gen {
			return
		}
		o.onRemoteTrack(e.track)
	case bitrateEvent:
		if e.gen != o.gen {
			return
		}
		o.onBitrateDecision(e.bps)
	}
}

func (o *Orchestrator) execute(c commandEvent) commandResult {
	switch c.kind {
	case cmdStartCall:
		return commandResult{err: o.startCall()}
	case cmdAccept:
		return commandResult{err: o.accept()}
	case cmdReject:
		return commandResult{err: o.reject()}
	case cmdHangUp:
		return commandResult{err: o.hangUp()}
	case cmdToggleMute:
		muted, err := o.toggleMute()
		return commandResult{flag: muted, err: err}
	case cmdToggleSpeaker:
		routed, err := o.toggleSpeaker()
		return commandResult{flag: routed, err: err}
	case cmdSetForeground:
		o.setForeground(c.arg)
		return commandResult{flag: c.arg}
	}
	return commandResult{}
}

// StartCall offers a call to the partner.
func (o *Orchestrator) StartCall(ctx context.Context) error {
	return o.do(ctx, cmdStartCall, false).err
}

// Accept answers the pending incoming offer.
func (o *Orchestrator) Accept(ctx context.Context) error {
	return o.do(ctx, cmdAccept, false).err
}

// Reject declines an incoming call. On an established or outgoing call it
// behaves like HangUp. It is a no-op when there is no call.
func (o *Orchestrator) Reject(ctx context.Context) error {
	return o.do(ctx, cmdReject, false).err
}

// HangUp ends the current call and notifies the partner.
func (o *Orchestrator) HangUp(ctx context.Context) error {
	return o.do(ctx, cmdHangUp, false).err
}

// ToggleMute flips the local audio and returns the new muted flag.
func (o *Orchestrator) ToggleMute(ctx context.Context) (bool, error) {
	r := o.do(ctx, cmdToggleMute, false)
	return r.flag, r.err
}

// ToggleSpeaker flips remote audio routing and returns whether it now goes
// to the loudspeaker.
func (o *Orchestrator) ToggleSpeaker(ctx context.Context) (bool, error) {
	r := o.do(ctx, cmdToggleSpeaker, false)
	return r.flag, r.err
}

// SetForeground reports application visibility; the wake lock is held only
// while a call is active and the application is in the foreground.
func (o *Orchestrator) SetForeground(ctx context.Context, fg bool) error {
	return o.do(ctx, cmdSetForeground, fg).err
}
