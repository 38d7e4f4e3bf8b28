package orch

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/app/quality"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

// openTransport creates the transport for a new negotiation attempt and
// attaches the microphone. Capture failure leaves the call receive-only.
func (o *Orchestrator) openTransport() error {
	if o.transport != nil {
		o.teardown("replacing transport")
	}
	o.gen++
	gen := o.gen
	tr, err := o.transports.NewTransport(core.TransportHandlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			o.post(localCandidateEvent{gen: gen, candidate: c})
		},
		OnICEConnectionStateChange: func(s webrtc.ICEConnectionState) {
			o.post(iceStateEvent{gen: gen, state: s})
		},
		OnTrack: func(t *webrtc.TrackRemote) {
			o.post(remoteTrackEvent{gen: gen, track: t})
		},
	})
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	o.transport = tr
	if err := tr.AddLocalAudio(o.ctx); err != nil {
		o.logger.Warn().Err(err).Msg("microphone unavailable, call is receive-only")
	}
	return nil
}

// teardown releases the transport and every resource bound to the call.
// The session state is left to the caller.
func (o *Orchestrator) teardown(reason string) {
	if o.monitor != nil {
		o.monitor.Stop()
		o.monitor = nil
	}
	if o.sess.remoteTrack && o.output != nil {
		o.output.Detach()
	}
	if o.sess.speakerRouted && o.output != nil {
		if err := o.output.Route(false); err != nil {
			o.logger.Warn().Err(err).Msg("resetting audio route failed")
		}
	}
	if o.transport != nil {
		if err := o.transport.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("closing transport")
		}
		o.transport = nil
		// Late callbacks of the closed transport carry the old generation.
		o.gen++
		o.logger.Info().Str("reason", reason).Msg("transport closed")
	}
	o.buffer.Clear()
	o.sess.localDesc = nil
	o.sess.remoteDesc = nil
	o.sess.offerer = false
	o.sess.restartPending = false
	o.sess.staleCandidates = false
	o.sess.muted = false
	o.sess.speakerRouted = false
	o.sess.remoteTrack = false
	o.updateWakeLock()
}

func (o *Orchestrator) startMonitor() {
	if o.monitor != nil || o.transport == nil {
		return
	}
	gen := o.gen
	// The monitor is stopped from the loop, so its callback must never block.
	o.monitor = quality.NewMonitor(o.transport, o.policy, o.interval, func(bps int) {
		if !o.tryPost(bitrateEvent{gen: gen, bps: bps}) {
			o.logger.Warn().Int("bps", bps).Msg("bitrate decision dropped")
		}
	})
	o.monitor.Start(o.ctx)
}

func (o *Orchestrator) onLocalCandidate(c webrtc.ICECandidateInit) {
	if !o.sess.signalingOpen {
		return
	}
	if err := o.send(core.Message{Type: core.TypeCandidate, Candidate: &c}); err != nil {
		o.logger.Warn().Err(err).Msg("local candidate not sent")
	}
}

func (o *Orchestrator) onICEState(s webrtc.ICEConnectionState) {
	o.logger.Info().Str("ice", s.String()).Msg("ice connection state")
	if s != webrtc.ICEConnectionStateFailed || o.sess.state != domain.StateActive || o.transport == nil {
		return
	}
	// Only the original offerer restarts, so both sides never race offers.
	if !o.sess.offerer {
		o.logger.Info().Msg("ice failed, waiting for partner restart")
		return
	}
	offer, err := o.transport.CreateOffer(true)
	if err != nil {
		o.logger.Error().Err(err).Msg("ice restart offer failed")
		return
	}
	o.sess.localDesc = &offer
	o.sess.restartPending = true
	if err := o.send(core.Message{Type: core.TypeOffer, Offer: &offer}); err != nil {
		o.logger.Warn().Err(err).Msg("ice restart offer not sent")
		return
	}
	o.logger.Info().Msg("ice restart offered")
}

func (o *Orchestrator) onRemoteTrack(t *webrtc.TrackRemote) {
	o.sess.remoteTrack = true
	o.logger.Info().Msg("remote audio attached")
	if o.output == nil {
		return
	}
	if err := o.output.Attach(t); err != nil {
		o.logger.Warn().Err(err).Msg("remote audio playback failed")
	}
}

func (o *Orchestrator) onBitrateDecision(bps int) {
	if o.transport == nil {
		return
	}
	if err := o.transport.SetAudioMaxBitrate(bps); err != nil {
		o.logger.Warn().Err(err).Int("bps", bps).Msg("applying bitrate failed")
		return
	}
	o.logger.Info().Int("bps", bps).Msg("audio bitrate applied")
}

func (o *Orchestrator) toggleMute() (bool, error) {
	if o.transport == nil {
		return o.sess.muted, ErrNoActiveCall
	}
	o.sess.muted = !o.sess.muted
	o.transport.SetAudioEnabled(!o.sess.muted)
	return o.sess.muted, nil
}

// toggleSpeaker is a no-op until remote audio is playing.
func (o *Orchestrator) toggleSpeaker() (bool, error) {
	if !o.sess.remoteTrack || o.output == nil {
		return o.sess.speakerRouted, nil
	}
	want := !o.sess.speakerRouted
	if err := o.output.Route(want); err != nil {
		return o.sess.speakerRouted, fmt.Errorf("route audio: %w", err)
	}
	o.sess.speakerRouted = want
	return want, nil
}

func (o *Orchestrator) setForeground(fg bool) {
	o.sess.foreground = fg
	o.updateWakeLock()
}

// updateWakeLock holds the lock exactly while a call is active in the
// foreground.
func (o *Orchestrator) updateWakeLock() {
	if o.wake == nil {
		return
	}
	want := o.sess.state == domain.StateActive && o.sess.foreground
	switch {
	case want && !o.wakeHeld:
		if err := o.wake.Acquire(); err != nil {
			o.logger.Warn().Err(err).Msg("wake lock unavailable")
			return
		}
		o.wakeHeld = true
	case !want && o.wakeHeld:
		if err := o.wake.Release(); err != nil {
			o.logger.Warn().Err(err).Msg("releasing wake lock")
		}
		o.wakeHeld = false
	}
}
