package orch

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

func (o *Orchestrator) startCall() error {
	if !o.sess.signalingOpen {
		return ErrSignalingClosed
	}
	if o.sess.state.InCall() {
		return ErrCallInProgress
	}
	if o.sess.state != domain.StateWaitingForPartner {
		return ErrSignalingClosed
	}
	if !o.sess.partnerPresent {
		return ErrPartnerOffline
	}

	if err := o.openTransport(); err != nil {
		return err
	}
	offer, err := o.transport.CreateOffer(false)
	if err != nil {
		o.teardown("create offer failed")
		return fmt.Errorf("create offer: %w", err)
	}
	o.sess.localDesc = &offer
	o.sess.offerer = true

	if err := o.send(core.Message{Type: core.TypeOffer, Offer: &offer}); err != nil {
		o.teardown("offer not sent")
		return err
	}
	o.transition(domain.StateOutgoingRinging, "offer sent")
	return nil
}

func (o *Orchestrator) accept() error {
	if !o.sess.signalingOpen {
		return ErrSignalingClosed
	}
	if o.sess.state != domain.StateIncomingRinging || o.sess.pendingOffer == nil {
		return ErrNoPendingOffer
	}
	offer := *o.sess.pendingOffer

	if err := o.openTransport(); err != nil {
		o.failAccept("transport failed")
		return err
	}
	if err := o.applyRemoteDescription(offer); err != nil {
		o.failAccept("bad offer")
		return err
	}
	answer, err := o.transport.CreateAnswer()
	if err != nil {
		o.failAccept("create answer failed")
		return fmt.Errorf("create answer: %w", err)
	}
	o.sess.localDesc = &answer
	if err := o.send(core.Message{Type: core.TypeAnswer, Answer: &answer}); err != nil {
		o.failAccept("answer not sent")
		return err
	}
	o.sess.pendingOffer = nil
	o.sess.offerer = false
	o.enterActive("answer sent")
	return nil
}

// failAccept tells the caller the offer will not be answered, so it does not
// ring forever, and drops the attempt.
func (o *Orchestrator) failAccept(reason string) {
	o.sendReject()
	o.abandon(reason)
}

func (o *Orchestrator) reject() error {
	switch o.sess.state {
	case domain.StateIncomingRinging:
		if !o.sess.signalingOpen {
			return ErrSignalingClosed
		}
		o.sendReject()
		o.abandon("rejected locally")
		return nil
	case domain.StateOutgoingRinging, domain.StateActive:
		return o.hangUp()
	}
	return nil
}

func (o *Orchestrator) hangUp() error {
	if !o.sess.state.InCall() {
		return nil
	}
	if !o.sess.signalingOpen {
		return ErrSignalingClosed
	}
	o.sendReject()
	o.abandon("hung up")
	return nil
}

// abandon drops the call attempt and everything attached to it.
func (o *Orchestrator) abandon(reason string) {
	o.teardown(reason)
	o.sess.pendingOffer = nil
	o.transition(domain.StateWaitingForPartner, reason)
}

func (o *Orchestrator) enterActive(reason string) {
	if !o.transition(domain.StateActive, reason) {
		return
	}
	o.startMonitor()
}

func (o *Orchestrator) send(m core.Message) error {
	m.To = string(o.remote)
	m.From = string(o.local)
	if err := o.signal.Send(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

func (o *Orchestrator) sendReject() {
	if err := o.send(core.Message{Type: core.TypeReject}); err != nil {
		o.logger.Warn().Err(err).Msg("reject not delivered")
	}
}

// --- inbound signaling ---

func (o *Orchestrator) handleSignalEvent(ev core.SignalEvent) {
	switch ev.Kind {
	case core.SignalConnected:
		o.sess.signalingOpen = true
		o.logger.Info().Msg("signaling connected")
		if o.sess.state == domain.StateIdle {
			o.transition(domain.StateWaitingForPartner, "signaling connected")
		}
	case core.SignalClosed:
		if !o.sess.signalingOpen {
			return
		}
		o.sess.signalingOpen = false
		o.sess.partnerPresent = false
		o.logger.Warn().Err(ev.Err).Msg("signaling closed")
		o.abandon("signaling closed")
	case core.SignalInbound:
		o.handleMessage(ev.Message)
	}
}

func (o *Orchestrator) handleMessage(m core.Message) {
	if m.From != "" && m.From != string(o.remote) {
		o.logger.Warn().Str("from", m.From).Str("type", string(m.Type)).Msg("message from unexpected peer ignored")
		return
	}
	if err := m.Validate(); err != nil {
		o.logger.Warn().Err(err).Msg("malformed message ignored")
		return
	}
	switch m.Type {
	case core.TypePartnerOnline:
		o.sess.partnerPresent = true
		o.logger.Info().Msg("partner online")
		if o.sess.state == domain.StateIdle {
			o.transition(domain.StateWaitingForPartner, "partner online")
		}
	case core.TypePartnerOffline:
		o.sess.partnerPresent = false
		o.logger.Info().Msg("partner offline")
		o.abandon("partner offline")
	case core.TypeOffer:
		o.onRemoteOffer(*m.Offer)
	case core.TypeAnswer:
		o.onRemoteAnswer(*m.Answer)
	case core.TypeCandidate:
		o.onRemoteCandidate(*m.Candidate)
	case core.TypeReject:
		o.onRemoteReject()
	case core.TypeError:
		o.logger.Warn().Str("error", m.Error).Msg("relay reported error")
	case core.TypePing, core.TypePong, core.TypeLogin:
	default:
		o.logger.Warn().Str("type", string(m.Type)).Msg("unknown message ignored")
	}
}

func (o *Orchestrator) onRemoteOffer(offer webrtc.SessionDescription) {
	switch o.sess.state {
	case domain.StateWaitingForPartner:
		o.sess.partnerPresent = true
		o.sess.pendingOffer = &offer
		o.transition(domain.StateIncomingRinging, "offer received")
	case domain.StateIncomingRinging:
		o.sess.pendingOffer = &offer
		o.buffer.Clear()
		o.logger.Debug().Msg("pending offer replaced")
	case domain.StateOutgoingRinging:
		o.onGlare(offer)
	case domain.StateActive:
		o.onRenegotiation(offer)
	default:
		o.logger.Warn().Str("state", o.sess.state.String()).Msg("offer ignored")
	}
}

// onGlare settles simultaneous offers: the peer with the smaller id keeps
// its offer, the other one drops its own and answers.
//
// Candidates the partner sends before its answer come from the transport it
// is dropping. The relay preserves per-sender order, so everything after the
// answer belongs to the new one.
func (o *Orchestrator) onGlare(offer webrtc.SessionDescription) {
	if o.local.Less(o.remote) {
		o.logger.Info().Int("dropped", o.buffer.Len()).Msg("glare: keeping own offer")
		o.buffer.Clear()
		o.sess.staleCandidates = true
		return
	}
	o.logger.Info().Msg("glare: yielding to partner offer")
	o.teardown("glare")
	o.sess.pendingOffer = &offer
	o.transition(domain.StateIncomingRinging, "glare")
	if err := o.accept(); err != nil {
		o.logger.Error().Err(err).Msg("glare: answering partner offer failed")
	}
}

// onRenegotiation answers an offer on the established transport, which is
// how the remote side performs an ICE restart.
func (o *Orchestrator) onRenegotiation(offer webrtc.SessionDescription) {
	if o.transport == nil {
		return
	}
	if err := o.applyRemoteDescription(offer); err != nil {
		o.logger.Error().Err(err).Msg("renegotiation offer rejected")
		return
	}
	answer, err := o.transport.CreateAnswer()
	if err != nil {
		o.logger.Error().Err(err).Msg("renegotiation answer failed")
		return
	}
	o.sess.localDesc = &answer
	if err := o.send(core.Message{Type: core.TypeAnswer, Answer: &answer}); err != nil {
		o.logger.Warn().Err(err).Msg("renegotiation answer not sent")
	}
}

func (o *Orchestrator) onRemoteAnswer(answer webrtc.SessionDescription) {
	switch {
	case o.sess.state == domain.StateOutgoingRinging && o.transport != nil:
		if err := o.applyRemoteDescription(answer); err != nil {
			o.logger.Error().Err(err).Msg("answer rejected")
			return
		}
		o.sess.staleCandidates = false
		o.enterActive("answer received")
	case o.sess.state == domain.StateActive && o.sess.restartPending:
		if err := o.applyRemoteDescription(answer); err != nil {
			o.logger.Error().Err(err).Msg("restart answer rejected")
			return
		}
		o.sess.restartPending = false
		o.logger.Info().Msg("ice restart answered")
	default:
		o.logger.Warn().Str("state", o.sess.state.String()).Msg("answer ignored")
	}
}

func (o *Orchestrator) onRemoteCandidate(c webrtc.ICECandidateInit) {
	switch {
	case o.sess.staleCandidates:
		o.logger.Debug().Str("candidate", c.Candidate).Msg("candidate of dropped glare offer ignored")
	case o.transport != nil && o.sess.remoteDesc != nil:
		if err := o.transport.AddICECandidate(c); err != nil {
			o.logger.Warn().Err(err).Str("candidate", c.Candidate).Msg("remote candidate rejected")
		}
	case o.transport != nil || o.sess.state == domain.StateIncomingRinging:
		o.buffer.Enqueue(c)
	default:
		o.logger.Debug().Str("candidate", c.Candidate).Msg("candidate without call dropped")
	}
}

func (o *Orchestrator) onRemoteReject() {
	if !o.sess.state.InCall() {
		return
	}
	o.abandon("partner rejected")
}

// applyRemoteDescription installs desc and releases the buffered candidates.
func (o *Orchestrator) applyRemoteDescription(desc webrtc.SessionDescription) error {
	if err := o.transport.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	o.sess.remoteDesc = &desc
	if err := o.buffer.Drain(o.transport.AddICECandidate); err != nil {
		o.logger.Warn().Err(err).Msg("buffered candidates rejected")
	}
	return nil
}
