package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

var (
	ErrUnknownPeer        = errors.New("peer has no partner")
	ErrTooManyLogins      = errors.New("too many login attempts")
	ErrNotPartner         = errors.New("recipient is not the sender's partner")
	ErrPartnerUnavailable = errors.New("partner is not online")
)

// Orchestrator is the relay core: it binds logins, exchanges presence
// between partners and forwards negotiation messages without reading them.
type Orchestrator struct {
	Registry *Registry
	Pairing  *domain.Pairing
	Policy   Policy
	// Logins is optional.
	Logins *LoginLimiter
}

// Login binds conn to id. A previous connection of the same peer is kicked.
// Both partners learn about each other when both are online.
func (o *Orchestrator) Login(id domain.PeerID, connID string, conn core.SignalConnection, cancel context.CancelFunc) error {
	partner, err := o.Pairing.PartnerOf(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	if o.Logins != nil && !o.Logins.Allow(id) {
		return ErrTooManyLogins
	}
	if prev := o.Registry.Bind(id, connID, conn, cancel); prev != nil && prev.ConnID != connID {
		log.Info().Str("module", "app").Str("peer", string(id)).Str("conn", prev.ConnID).Msg("replaced by new login")
		if prev.Cancel != nil {
			prev.Cancel()
		}
		prev.Conn.Close()
	}

	if pc, ok := o.Registry.Conn(partner); ok {
		o.deliver(partner, pc, core.Message{Type: core.TypePartnerOnline, From: string(id), To: string(partner)})
		o.deliver(id, conn, core.Message{Type: core.TypePartnerOnline, From: string(partner), To: string(id)})
	}
	return nil
}

// OnMessage forwards m from sender to its partner with the sender stamped.
func (o *Orchestrator) OnMessage(from domain.PeerID, m core.Message) error {
	partner, err := o.Pairing.PartnerOf(from)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, from)
	}
	if m.To != "" && m.To != string(partner) {
		return fmt.Errorf("%w: %s", ErrNotPartner, m.To)
	}
	conn, ok := o.Registry.Conn(partner)
	if !ok {
		return ErrPartnerUnavailable
	}
	m.From = string(from)
	m.To = string(partner)
	return o.deliver(partner, conn, m)
}

// OnDisconnect logs id out if connID is still its current connection.
func (o *Orchestrator) OnDisconnect(id domain.PeerID, connID string) {
	if !o.Registry.Unbind(id, connID) {
		return
	}
	partner, err := o.Pairing.PartnerOf(id)
	if err != nil {
		return
	}
	if pc, ok := o.Registry.Conn(partner); ok {
		o.deliver(partner, pc, core.Message{Type: core.TypePartnerOffline, From: string(id), To: string(partner)})
	}
}

func (o *Orchestrator) Kick(id domain.PeerID) {
	if conn, ok := o.Registry.Conn(id); ok {
		o.Registry.Cancel(id)
		conn.Close()
	}
}

func (o *Orchestrator) deliver(to domain.PeerID, conn core.SignalConnection, m core.Message) error {
	frame, err := core.EncodeMessage(m)
	if err != nil {
		return err
	}
	err = conn.TrySend(frame)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Str("module", "app").Str("to", string(to)).Str("type", string(m.Type)).Msg("deliver failed")
	if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		return err
	}
	switch o.Policy.OnBackPressure(conn, m.Type) {
	case KickPeer:
		o.Kick(to)
	case DropFrame, NoAction:
	}
	return err
}
