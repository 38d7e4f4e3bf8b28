package signal

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

func (ctl *SignalWSController) readPump(ctx context.Context, s *relaySession) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", s.connID).Str("peer", s.peer).Msg("readPump closing")
		s.cancel()
		if s.peer != "" {
			ctl.Orch.OnDisconnect(domain.PeerID(s.peer), s.connID)
		}
	}()

	err := s.conn.ReadPump(ctx, func(data []byte) { ctl.handleSignal(s, data) })
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("module", "signal").Str("conn", s.connID).Msg("readPump read error")
	}
}

func (ctl *SignalWSController) handleSignal(s *relaySession, data []byte) {
	m, err := core.DecodeMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", s.connID).Msg("bad frame")
		ctl.sendError(s.conn, "bad_payload")
		return
	}

	switch m.Type {
	case core.TypeLogin:
		ctl.handleLogin(s, m)
	case core.TypePing:
		ctl.handlePing(s.conn)
	case core.TypePong:
	case core.TypeOffer, core.TypeAnswer, core.TypeCandidate, core.TypeReject:
		ctl.handleForward(s, m)
	default:
		log.Warn().Str("module", "signal").Str("type", string(m.Type)).Msg("unknown signal")
		ctl.sendError(s.conn, "unknown_type")
	}
}

func (ctl *SignalWSController) handleLogin(s *relaySession, m core.Message) {
	id, err := domain.NewPeerID(m.Username)
	if err != nil {
		ctl.sendError(s.conn, "invalid_username")
		return
	}
	if s.peer != "" {
		if s.peer != string(id) {
			ctl.sendError(s.conn, "already_logged_in")
		}
		return
	}
	if err := ctl.Orch.Login(id, s.connID, s.conn, s.cancel); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(id)).Msg("login refused")
		switch {
		case errors.Is(err, app.ErrUnknownPeer):
			ctl.sendError(s.conn, "unknown_peer")
		case errors.Is(err, app.ErrTooManyLogins):
			ctl.sendError(s.conn, "too_many_logins")
		default:
			ctl.sendError(s.conn, "login_failed")
		}
		return
	}
	s.peer = string(id)
	log.Info().Str("module", "signal").Str("peer", s.peer).Str("conn", s.connID).Msg("login")
}

func (ctl *SignalWSController) handleForward(s *relaySession, m core.Message) {
	if s.peer == "" {
		ctl.sendError(s.conn, "not_logged_in")
		return
	}
	err := ctl.Orch.OnMessage(domain.PeerID(s.peer), m)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrPartnerUnavailable):
		ctl.sendError(s.conn, "partner_offline")
	case errors.Is(err, app.ErrNotPartner):
		ctl.sendError(s.conn, "not_partner")
	default:
		log.Warn().Err(err).Str("module", "signal").Str("peer", s.peer).Str("type", string(m.Type)).Msg("forward failed")
	}
}
