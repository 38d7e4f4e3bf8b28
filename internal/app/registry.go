package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

type peerEntry struct {
	ConnID string
	Conn   core.SignalConnection
	Cancel context.CancelFunc
	Since  time.Time
}

// PeerInfo is a read-only view for APIs (no transport fields).
type PeerInfo struct {
	ID      domain.PeerID `json:"id"`
	Partner domain.PeerID `json:"partner,omitempty"`
	Since   time.Time     `json:"since"`
}

// Registry tracks the logged-in peers of the relay. A peer id maps to at
// most one connection; a second login replaces the first.
type Registry struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*peerEntry
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[domain.PeerID]*peerEntry)}
}

// Bind registers conn for id and returns the entry it replaced, if any.
func (r *Registry) Bind(id domain.PeerID, connID string, conn core.SignalConnection, cancel context.CancelFunc) (replaced *peerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.peers[id]
	r.peers[id] = &peerEntry{ConnID: connID, Conn: conn, Cancel: cancel, Since: time.Now()}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("conn", connID).Msg("bound peer")
	return replaced
}

// Unbind removes id only while it is still bound to connID, so a stale
// connection cannot log out its replacement.
func (r *Registry) Unbind(id domain.PeerID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.peers[id]
	if !ok || e.ConnID != connID {
		return false
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("conn", connID).Msg("unbound peer")
	return true
}

func (r *Registry) Conn(id domain.PeerID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.peers[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Online(id domain.PeerID) bool {
	_, ok := r.Conn(id)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Registry) Snapshot(pairing *domain.Pairing) []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for id, e := range r.peers {
		info := PeerInfo{ID: id, Since: e.Since}
		if pairing != nil {
			info.Partner, _ = pairing.PartnerOf(id)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel stops the connection of id.
func (r *Registry) Cancel(id domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("canceled peer")
	return true
}
