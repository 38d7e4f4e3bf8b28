// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxPeerIDLen = 36

var (
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrNoPartner     = errors.New("no partner for peer id")
)

// PeerID identifies one side of a call. It is supplied externally and never
// changes for the lifetime of the process.
type PeerID string

func NewPeerID(raw string) (PeerID, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "#"))
	if len(raw) == 0 {
		return "", ErrPeerIDEmpty
	}
	if len(raw) > MaxPeerIDLen {
		return "", ErrPeerIDTooLong
	}
	return PeerID(raw), nil
}

// Less reports whether p sorts before other. Used as the glare tie-break.
func (p PeerID) Less(other PeerID) bool { return p < other }

// Pairing is the two-party naming convention: every peer id has exactly one
// partner.
type Pairing struct {
	partners map[PeerID]PeerID
}

// DefaultPairs mirrors the demo convention: user1 talks to user2.
var DefaultPairs = [][2]string{{"user1", "user2"}}

func NewPairing(pairs [][2]string) *Pairing {
	p := &Pairing{partners: make(map[PeerID]PeerID, len(pairs)*2)}
	for _, pair := range pairs {
		a, b := PeerID(pair[0]), PeerID(pair[1])
		if a == "" || b == "" || a == b {
			continue
		}
		p.partners[a] = b
		p.partners[b] = a
	}
	return p
}

func (p *Pairing) PartnerOf(id PeerID) (PeerID, error) {
	if partner, ok := p.partners[id]; ok {
		return partner, nil
	}
	return "", ErrNoPartner
}
