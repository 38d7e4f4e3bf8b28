package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeerID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    PeerID
		wantErr error
	}{
		{name: "plain", raw: "user1", want: "user1"},
		{name: "url fragment", raw: "#user2", want: "user2"},
		{name: "empty", raw: "  ", wantErr: ErrPeerIDEmpty},
		{name: "too long", raw: strings.Repeat("x", MaxPeerIDLen+1), wantErr: ErrPeerIDTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPeerID(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPairing(t *testing.T) {
	p := NewPairing([][2]string{{"user1", "user2"}, {"alice", "bob"}, {"solo", "solo"}})

	partner, err := p.PartnerOf("user2")
	require.NoError(t, err)
	assert.Equal(t, PeerID("user1"), partner)

	partner, err = p.PartnerOf("alice")
	require.NoError(t, err)
	assert.Equal(t, PeerID("bob"), partner)

	_, err = p.PartnerOf("solo")
	assert.ErrorIs(t, err, ErrNoPartner)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to CallState
		want     bool
	}{
		{StateIdle, StateWaitingForPartner, true},
		{StateWaitingForPartner, StateOutgoingRinging, true},
		{StateWaitingForPartner, StateIncomingRinging, true},
		{StateOutgoingRinging, StateIncomingRinging, true},
		{StateIncomingRinging, StateActive, true},
		{StateOutgoingRinging, StateActive, true},
		{StateActive, StateActive, true},
		{StateActive, StateWaitingForPartner, true},
		{StateWaitingForPartner, StateActive, false},
		{StateIdle, StateOutgoingRinging, false},
		{StateActive, StateOutgoingRinging, false},
		{StateEnded, StateWaitingForPartner, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}
