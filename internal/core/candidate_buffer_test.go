package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(i int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 2122260223 10.0.0.%d 5000 typ host", i, i)}
}

func TestCandidateBuffer_DrainInOrder(t *testing.T) {
	b := NewCandidateBuffer()
	for i := 1; i <= 3; i++ {
		b.Enqueue(cand(i))
	}
	require.Equal(t, 3, b.Len())

	var applied []string
	err := b.Drain(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{cand(1).Candidate, cand(2).Candidate, cand(3).Candidate}, applied)
	assert.Zero(t, b.Len())

	// A second drain must not re-apply anything.
	calls := 0
	require.NoError(t, b.Drain(func(webrtc.ICECandidateInit) error { calls++; return nil }))
	assert.Zero(t, calls)
}

func TestCandidateBuffer_BadCandidateDoesNotBlockRest(t *testing.T) {
	b := NewCandidateBuffer()
	for i := 1; i <= 3; i++ {
		b.Enqueue(cand(i))
	}
	bad := errors.New("bad candidate")

	var applied []string
	err := b.Drain(func(c webrtc.ICECandidateInit) error {
		if c.Candidate == cand(2).Candidate {
			return bad
		}
		applied = append(applied, c.Candidate)
		return nil
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, []string{cand(1).Candidate, cand(3).Candidate}, applied)
	assert.Zero(t, b.Len())
}

func TestCandidateBuffer_HaltLeavesRemainder(t *testing.T) {
	b := NewCandidateBuffer()
	for i := 1; i <= 3; i++ {
		b.Enqueue(cand(i))
	}

	err := b.Drain(func(c webrtc.ICECandidateInit) error {
		if c.Candidate == cand(2).Candidate {
			return fmt.Errorf("transport closed: %w", ErrDrainHalted)
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrDrainHalted)
	assert.Equal(t, 2, b.Len())

	var rest []string
	require.NoError(t, b.Drain(func(c webrtc.ICECandidateInit) error {
		rest = append(rest, c.Candidate)
		return nil
	}))
	assert.Equal(t, []string{cand(2).Candidate, cand(3).Candidate}, rest)
}

func TestCandidateBuffer_Clear(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue(cand(1))
	b.Enqueue(cand(2))
	b.Clear()
	assert.Zero(t, b.Len())
}
