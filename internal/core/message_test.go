package core

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_BrowserShapes(t *testing.T) {
	t.Run("offer", func(t *testing.T) {
		m, err := DecodeMessage([]byte(`{"type":"offer","offer":{"type":"offer","sdp":"v=0\r\n"},"to":"user2","from":"user1"}`))
		require.NoError(t, err)
		assert.Equal(t, TypeOffer, m.Type)
		require.NotNil(t, m.Offer)
		assert.Equal(t, webrtc.SDPTypeOffer, m.Offer.Type)
		assert.Equal(t, "user1", m.From)
	})

	t.Run("candidate", func(t *testing.T) {
		m, err := DecodeMessage([]byte(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0},"to":"user2"}`))
		require.NoError(t, err)
		require.NotNil(t, m.Candidate)
		require.NotNil(t, m.Candidate.SDPMid)
		assert.Equal(t, "0", *m.Candidate.SDPMid)
		require.NotNil(t, m.Candidate.SDPMLineIndex)
		assert.Equal(t, uint16(0), *m.Candidate.SDPMLineIndex)
	})

	t.Run("unknown type is not an error", func(t *testing.T) {
		m, err := DecodeMessage([]byte(`{"type":"typing"}`))
		require.NoError(t, err)
		assert.False(t, m.Type.Known())
	})
}

func TestDecodeMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "not json", data: `{`, wantErr: ErrBadMessage},
		{name: "no type", data: `{"to":"user2"}`, wantErr: ErrBadMessage},
		{name: "offer without sdp", data: `{"type":"offer","offer":{"type":"offer"}}`, wantErr: ErrMissingPayload},
		{name: "answer missing", data: `{"type":"answer"}`, wantErr: ErrMissingPayload},
		{name: "candidate missing", data: `{"type":"candidate"}`, wantErr: ErrMissingPayload},
		{name: "login without name", data: `{"type":"login"}`, wantErr: ErrMissingPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeMessage_OmitsUnusedFields(t *testing.T) {
	b, err := EncodeMessage(Message{Type: TypeReject, To: "user1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reject","to":"user1"}`, string(b))

	_, err = EncodeMessage(Message{Type: TypeAnswer, To: "user1"})
	assert.ErrorIs(t, err, ErrMissingPayload)
}
