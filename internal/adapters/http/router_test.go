package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Duet/internal/adapters/wsclient"
	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

func newRelay(t *testing.T) (*httptest.Server, *app.Orchestrator) {
	t.Helper()
	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Pairing:  domain.NewPairing(domain.DefaultPairs),
		Policy:   app.SimplePolicy{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := SetupRouter(ctx, &config.Relay{Mode: "release", SendQueue: 16}, orch)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, orch
}

func startClient(t *testing.T, srv *httptest.Server, id domain.PeerID) *wsclient.Client {
	t.Helper()
	c := wsclient.New(wsclient.Config{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Username: id,
		Reconnect: wsclient.ReconnectConfig{
			MaxRetries:      3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func waitConnected(t *testing.T, c *wsclient.Client) {
	t.Helper()
	select {
	case ev := <-c.Events():
		require.Equal(t, core.SignalConnected, ev.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not connect")
	}
}

// nextInbound skips lifecycle events until a message of type want arrives.
func nextInbound(t *testing.T, c *wsclient.Client, want core.MessageType) core.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "events closed")
			if ev.Kind == core.SignalInbound && ev.Message.Type == want {
				return ev.Message
			}
		case <-deadline:
			t.Fatalf("no %s message", want)
			return core.Message{}
		}
	}
}

func TestRelay_PresenceAndForwarding(t *testing.T) {
	srv, orch := newRelay(t)

	user1 := startClient(t, srv, "user1")
	require.Eventually(t, func() bool { return orch.Registry.Online("user1") }, 3*time.Second, 10*time.Millisecond)
	user2 := startClient(t, srv, "user2")

	assert.Equal(t, "user2", nextInbound(t, user1, core.TypePartnerOnline).From)
	assert.Equal(t, "user1", nextInbound(t, user2, core.TypePartnerOnline).From)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	require.NoError(t, user1.Send(core.Message{Type: core.TypeOffer, To: "user2", Offer: &offer}))
	got := nextInbound(t, user2, core.TypeOffer)
	assert.Equal(t, "user1", got.From)
	require.NotNil(t, got.Offer)
	assert.Equal(t, offer.SDP, got.Offer.SDP)

	require.NoError(t, user2.Send(core.Message{Type: core.TypeReject, To: "user1"}))
	assert.Equal(t, "user2", nextInbound(t, user1, core.TypeReject).From)
}

func TestRelay_PartnerOffline(t *testing.T) {
	srv, orch := newRelay(t)
	user1 := startClient(t, srv, "user1")
	waitConnected(t, user1)
	require.Eventually(t, func() bool { return orch.Registry.Online("user1") }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, user1.Send(core.Message{Type: core.TypeReject, To: "user2"}))
	msg := nextInbound(t, user1, core.TypeError)
	assert.Equal(t, "partner_offline", msg.Error)
}

func TestRelay_HealthAndPeers(t *testing.T) {
	srv, orch := newRelay(t)
	startClient(t, srv, "user1")
	require.Eventually(t, func() bool { return orch.Registry.Online("user1") }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status string `json:"status"`
		Peers  int    `json:"peers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Peers)

	resp2, err := http.Get(srv.URL + "/api/peers")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var peers struct {
		Peers []app.PeerInfo `json:"peers"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&peers))
	require.Len(t, peers.Peers, 1)
	assert.Equal(t, domain.PeerID("user1"), peers.Peers[0].ID)
	assert.Equal(t, domain.PeerID("user2"), peers.Peers[0].Partner)
}
