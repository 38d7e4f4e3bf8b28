package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Duet/internal/core"
)

// relayStub accepts sockets and hands them to the test.
type relayStub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	r := &relayStub{conns: make(chan *websocket.Conn, 4)}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.conns <- ws
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relayStub) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

func (r *relayStub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-r.conns:
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func readMsg(t *testing.T, ws *websocket.Conn) core.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := core.DecodeMessage(data)
	require.NoError(t, err)
	return m
}

func writeMsg(t *testing.T, ws *websocket.Conn, m core.Message) {
	t.Helper()
	frame, err := core.EncodeMessage(m)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func nextEvent(t *testing.T, c *Client) core.SignalEvent {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no signaling event")
		return core.SignalEvent{}
	}
}

func startClient(t *testing.T, url string) (*Client, chan error) {
	t.Helper()
	c := New(Config{
		URL:      url,
		Username: "user1",
		Reconnect: ReconnectConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, done
}

func TestClient_LoginAndExchange(t *testing.T) {
	relay := newRelayStub(t)
	c, _ := startClient(t, relay.url())
	ws := relay.accept(t)

	login := readMsg(t, ws)
	assert.Equal(t, core.TypeLogin, login.Type)
	assert.Equal(t, "user1", login.Username)

	assert.Equal(t, core.SignalConnected, nextEvent(t, c).Kind)
	assert.True(t, c.IsOpen())

	writeMsg(t, ws, core.Message{Type: core.TypePartnerOnline, From: "user2"})
	ev := nextEvent(t, c)
	require.Equal(t, core.SignalInbound, ev.Kind)
	assert.Equal(t, core.TypePartnerOnline, ev.Message.Type)

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, c.Send(core.Message{Type: core.TypeOffer, Offer: offer, To: "user2"}))
	got := readMsg(t, ws)
	assert.Equal(t, core.TypeOffer, got.Type)
	assert.Equal(t, "user2", got.To)
	assert.Equal(t, "v=0", got.Offer.SDP)
}

func TestClient_AnswersPing(t *testing.T) {
	relay := newRelayStub(t)
	c, _ := startClient(t, relay.url())
	ws := relay.accept(t)
	readMsg(t, ws)
	nextEvent(t, c)

	writeMsg(t, ws, core.Message{Type: core.TypePing})
	assert.Equal(t, core.TypePong, readMsg(t, ws).Type)
}

func TestClient_MalformedFrameIgnored(t *testing.T) {
	relay := newRelayStub(t)
	c, _ := startClient(t, relay.url())
	ws := relay.accept(t)
	readMsg(t, ws)
	nextEvent(t, c)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	writeMsg(t, ws, core.Message{Type: core.TypeReject})

	ev := nextEvent(t, c)
	assert.Equal(t, core.TypeReject, ev.Message.Type)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	relay := newRelayStub(t)
	c, _ := startClient(t, relay.url())
	first := relay.accept(t)
	readMsg(t, first)
	require.Equal(t, core.SignalConnected, nextEvent(t, c).Kind)

	require.NoError(t, first.Close())
	closed := nextEvent(t, c)
	assert.Equal(t, core.SignalClosed, closed.Kind)
	assert.Error(t, closed.Err)

	second := relay.accept(t)
	assert.Equal(t, core.TypeLogin, readMsg(t, second).Type)
	assert.Equal(t, core.SignalConnected, nextEvent(t, c).Kind)
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws", Username: "user1"})
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.Send(core.Message{Type: core.TypeReject}), ErrNotConnected)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	c := New(Config{
		URL:      "ws://127.0.0.1:1/ws",
		Username: "user1",
		Reconnect: ReconnectConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	})
	err := c.Run(context.Background())
	assert.Error(t, err)
	_, open := <-c.Events()
	assert.False(t, open)
}
