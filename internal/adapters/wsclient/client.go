// Package wsclient is the client end of the signaling relay: it logs in,
// pumps frames both ways and reconnects with exponential backoff.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

var ErrNotConnected = errors.New("signaling not connected")

type ReconnectConfig struct {
	// MaxRetries bounds consecutive failed dials; zero retries forever.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Config struct {
	URL              string
	Username         domain.PeerID
	HandshakeTimeout time.Duration
	SendQueue        int
	Reconnect        ReconnectConfig
}

// Client implements core.SignalingChannel.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	events chan core.SignalEvent
	logger zerolog.Logger

	mu   sync.RWMutex
	conn *signal.Conn
}

func New(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		events: make(chan core.SignalEvent, 64),
		logger: log.With().Str("module", "wsclient").Str("user", string(cfg.Username)).Logger(),
	}
}

func (c *Client) Events() <-chan core.SignalEvent { return c.events }

func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send queues m for the relay without waiting for the write.
func (c *Client) Send(m core.Message) error {
	frame, err := core.EncodeMessage(m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.TrySend(frame)
}

// Run keeps a relay session alive until ctx is cancelled or reconnecting
// gives up. The events channel is closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	for {
		ws, err := c.dialWithBackoff(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("signaling unreachable: %w", err)
		}
		err = c.serve(ctx, ws)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("signaling connection lost")
		c.emit(ctx, core.SignalEvent{Kind: core.SignalClosed, Err: err})
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if c.cfg.Reconnect.InitialInterval > 0 {
		eb.InitialInterval = c.cfg.Reconnect.InitialInterval
	}
	if c.cfg.Reconnect.MaxInterval > 0 {
		eb.MaxInterval = c.cfg.Reconnect.MaxInterval
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if c.cfg.Reconnect.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.cfg.Reconnect.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

func (c *Client) dialWithBackoff(ctx context.Context) (*websocket.Conn, error) {
	var ws *websocket.Conn
	op := func() error {
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", next).Msg("dial failed")
	}
	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return ws, nil
}

// serve runs one connected session and returns why it ended.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	conn := signal.NewConn(ws, c.cfg.SendQueue)
	login, err := core.EncodeMessage(core.Message{Type: core.TypeLogin, Username: string(c.cfg.Username)})
	if err != nil {
		conn.Close()
		return err
	}
	// Login is queued before the connection is published, so nothing can
	// overtake it.
	if err := conn.TrySend(login); err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go conn.WritePump(ctx)

	c.setConn(conn)
	defer c.setConn(nil)
	c.logger.Info().Str("url", c.cfg.URL).Msg("signaling connected")
	c.emit(ctx, core.SignalEvent{Kind: core.SignalConnected})

	return conn.ReadPump(ctx, func(data []byte) {
		m, err := core.DecodeMessage(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad frame from relay")
			return
		}
		if m.Type == core.TypePing {
			c.pong(conn)
			return
		}
		c.emit(ctx, core.SignalEvent{Kind: core.SignalInbound, Message: m})
	})
}

func (c *Client) pong(conn *signal.Conn) {
	frame, err := core.EncodeMessage(core.Message{Type: core.TypePong})
	if err != nil {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		c.logger.Warn().Err(err).Msg("pong not sent")
	}
}

func (c *Client) setConn(conn *signal.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) emit(ctx context.Context, ev core.SignalEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
