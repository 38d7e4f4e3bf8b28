// Package signal carries signaling frames over websockets: the Conn used by
// both ends and the relay-side controller.
package signal

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
)

type SignalWSController struct {
	Orch      *app.Orchestrator
	SendQueue int
}

func NewSignalWSController(orch *app.Orchestrator, sendQueue int) *SignalWSController {
	return &SignalWSController{
		Orch:      orch,
		SendQueue: sendQueue,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	connID := uuid.NewString()
	log.Info().Str("module", "signal").Str("conn", connID).Str("remote", c.ClientIP()).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewConn(ws, ctl.SendQueue)
	ctx, cancel := context.WithCancel(ctx)
	sess := &relaySession{connID: connID, conn: conn, cancel: cancel}

	go conn.WritePump(ctx)
	go ctl.readPump(ctx, sess)
}

// relaySession is the per-socket state, touched only by its read pump.
type relaySession struct {
	connID string
	conn   *Conn
	cancel context.CancelFunc
	peer   string
}

func (ctl *SignalWSController) sendMessage(c core.SignalConnection, m core.Message) {
	frame, err := core.EncodeMessage(m)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendMessage encode")
		return
	}
	_ = c.TrySend(frame)
}
