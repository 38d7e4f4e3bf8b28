package signal

import "github.com/dkeye/Duet/internal/core"

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	ctl.sendMessage(conn, core.Message{Type: core.TypePong})
}

func (ctl *SignalWSController) sendError(conn core.SignalConnection, reason string) {
	ctl.sendMessage(conn, core.Message{Type: core.TypeError, Error: reason})
}
