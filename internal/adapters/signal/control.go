package signal

import "github.com/dkeye/Live/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}
