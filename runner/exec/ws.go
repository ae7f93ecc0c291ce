package exec

import (
	"context"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// wsTextWriter adapts a WebSocket connection into the bridge's output sink.
// Each Write becomes exactly one outgoing text message, so frame boundaries
// on the wire match the chunks read off the pty.
type wsTextWriter struct {
	log  *zap.SugaredLogger
	ctx  context.Context
	conn *websocket.Conn
}

func (w *wsTextWriter) Write(b []byte) (int, error) {
	w.log.Debugf("forwarding frame of %d bytes", len(b))
	err := w.conn.Write(w.ctx, websocket.MessageText, b)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
