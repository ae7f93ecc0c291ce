package exec

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Server accepts WebSocket connections and runs each code payload received
// on them through the Bridge. Payloads on one connection run strictly one at
// a time; separate connections are served concurrently by the HTTP server's
// per-request goroutines.
type Server struct {
	Log    *zap.SugaredLogger
	Bridge *Bridge
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.Log.Debugf("error accepting WebSocket conn: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.Log.Debug("accepted WebSocket conn")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess := &serverSession{
		log:    s.Log.Named("session").With("SessionID", uuid.NewString()),
		conn:   wsConn,
		ctx:    ctx,
		bridge: s.Bridge,
	}
	sess.run()
}

type serverSession struct {
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	ctx    context.Context
	bridge *Bridge
}

// run reads payloads until the connection ends, executing each one
// synchronously. A normal client close is not an error; anything else on the
// channel tears the connection down.
func (s *serverSession) run() {
	for {
		typ, payload, err := s.conn.Read(s.ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			s.log.Debug("client closed the connection, wrapping up")
			return
		}
		if err != nil {
			s.log.Debugf("error reading payload: %s", err)
			s.conn.Close(websocket.StatusInternalError, err.Error())
			return
		}
		if typ != websocket.MessageText {
			s.log.Debugf("got non-text message, closing conn")
			s.conn.Close(websocket.StatusUnsupportedData, "payloads must be text")
			return
		}

		sink := &wsTextWriter{
			log:  s.log.Named("frame_writer"),
			ctx:  s.ctx,
			conn: s.conn,
		}
		outcome, err := s.bridge.Run(s.ctx, string(payload), sink)
		if err != nil {
			// Terminal for this run only. If the channel itself broke, the
			// next Read observes it and closes the session.
			s.log.Debugw("run failed", "Outcome", outcome.String(), "Error", err)
			continue
		}
		s.log.Debugw("run finished", "Outcome", outcome.String())
	}
}
