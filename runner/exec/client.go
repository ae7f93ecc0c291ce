package exec

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const readLimit = 32768

// Client connects to a code-runner server and submits code for execution.
type Client struct {
	HTTPClient *http.Client
	URL        string
	Logger     *zap.SugaredLogger
}

// Session is one live connection to the server. Code sent on a Session runs
// strictly one payload at a time, and every text message the server sends
// back is one output frame, delivered on Output in production order.
type Session struct {
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	ctx    context.Context
	cancel func()

	frames chan string
}

// Connect dials the server and starts reading output frames.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	c.Logger.Debugw("dialing WebSocket for run session", "URL", c.URL)
	wsConn, _, err := websocket.Dial(ctx, c.URL, &websocket.DialOptions{
		HTTPClient:      c.HTTPClient,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("establishing WebSocket conn to run: %w", err)
	}
	wsConn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		log:    c.Logger.Named("run_session"),
		conn:   wsConn,
		ctx:    ctx,
		cancel: cancel,
		frames: make(chan string),
	}
	go sess.readFrames()
	return sess, nil
}

// Send submits one complete code payload for execution. The server runs
// payloads sequentially, so a Send during a running payload is queued by the
// server, not executed concurrently.
func (s *Session) Send(ctx context.Context, code string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(code))
}

// Output returns the channel of output frames. The channel is closed when
// the connection ends. There is no end-of-run marker; a run going quiet is
// the only completion signal, matching the wire protocol.
func (s *Session) Output() <-chan string {
	return s.frames
}

// Close closes the session with a normal closure, which the server treats as
// a clean end of the connection.
func (s *Session) Close() error {
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.cancel()
	return err
}

func (s *Session) readFrames() {
	defer close(s.frames)
	for {
		_, b, err := s.conn.Read(s.ctx)
		if err != nil {
			s.log.Debugf("frame reader done: %s", err)
			return
		}
		select {
		case s.frames <- string(b):
		case <-s.ctx.Done():
			return
		}
	}
}
