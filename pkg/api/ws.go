package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicerelay/pkg/session"
)

const wsCloseGrace = time.Second

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	l := &wsListener{conn: conn}
	defer l.Close()

	if err := s.sessions.Attach(r.PathValue("sessionId"), l); err != nil {
		return
	}
	// Keep the socket until the client or the session closes it.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsListener delivers session messages as JSON text frames.
type wsListener struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (l *wsListener) Send(ctx context.Context, msg session.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return websocket.ErrCloseSent
	}
	if deadline, ok := ctx.Deadline(); ok {
		l.conn.SetWriteDeadline(deadline)
		defer l.conn.SetWriteDeadline(time.Time{})
	}
	return l.conn.WriteJSON(msg)
}

func (l *wsListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseGrace))
	return l.conn.Close()
}
