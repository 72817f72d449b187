package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 30 * time.Second
)

// WebSocket sends events as JSON text frames. After the terminal event it
// sends a normal close frame.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration

	mu     sync.Mutex
	closed bool
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
		readTimeout:  defaultReadTimeout,
	}
}

// ReadRequest reads the first client frame into v.
func (s *WebSocket) ReadRequest(v any) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return err
	}
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}
	if err := json.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("%w: request frame is not valid JSON: %v", contractx.ErrValidation, err)
	}
	return nil
}

// WatchClose calls cancel once the client goes away. Frames sent by the
// client during a turn are discarded. It blocks, so run it in its own
// goroutine.
func (s *WebSocket) WatchClose(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocket) Emit(_ context.Context, ev contractx.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if ev.Type.IsTerminal() {
		s.closed = true
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		return err
	}
	if s.closed {
		return s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)))
	}
	return nil
}

// Fail reports err as the only event of a turn that never started.
func (s *WebSocket) Fail(ctx context.Context, err error) error {
	return s.Emit(ctx, contractx.StreamEvent{
		Type: contractx.EventTurnError,
		Seq:  1,
		Error: &contractx.TurnError{
			Code:    contractx.CodeOf(err),
			Message: contractx.PublicMessage(err),
		},
	})
}

func (s *WebSocket) Close() error {
	return s.conn.Close()
}
