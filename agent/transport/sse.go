package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// SSE writes events as text/event-stream frames and flushes after each.
type SSE struct {
	w      io.Writer
	flush  func()
	mu     sync.Mutex
	closed bool
}

func NewSSE(w http.ResponseWriter) *SSE {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	var flushFn func()
	if f, ok := w.(http.Flusher); ok {
		flushFn = f.Flush
	}
	return &SSE{w: w, flush: flushFn}
}

func (s *SSE) Emit(_ context.Context, ev contractx.StreamEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if ev.Type.IsTerminal() {
		s.closed = true
	}
	return s.writeLocked(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, body))
}

// Heartbeat writes a comment frame every interval until ctx is done or
// the stream closes. Proxies keep the connection open during slow tools.
func (s *SSE) Heartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			err := s.writeLocked(": ping\n\n")
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *SSE) writeLocked(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}
