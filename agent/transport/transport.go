// Package transport delivers turn events to clients over SSE, WebSocket or
// newline-delimited JSON. Every sink accepts events in order and closes
// itself after the terminal event.
package transport

import (
	"context"
	"errors"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

var ErrStreamClosed = errors.New("stream already closed")

// TurnRunner runs one turn and reports its events to sink.
type TurnRunner func(ctx context.Context, sink contractx.EventSink) error

// Serve runs a turn bounded by the maximum turn duration. A turn that is
// still running when timeout elapses sees its context expire.
func Serve(ctx context.Context, timeout time.Duration, sink contractx.EventSink, run TurnRunner) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return run(ctx, sink)
}
