package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// NDJSON writes one JSON object per line. Used by the CLI.
type NDJSON struct {
	enc    *json.Encoder
	mu     sync.Mutex
	closed bool
}

func NewNDJSON(w io.Writer) *NDJSON {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSON{enc: enc}
}

func (n *NDJSON) Emit(_ context.Context, ev contractx.StreamEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrStreamClosed
	}
	if ev.Type.IsTerminal() {
		n.closed = true
	}
	return n.enc.Encode(ev)
}
