package orchestrator

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// emitter stamps events with the turn id and sequence number. After a
// terminal event it rejects everything.
type emitter struct {
	sink   contractx.EventSink
	turnID string
	seq    int
	closed bool
}

func newEmitter(sink contractx.EventSink, turnID string) *emitter {
	return &emitter{sink: sink, turnID: turnID}
}

func (e *emitter) emit(ctx context.Context, ev contractx.StreamEvent) error {
	if e.closed {
		return fmt.Errorf("turn %s already terminated, dropping %s", e.turnID, ev.Type)
	}
	e.seq++
	ev.TurnID = e.turnID
	ev.Seq = e.seq
	if ev.Type.IsTerminal() {
		e.closed = true
	}
	if e.sink == nil {
		return nil
	}
	if err := e.sink.Emit(ctx, ev); err != nil {
		return fmt.Errorf("%w: deliver %s: %v", contractx.ErrCanceled, ev.Type, err)
	}
	return nil
}

func (e *emitter) fail(ctx context.Context, err error) error {
	return e.emit(ctx, contractx.StreamEvent{
		Type: contractx.EventTurnError,
		Error: &contractx.TurnError{
			Code:    contractx.CodeOf(err),
			Message: contractx.PublicMessage(err),
		},
	})
}
