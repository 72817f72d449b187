package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

func delta(seq int, text string) contractx.StreamEvent {
	return contractx.StreamEvent{Type: contractx.EventTextDelta, TurnID: "turn_1", Seq: seq, Delta: text}
}

func complete(seq int, text string) contractx.StreamEvent {
	return contractx.StreamEvent{Type: contractx.EventTurnComplete, TurnID: "turn_1", Seq: seq, Text: text}
}

func TestSSEWritesFramesAndClosesAfterTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSE(rec)
	ctx := context.Background()

	require.NoError(t, sse.Emit(ctx, delta(1, "Hi")))
	require.NoError(t, sse.Emit(ctx, complete(2, "Hi")))
	assert.ErrorIs(t, sse.Emit(ctx, delta(3, "late")), ErrStreamClosed)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "id: 1\nevent: text-delta\ndata: {"))
	assert.Contains(t, frames[1], "event: turn-complete")
	assert.NotContains(t, body, "late")

	data := strings.TrimPrefix(strings.Split(frames[0], "\n")[2], "data: ")
	var ev contractx.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "Hi", ev.Delta)
	assert.Equal(t, "turn_1", ev.TurnID)
}

func TestSSEHeartbeatStopsAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSE(rec)
	require.NoError(t, sse.Emit(context.Background(), complete(1, "")))

	done := make(chan struct{})
	go func() {
		sse.Heartbeat(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat kept running after the stream closed")
	}
	assert.NotContains(t, rec.Body.String(), ": ping")
}

func TestNDJSONOneEventPerLine(t *testing.T) {
	var buf bytes.Buffer
	n := NewNDJSON(&buf)
	ctx := context.Background()

	require.NoError(t, n.Emit(ctx, delta(1, "<b>20%</b>")))
	require.NoError(t, n.Emit(ctx, contractx.StreamEvent{
		Type:  contractx.EventTurnError,
		Seq:   2,
		Error: &contractx.TurnError{Code: contractx.CodeRateLimited, Message: "slow down"},
	}))
	assert.ErrorIs(t, n.Emit(ctx, delta(3, "x")), ErrStreamClosed)

	raw := buf.String()
	sc := bufio.NewScanner(strings.NewReader(raw))
	var types []contractx.EventType
	for sc.Scan() {
		var ev contractx.StreamEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []contractx.EventType{contractx.EventTextDelta, contractx.EventTurnError}, types)
	assert.Contains(t, raw, "<b>20%</b>")
}

func TestServeAppliesTurnTimeout(t *testing.T) {
	err := Serve(context.Background(), 10*time.Millisecond, nil, func(ctx context.Context, _ contractx.EventSink) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func wsServer(t *testing.T, handle func(ws *WebSocket)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws := NewWebSocket(conn)
		defer ws.Close()
		handle(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketStreamsEventsThenCloses(t *testing.T) {
	url := wsServer(t, func(ws *WebSocket) {
		var req contractx.TurnRequest
		if err := ws.ReadRequest(&req); err != nil {
			return
		}
		ctx := context.Background()
		_ = ws.Emit(ctx, delta(1, req.Messages[0].Content))
		_ = ws.Emit(ctx, complete(2, req.Messages[0].Content))
		_ = ws.Emit(ctx, delta(3, "late"))
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(contractx.TurnRequest{
		Messages: []contractx.InboundMessage{{Role: contractx.RoleUser, Content: "echo"}},
	}))

	var got []contractx.StreamEvent
	for {
		var ev contractx.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "close error = %v", err)
			break
		}
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "echo", got[0].Delta)
	assert.Equal(t, contractx.EventTurnComplete, got[1].Type)
}

func TestWebSocketClientCloseCancelsTurn(t *testing.T) {
	canceled := make(chan struct{})
	url := wsServer(t, func(ws *WebSocket) {
		var req contractx.TurnRequest
		if err := ws.ReadRequest(&req); err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		go ws.WatchClose(cancel)
		_ = ws.Emit(ctx, delta(1, "thinking"))
		select {
		case <-ctx.Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(contractx.TurnRequest{BusinessID: "b"}))

	var ev contractx.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.NoError(t, conn.Close())

	select {
	case <-canceled:
	case <-time.After(3 * time.Second):
		t.Fatal("turn context was not canceled after the client closed")
	}
}

func TestWebSocketRejectsMalformedRequest(t *testing.T) {
	result := make(chan error, 1)
	url := wsServer(t, func(ws *WebSocket) {
		var req contractx.TurnRequest
		err := ws.ReadRequest(&req)
		result <- err
		if err != nil {
			_ = ws.Fail(context.Background(), err)
		}
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	assert.ErrorIs(t, <-result, contractx.ErrValidation)
	var ev contractx.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, contractx.EventTurnError, ev.Type)
	assert.Equal(t, contractx.CodeInvalidRequest, ev.Error.Code)
}
