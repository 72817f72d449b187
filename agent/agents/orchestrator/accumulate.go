package orchestrator

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// response collects one streamed model response. Tool call fragments are
// merged by index, or by id when the provider sends no index.
type response struct {
	text     strings.Builder
	trailing strings.Builder
	calls    []*pendingCall
	byIndex  map[int]*pendingCall
	byID     map[string]*pendingCall
	usage    *schema.TokenUsage
	finish   string
}

func newResponse() *response {
	return &response{
		byIndex: map[int]*pendingCall{},
		byID:    map[string]*pendingCall{},
	}
}

func (r *response) hasToolCalls() bool {
	return len(r.calls) > 0
}

func (r *response) addFragments(fragments []schema.ToolCall) {
	for _, f := range fragments {
		call := r.lookup(f)
		if call == nil {
			call = &pendingCall{}
			r.calls = append(r.calls, call)
			if f.Index != nil {
				r.byIndex[*f.Index] = call
			}
		}
		if f.ID != "" && call.id == "" {
			call.id = f.ID
			r.byID[f.ID] = call
		}
		if name := strings.TrimSpace(f.Function.Name); name != "" && call.name == "" {
			call.name = name
		}
		call.args.WriteString(f.Function.Arguments)
	}
}

func (r *response) lookup(f schema.ToolCall) *pendingCall {
	if f.Index != nil {
		return r.byIndex[*f.Index]
	}
	if f.ID != "" {
		return r.byID[f.ID]
	}
	// continuation without index or id
	if n := len(r.calls); n > 0 {
		return r.calls[n-1]
	}
	return nil
}

func (r *response) observeMeta(meta *schema.ResponseMeta) {
	if meta == nil {
		return
	}
	if meta.Usage != nil {
		r.usage = meta.Usage
	}
	if meta.FinishReason != "" {
		r.finish = meta.FinishReason
	}
}

// toolCalls returns the completed calls in first-seen order. Calls the
// provider left without an id get one from newID.
func (r *response) toolCalls(newID func() string) []schema.ToolCall {
	out := make([]schema.ToolCall, 0, len(r.calls))
	for i, c := range r.calls {
		if c.id == "" {
			c.id = "call_" + newID()
		}
		args := strings.TrimSpace(c.args.String())
		if args == "" {
			args = "{}"
		}
		idx := i
		out = append(out, schema.ToolCall{
			Index: &idx,
			ID:    c.id,
			Type:  "function",
			Function: schema.FunctionCall{
				Name:      c.name,
				Arguments: args,
			},
		})
	}
	return out
}
