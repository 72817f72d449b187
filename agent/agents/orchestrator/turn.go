package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	llmx "github.com/tanpawarit/Chative-Digital-Twin/agent/llm"
	nodex "github.com/tanpawarit/Chative-Digital-Twin/agent/nodes/orchestrator"
	toolx "github.com/tanpawarit/Chative-Digital-Twin/agent/tool"
)

type turnState int

const (
	stateRequesting turnState = iota
	stateStreaming
	stateToolPending
	stateCompleted
	stateFailed
)

func (s turnState) String() string {
	switch s {
	case stateRequesting:
		return "requesting"
	case stateStreaming:
		return "streaming"
	case stateToolPending:
		return "tool_pending"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Turn is one prepared conversation turn. It runs at most once.
type Turn struct {
	ID string

	orch    *Orchestrator
	state   *nodex.GraphState
	tools   []contractx.ToolSpec
	history []*schema.Message
	started atomic.Bool
}

// Bundle is the business context the turn is grounded on.
func (t *Turn) Bundle() *contractx.ContextBundle {
	return t.state.Bundle
}

// Run drives the turn to completion and delivers its events to sink. The
// last event is always exactly one turn-complete or turn-error. The
// returned error is the turn failure, if any.
func (t *Turn) Run(ctx context.Context, sink contractx.EventSink) error {
	if !t.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: turn %s already ran", contractx.ErrValidation, t.ID)
	}

	o := t.orch
	startedAt := time.Now()
	em := newEmitter(sink, t.ID)
	logger := o.logger.With().
		Str("turn_id", t.ID).
		Str("business_id", t.state.Bundle.BusinessID).
		Logger()

	history := append([]*schema.Message(nil), t.history...)

	var (
		current  = stateRequesting
		failedIn turnState
		step     int
		stream   *schema.StreamReader[*schema.Message]
		resp     *response
		full     strings.Builder
		failure  error
	)

	for current != stateCompleted && current != stateFailed {
		switch current {
		case stateRequesting:
			if err := ctx.Err(); err != nil {
				failedIn, failure, current = current, err, stateFailed
				continue
			}
			step++
			sr, err := o.provider.Stream(ctx, contractx.ProviderRequest{
				Model:    o.model,
				System:   t.state.SystemPrompt,
				Messages: history,
				Tools:    t.tools,
			})
			if err != nil {
				failedIn, failure, current = current, requestFailure(err), stateFailed
				o.metrics.ObserveProviderRequest(string(contractx.CodeOf(failure)))
				continue
			}
			o.metrics.ObserveProviderRequest("ok")
			stream, current = sr, stateStreaming

		case stateStreaming:
			var err error
			resp, err = t.consume(ctx, em, stream, step, &full)
			stream.Close()
			stream = nil
			if err != nil {
				failedIn, failure, current = current, err, stateFailed
				continue
			}
			logUsage(logger, step, resp)

			switch {
			case !resp.hasToolCalls():
				current = stateCompleted
			case step >= o.cfg.MaxSteps:
				failedIn = current
				failure = fmt.Errorf("%w: model still requested tools after %d steps", contractx.ErrStepLimitExceeded, step)
				current = stateFailed
			default:
				current = stateToolPending
			}

		case stateToolPending:
			var err error
			history, err = t.runTools(ctx, em, step, resp, history)
			if err != nil {
				failedIn, failure, current = current, err, stateFailed
				continue
			}
			if trailing := resp.trailing.String(); trailing != "" {
				full.WriteString(trailing)
				if err := em.emit(ctx, contractx.StreamEvent{
					Type:  contractx.EventTextDelta,
					Step:  step,
					Delta: trailing,
				}); err != nil {
					failedIn, failure, current = current, err, stateFailed
					continue
				}
			}
			current = stateRequesting
		}
	}

	elapsed := time.Since(startedAt)
	terminalCtx := context.WithoutCancel(ctx)

	if current == stateCompleted {
		o.metrics.ObserveTurn("ok", elapsed)
		logger.Info().
			Int("steps", step).
			Dur("elapsed", elapsed).
			Msg("turn completed")
		if err := em.emit(terminalCtx, contractx.StreamEvent{
			Type: contractx.EventTurnComplete,
			Step: step,
			Text: full.String(),
		}); err != nil {
			return fmt.Errorf("emit turn-complete: %w", err)
		}
		return nil
	}

	failure = classifyTurnError(ctx, failure)
	o.metrics.ObserveTurn(string(contractx.CodeOf(failure)), elapsed)
	logger.Warn().
		Err(failure).
		Int("step", step).
		Stringer("state", failedIn).
		Str("code", string(contractx.CodeOf(failure))).
		Dur("elapsed", elapsed).
		Msg("turn failed")
	if err := em.fail(terminalCtx, failure); err != nil {
		logger.Debug().Err(err).Msg("turn-error not delivered")
	}
	return failure
}

// consume reads one model response. Text is forwarded as it arrives until
// the first tool call fragment shows up; text after that is held back and
// delivered once the tool results are in.
func (t *Turn) consume(
	ctx context.Context,
	em *emitter,
	stream *schema.StreamReader[*schema.Message],
	step int,
	full *strings.Builder,
) (*response, error) {
	resp := newResponse()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return resp, nil
		}
		if err != nil {
			return nil, streamFailure(err)
		}
		if chunk == nil {
			continue
		}

		if len(chunk.ToolCalls) > 0 {
			resp.addFragments(chunk.ToolCalls)
		}
		resp.observeMeta(chunk.ResponseMeta)

		if chunk.Content == "" {
			continue
		}
		resp.text.WriteString(chunk.Content)
		if resp.hasToolCalls() {
			resp.trailing.WriteString(chunk.Content)
			continue
		}

		full.WriteString(chunk.Content)
		if err := em.emit(ctx, contractx.StreamEvent{
			Type:  contractx.EventTextDelta,
			Step:  step,
			Delta: chunk.Content,
		}); err != nil {
			return nil, err
		}
	}
}

// runTools executes the response's tool calls in order and appends the
// assistant call message and one tool message per call to history.
func (t *Turn) runTools(
	ctx context.Context,
	em *emitter,
	step int,
	resp *response,
	history []*schema.Message,
) ([]*schema.Message, error) {
	calls := resp.toolCalls(t.orch.newID)
	history = append(history, &schema.Message{
		Role:      schema.Assistant,
		Content:   resp.text.String(),
		ToolCalls: calls,
	})

	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return history, err
		}

		if err := em.emit(ctx, contractx.StreamEvent{
			Type: contractx.EventToolCallStarted,
			Step: step,
			ToolCall: &contractx.ToolCallInfo{
				CallID: call.ID,
				Tool:   call.Function.Name,
				Input:  call.Function.Arguments,
			},
		}); err != nil {
			return history, err
		}

		result, err := t.orch.tools.Execute(ctx, toolx.Call{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}, t.state.Bundle)
		if err != nil {
			return history, err
		}

		content, err := toolMessageContent(result)
		if err != nil {
			return history, err
		}
		history = append(history, &schema.Message{
			Role:       schema.Tool,
			Content:    content,
			ToolCallID: call.ID,
		})

		if err := em.emit(ctx, contractx.StreamEvent{
			Type:       contractx.EventToolCallResult,
			Step:       step,
			ToolResult: &result,
		}); err != nil {
			return history, err
		}
	}
	return history, nil
}

// toolMessageContent is the text the model reads back for a tool call.
func toolMessageContent(result contractx.ToolResult) (string, error) {
	var payload any = result.Output
	if result.Error != nil {
		payload = map[string]any{"error": result.Error}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s result: %v", contractx.ErrToolExecution, result.Tool, err)
	}
	return string(data), nil
}

func logUsage(logger zerolog.Logger, step int, resp *response) {
	ev := logger.Debug().
		Int("step", step).
		Int("tool_calls", len(resp.calls)).
		Str("finish_reason", resp.finish)
	if resp.usage != nil {
		ev = ev.
			Int("prompt_tokens", resp.usage.PromptTokens).
			Int("completion_tokens", resp.usage.CompletionTokens).
			Int("total_tokens", resp.usage.TotalTokens)
	}
	ev.Msg("model response finished")
}

func requestFailure(err error) error {
	if contractx.CodeOf(err) != contractx.CodeInternal {
		return err
	}
	return llmx.ClassifyRequestError(err)
}

func streamFailure(err error) error {
	if contractx.CodeOf(err) != contractx.CodeInternal {
		return err
	}
	return llmx.ClassifyStreamError(err)
}

// classifyTurnError gives context errors their taxonomy meaning. A turn
// whose context is done failed because of that, whatever error surfaced.
func classifyTurnError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, contractx.ErrTurnTimeout) || errors.Is(err, contractx.ErrCanceled) {
		return err
	}

	cause := ctx.Err()
	if cause == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		cause = err
	}
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", contractx.ErrTurnTimeout, err)
	case errors.Is(cause, context.Canceled):
		return fmt.Errorf("%w: %v", contractx.ErrCanceled, err)
	}
	return err
}
