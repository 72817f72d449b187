package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
	openrouterx "github.com/tanpawarit/Chative-Digital-Twin/pkg/openrouter"
)

const streamBuffer = 16

// StreamProvider streams chat completions from an OpenAI-compatible
// gateway into eino message chunks.
type StreamProvider struct {
	client      *openaisdk.Client
	model       string
	maxTokens   int
	temperature float32
	logger      zerolog.Logger
}

var _ contractx.Provider = (*StreamProvider)(nil)

func NewStreamProvider(cfg Config) (*StreamProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	orCfg := cfg.OpenRouterFor(PurposeTurn)
	client := openrouterx.NewClient(orCfg)
	if client == nil {
		return nil, fmt.Errorf("%w: openrouter client unavailable", contractx.ErrConfig)
	}
	return &StreamProvider{
		client:      client,
		model:       orCfg.Model,
		maxTokens:   cfg.MaxCompletionToken,
		temperature: orCfg.Temperature,
		logger:      logx.Component("provider"),
	}, nil
}

func (p *StreamProvider) Model() string {
	return p.model
}

// Stream opens a streaming completion. Errors that happen before the first
// chunk (credentials, rate limits) are returned directly; later failures
// arrive through the reader.
func (p *StreamProvider) Stream(ctx context.Context, req contractx.ProviderRequest) (*schema.StreamReader[*schema.Message], error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, ClassifyRequestError(err)
		}
		return schema.StreamReaderFromArray[*schema.Message](nil), nil
	}
	first := stream.Current()

	sr, sw := schema.Pipe[*schema.Message](streamBuffer)
	go func() {
		defer sw.Close()
		defer stream.Close()

		if msg := chunkToMessage(first); msg != nil {
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
		for stream.Next() {
			msg := chunkToMessage(stream.Current())
			if msg == nil {
				continue
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
		if err := stream.Err(); err != nil {
			p.logger.Debug().Err(err).Msg("provider stream ended with error")
			sw.Send(nil, ClassifyStreamError(err))
		}
	}()

	return sr, nil
}

func (p *StreamProvider) buildParams(req contractx.ProviderRequest) (openaisdk.ChatCompletionNewParams, error) {
	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = p.model
	}

	messages, err := toParams(req.System, req.Messages)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: messages,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: openaisdk.Bool(true),
		},
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(p.maxTokens))
	}
	params.Temperature = openaisdk.Float(float64(p.temperature))

	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openaisdk.String(spec.Description),
				Parameters:  openaisdk.FunctionParameters(spec.Parameters),
			},
		})
	}
	return params, nil
}

func toParams(system string, history []*schema.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openaisdk.SystemMessage(system))
	}

	for i, m := range history {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case schema.User:
			out = append(out, openaisdk.UserMessage(m.Content))
		case schema.Assistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openaisdk.AssistantMessage(m.Content))
				continue
			}
			asst := openaisdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openaisdk.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case schema.Tool:
			out = append(out, openaisdk.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("%w: message %d has unsupported role %q", contractx.ErrValidation, i, m.Role)
		}
	}
	return out, nil
}

func chunkToMessage(chunk openaisdk.ChatCompletionChunk) *schema.Message {
	msg := &schema.Message{Role: schema.Assistant}

	if chunk.Usage.TotalTokens > 0 {
		msg.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			},
		}
	}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		msg.Content = choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			idx := int(tc.Index)
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				Index: &idx,
				ID:    tc.ID,
				Type:  "function",
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		if reason := string(choice.FinishReason); reason != "" {
			if msg.ResponseMeta == nil {
				msg.ResponseMeta = &schema.ResponseMeta{}
			}
			msg.ResponseMeta.FinishReason = reason
		}
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 && msg.ResponseMeta == nil {
		return nil
	}
	return msg
}
