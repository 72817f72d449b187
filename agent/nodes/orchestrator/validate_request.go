package orchestratornode

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const (
	DefaultMaxMessages   = 100
	DefaultMaxTextLength = 10000
)

type GraphInput struct {
	Request contractx.TurnRequest
}

// GraphState flows through the request pipeline. Everything a turn needs
// before its first provider call lives here.
type GraphState struct {
	BusinessRef string
	Now         time.Time

	Messages     []*schema.Message
	Bundle       *contractx.ContextBundle
	SystemPrompt string
}

// Limits bounds an inbound request. Zero values fall back to the defaults.
type Limits struct {
	MaxMessages   int
	MaxTextLength int
}

func (l Limits) withDefaults() Limits {
	if l.MaxMessages <= 0 {
		l.MaxMessages = DefaultMaxMessages
	}
	if l.MaxTextLength <= 0 {
		l.MaxTextLength = DefaultMaxTextLength
	}
	return l
}

// ValidateRequest checks the inbound request and converts its messages to
// model history. Only user and assistant roles are accepted and the last
// message must come from the user.
func ValidateRequest(in GraphInput, limits Limits, nowFn func() time.Time) (*GraphState, error) {
	limits = limits.withDefaults()

	businessRef := strings.TrimSpace(in.Request.BusinessID)
	if businessRef == "" {
		return nil, fmt.Errorf("%w: business id is empty", contractx.ErrValidation)
	}

	msgs := in.Request.Messages
	switch {
	case len(msgs) == 0:
		return nil, fmt.Errorf("%w: messages are empty", contractx.ErrValidation)
	case len(msgs) > limits.MaxMessages:
		return nil, fmt.Errorf("%w: %d messages exceed the limit of %d", contractx.ErrValidation, len(msgs), limits.MaxMessages)
	}

	history := make([]*schema.Message, 0, len(msgs))
	for i, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: message %d is empty", contractx.ErrValidation, i)
		}
		if n := utf8.RuneCountInString(m.Content); n > limits.MaxTextLength {
			return nil, fmt.Errorf("%w: message %d has %d characters, limit is %d", contractx.ErrValidation, i, n, limits.MaxTextLength)
		}

		switch contractx.Role(strings.ToLower(strings.TrimSpace(string(m.Role)))) {
		case contractx.RoleUser:
			history = append(history, schema.UserMessage(m.Content))
		case contractx.RoleAssistant:
			history = append(history, schema.AssistantMessage(m.Content, nil))
		default:
			// The system prompt is built from the business bundle only; a
			// client-sent system message could override the persona.
			return nil, fmt.Errorf("%w: message %d has unsupported role %q", contractx.ErrValidation, i, m.Role)
		}
	}

	if history[len(history)-1].Role != schema.User {
		return nil, fmt.Errorf("%w: last message must come from the user", contractx.ErrValidation)
	}

	return &GraphState{
		BusinessRef: businessRef,
		Now:         nowFn().UTC(),
		Messages:    history,
	}, nil
}
