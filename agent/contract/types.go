package contract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// InboundMessage is one role-tagged message of a chat request.
type InboundMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the inbound request for one conversation turn.
type TurnRequest struct {
	BusinessID string           `json:"business_id"`
	Messages   []InboundMessage `json:"messages"`
}

// BusinessProfile holds the public facts of a business. ID never reaches
// the prompt.
type BusinessProfile struct {
	ID           string `json:"-"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
}

type Persona struct {
	DisplayName string `json:"display_name"`
	Tone        string `json:"tone,omitempty"`
	Greeting    string `json:"greeting,omitempty"`
	Guidelines  string `json:"guidelines,omitempty"`
	Language    string `json:"language,omitempty"`
}

type Product struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Available   bool   `json:"available"`
}

// Price renders the product price as "12.50 USD".
func (p Product) Price() string {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%d.%02d %s", p.PriceCents/100, p.PriceCents%100, currency)
}

type Offer struct {
	ID              string     `json:"-"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DiscountPercent float64    `json:"discount_percent,omitempty"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
}

// DiscountLabel renders the discount as "20% off", or "" when the offer
// carries no percentage.
func (o Offer) DiscountLabel() string {
	if o.DiscountPercent <= 0 {
		return ""
	}
	rounded := math.Round(o.DiscountPercent*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + "% off"
}

// ContextBundle is the frozen snapshot of business facts grounding one
// turn. It is never mutated after assembly.
type ContextBundle struct {
	BusinessID   string          `json:"business_id"`
	Profile      BusinessProfile `json:"profile"`
	Persona      Persona         `json:"persona"`
	Products     []Product       `json:"products"`
	ActiveOffers []Offer         `json:"active_offers"`
	AssembledAt  time.Time       `json:"assembled_at"`
}

// ToolError is the error payload of a failed tool invocation.
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToolResult is the outcome of one tool invocation. Exactly one of
// Output and Error is set.
type ToolResult struct {
	CallID string         `json:"call_id"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input,omitempty"`
	Output any            `json:"output,omitempty"`
	Error  *ToolError     `json:"error,omitempty"`
}

type EventType string

const (
	EventTextDelta       EventType = "text-delta"
	EventToolCallStarted EventType = "tool-call-started"
	EventToolCallResult  EventType = "tool-call-result"
	EventTurnError       EventType = "turn-error"
	EventTurnComplete    EventType = "turn-complete"
)

// IsTerminal reports whether the event closes the stream.
func (t EventType) IsTerminal() bool {
	return t == EventTurnError || t == EventTurnComplete
}

type ToolCallInfo struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
	Input  string `json:"input,omitempty"`
}

type TurnError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// StreamEvent is one incremental unit of a turn delivered to the client.
// Seq is strictly increasing within a turn.
type StreamEvent struct {
	Type       EventType     `json:"type"`
	TurnID     string        `json:"turn_id"`
	Seq        int           `json:"seq"`
	Step       int           `json:"step,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	ToolCall   *ToolCallInfo `json:"tool_call,omitempty"`
	ToolResult *ToolResult   `json:"tool_result,omitempty"`
	Text       string        `json:"text,omitempty"`
	Error      *TurnError    `json:"error,omitempty"`
}
