package contract

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// BusinessReader is the read-only persistence collaborator.
type BusinessReader interface {
	LoadBusiness(ctx context.Context, businessID string) (BusinessProfile, error)
	LoadPersona(ctx context.Context, businessID string) (*Persona, error)
	ListProducts(ctx context.Context, businessID string) ([]Product, error)
	ListActiveOffers(ctx context.Context, businessID string, now time.Time) ([]Offer, error)
}

// BundleCache keeps assembled bundles for a short freshness window, keyed
// by the business reference the client used. Get returns (nil, nil) on a
// miss.
type BundleCache interface {
	Get(ctx context.Context, businessRef string) (*ContextBundle, error)
	Put(ctx context.Context, businessRef string, bundle *ContextBundle, ttl time.Duration) error
}

// ToolSpec is the provider-facing declaration of a tool.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ProviderRequest is one model round trip of a turn.
type ProviderRequest struct {
	Model    string
	System   string
	Messages []*schema.Message
	Tools    []ToolSpec
}

// Provider streams one model response. Text arrives in Message.Content,
// tool-call fragments in Message.ToolCalls keyed by Index.
type Provider interface {
	Stream(ctx context.Context, req ProviderRequest) (*schema.StreamReader[*schema.Message], error)
}

// EventSink receives the ordered events of one turn.
type EventSink interface {
	Emit(ctx context.Context, event StreamEvent) error
}

// AppointmentRequest is what the appointment tool hands to the workflow
// engine.
type AppointmentRequest struct {
	BusinessID    string `json:"business_id"`
	BusinessName  string `json:"business_name"`
	CustomerName  string `json:"customer_name"`
	Contact       string `json:"contact"`
	PreferredTime string `json:"preferred_time"`
	Notes         string `json:"notes,omitempty"`
}

// WorkflowSubmitter enqueues a downstream workflow and returns an opaque
// reference. It does not perform the booking.
type WorkflowSubmitter interface {
	SubmitAppointment(ctx context.Context, req AppointmentRequest) (string, error)
}
