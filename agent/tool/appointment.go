package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Digital-Twin/pkg/qstash"
)

type appointmentInput struct {
	CustomerName  string `json:"customer_name"`
	Contact       string `json:"contact"`
	PreferredTime string `json:"preferred_time"`
	Notes         string `json:"notes"`
}

type AppointmentOutput struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

func appointmentDeclaration(submitter contractx.WorkflowSubmitter) Declaration {
	input := openapi3.NewObjectSchema().
		WithProperty("customer_name", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(100)).
		WithProperty("contact", openapi3.NewStringSchema().WithMinLength(3).WithMaxLength(200)).
		WithProperty("preferred_time", openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(100)).
		WithProperty("notes", openapi3.NewStringSchema().WithMaxLength(1000)).
		WithoutAdditionalProperties()
	input.Required = []string{"customer_name", "contact", "preferred_time"}
	input.Properties["contact"].Value.Description = "Phone number or email address of the customer."
	input.Properties["preferred_time"].Value.Description = "Preferred date and time as the customer stated it."

	return Declaration{
		Name:        ToolRequestAppointment,
		Description: "Send an appointment or reservation request to the business. The business confirms it later; this does not book anything.",
		Input:       input,
		Handler: func(ctx context.Context, raw map[string]any, bundle *contractx.ContextBundle) (any, error) {
			if bundle == nil {
				return nil, fmt.Errorf("%w: no business context", contractx.ErrToolExecution)
			}
			var in appointmentInput
			if err := decodeInput(raw, &in); err != nil {
				return nil, err
			}

			ref, err := submitter.SubmitAppointment(ctx, contractx.AppointmentRequest{
				BusinessID:    bundle.BusinessID,
				BusinessName:  bundle.Profile.Name,
				CustomerName:  strings.TrimSpace(in.CustomerName),
				Contact:       strings.TrimSpace(in.Contact),
				PreferredTime: strings.TrimSpace(in.PreferredTime),
				Notes:         strings.TrimSpace(in.Notes),
			})
			if err != nil {
				return nil, fmt.Errorf("%w: submit appointment: %v", contractx.ErrToolExecution, err)
			}
			return AppointmentOutput{
				Status:    "requested",
				Reference: ref,
				Message:   "The request was sent to the business. It is not confirmed yet.",
			}, nil
		},
	}
}

// QStashSubmitter publishes appointment requests to a QStash destination
// that runs the booking workflow.
type QStashSubmitter struct {
	client      *qstashx.Client
	destination string
}

var _ contractx.WorkflowSubmitter = (*QStashSubmitter)(nil)

func NewQStashSubmitter(client *qstashx.Client, destination string) (*QStashSubmitter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qstash client is nil", contractx.ErrConfig)
	}
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("%w: appointment destination is required", contractx.ErrConfig)
	}
	return &QStashSubmitter{client: client, destination: strings.TrimSpace(destination)}, nil
}

func (s *QStashSubmitter) SubmitAppointment(ctx context.Context, req contractx.AppointmentRequest) (string, error) {
	return s.client.PublishJSON(ctx, s.destination, req, map[string]string{
		"X-Business-Id": req.BusinessID,
	})
}
