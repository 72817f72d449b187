package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

var (
	//go:embed template/twin_system.txt
	twinSystemRaw string

	//go:embed template/copywriter.txt
	copywriterRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	TwinSystem string
	Copywriter string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		TwinSystem: strings.TrimSpace(twinSystemRaw),
		Copywriter: strings.TrimSpace(copywriterRaw),
	}
}

func (p PromptSet) Validate() error {
	if p.TwinSystem == "" {
		return fmt.Errorf("%w: twin system prompt", contractx.ErrPromptMissing)
	}
	if p.Copywriter == "" {
		return fmt.Errorf("%w: copywriter prompt", contractx.ErrPromptMissing)
	}
	return nil
}

type productView struct {
	Name        string
	Description string
	Category    string
	Price       string
	Available   bool
}

type offerView struct {
	Title       string
	Description string
	Discount    string
	ValidUntil  string
}

// SystemPromptBuilder renders the twin system prompt from a context bundle.
type SystemPromptBuilder struct {
	template *einoprompt.DefaultChatTemplate
}

func NewSystemPromptBuilder(set PromptSet) (*SystemPromptBuilder, error) {
	if strings.TrimSpace(set.TwinSystem) == "" {
		return nil, fmt.Errorf("%w: twin system prompt", contractx.ErrPromptMissing)
	}
	return &SystemPromptBuilder{
		template: einoprompt.FromMessages(schema.GoTemplate, schema.SystemMessage(set.TwinSystem)),
	}, nil
}

// Build renders the system prompt. Only display fields are passed to the
// template, so row ids never reach the model.
func (b *SystemPromptBuilder) Build(ctx context.Context, bundle *contractx.ContextBundle) (string, error) {
	if bundle == nil {
		return "", fmt.Errorf("%w: context bundle is nil", contractx.ErrValidation)
	}

	msgs, err := b.template.Format(ctx, templateVars(bundle))
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: system prompt rendered empty", contractx.ErrPromptMissing)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

func templateVars(bundle *contractx.ContextBundle) map[string]any {
	profile := bundle.Profile
	profile.ID = ""

	products := make([]productView, 0, len(bundle.Products))
	for _, p := range bundle.Products {
		products = append(products, productView{
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price(),
			Available:   p.Available,
		})
	}

	offers := make([]offerView, 0, len(bundle.ActiveOffers))
	for _, o := range bundle.ActiveOffers {
		view := offerView{
			Title:       o.Title,
			Description: o.Description,
			Discount:    o.DiscountLabel(),
		}
		if o.EndsAt != nil {
			view.ValidUntil = o.EndsAt.UTC().Format("2 January 2006")
		}
		offers = append(offers, view)
	}

	today := bundle.AssembledAt
	if today.IsZero() {
		today = time.Now()
	}

	return map[string]any{
		"business": profile,
		"persona":  bundle.Persona,
		"products": products,
		"offers":   offers,
		"today":    today.UTC().Format("Monday, 2 January 2006"),
	}
}
