package structured

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type fakeChatModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastUser string
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, m := range input {
		if m.Role == schema.User {
			f.lastUser = m.Content
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

const validCopy = `{"headline":"Fresh fish by the harbour","body":"Grilled fish tacos and snapper straight from the boats, served daily.","call_to_action":"Book a table","tone":"friendly","hashtags":["seafood","harbour"]}`

func newTestGenerator(t *testing.T, model *fakeChatModel) *Generator {
	t.Helper()
	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	g, err := NewGenerator(context.Background(), model, "You write copy.", catalog)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestGenerateValidObject(t *testing.T) {
	t.Parallel()

	model := &fakeChatModel{reply: validCopy}
	g := newTestGenerator(t, model)

	got, err := g.Generate(context.Background(), SchemaMarketingCopy, "Write copy for Coastal Bites.")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got["headline"] != "Fresh fish by the harbour" {
		t.Fatalf("headline = %v", got["headline"])
	}
	if !strings.Contains(model.lastUser, `"call_to_action"`) || !strings.Contains(model.lastUser, "Write copy for Coastal Bites.") {
		t.Fatalf("prompt does not carry the request and schema:\n%s", model.lastUser)
	}

	var typed MarketingCopy
	if err := Decode(got, &typed); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if typed.CallToAction != "Book a table" || len(typed.Hashtags) != 2 {
		t.Fatalf("typed = %+v", typed)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, &fakeChatModel{reply: validCopy})
	first, err := g.Generate(context.Background(), SchemaMarketingCopy, "brief")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := g.Generate(context.Background(), SchemaMarketingCopy, "brief")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first["body"] != second["body"] || first["tone"] != second["tone"] {
		t.Fatalf("results differ: %v vs %v", first, second)
	}
}

func TestGenerateRejectsInvalidResponses(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":         "Here is your copy: Fresh fish!",
		"missing field":    `{"headline":"Fresh fish by the harbour","body":"Grilled fish tacos and snapper, served daily.","tone":"friendly"}`,
		"wrong type":       `{"headline":42,"body":"Grilled fish tacos and snapper, served daily.","call_to_action":"Book","tone":"friendly"}`,
		"enum violation":   `{"headline":"Fresh fish by the harbour","body":"Grilled fish tacos and snapper, served daily.","call_to_action":"Book","tone":"sarcastic"}`,
		"too long":         `{"headline":"` + strings.Repeat("x", 81) + `","body":"Grilled fish tacos and snapper, served daily.","call_to_action":"Book","tone":"friendly"}`,
		"extra field":      `{"headline":"Fresh fish by the harbour","body":"Grilled fish tacos and snapper, served daily.","call_to_action":"Book","tone":"friendly","price":"cheap"}`,
		"too many items":   `{"headline":"Fresh fish by the harbour","body":"Grilled fish tacos and snapper, served daily.","call_to_action":"Book","tone":"friendly","hashtags":["aa","bb","cc","dd","ee","ff"]}`,
		"array not object": `[1,2,3]`,
		"null":             `null`,
	}
	for name, reply := range cases {
		name, reply := name, reply
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := newTestGenerator(t, &fakeChatModel{reply: reply})
			got, err := g.Generate(context.Background(), SchemaMarketingCopy, "brief")
			if !errors.Is(err, contractx.ErrSchemaValidation) {
				t.Fatalf("Generate() error = %v, want ErrSchemaValidation", err)
			}
			if got != nil {
				t.Fatalf("Generate() returned partial object %v", got)
			}
		})
	}
}

func TestGenerateMapsProviderErrors(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, &fakeChatModel{err: errors.New("error, status code: 401, message: invalid key")})
	_, err := g.Generate(context.Background(), SchemaMarketingCopy, "brief")
	if !errors.Is(err, contractx.ErrAuthRejected) {
		t.Fatalf("Generate() error = %v, want ErrAuthRejected", err)
	}
}

func TestGenerateUnknownSchema(t *testing.T) {
	t.Parallel()

	model := &fakeChatModel{reply: validCopy}
	g := newTestGenerator(t, model)
	if _, err := g.Generate(context.Background(), "poem", "brief"); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Generate() error = %v, want ErrValidation", err)
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times for unknown schema", model.calls)
	}
}

func TestCatalogCompilesAllSchemas(t *testing.T) {
	t.Parallel()

	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	names := catalog.Names()
	if len(names) != 2 || names[0] != SchemaBusinessSummary || names[1] != SchemaMarketingCopy {
		t.Fatalf("Names() = %v", names)
	}

	s, compiled, err := catalog.Lookup(SchemaBusinessSummary)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(compiled.Required) != 3 {
		t.Fatalf("required = %v, want summary/highlights/price_level", compiled.Required)
	}
	ok := map[string]any{
		"summary":     "A friendly seafood kitchen on the harbour.",
		"highlights":  []any{"Fresh fish", "Harbour views"},
		"price_level": "moderate",
	}
	if err := s.Validate(compiled, ok); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestParseCatalogRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := ParseCatalog([]byte("bad:\n  fields:\n    x:\n      type: date\n"))
	if !errors.Is(err, contractx.ErrConfig) {
		t.Fatalf("ParseCatalog() error = %v, want ErrConfig", err)
	}
}

func TestBusinessBriefOmitsIDs(t *testing.T) {
	t.Parallel()

	brief := BusinessBrief(&contractx.ContextBundle{
		BusinessID: "biz_1",
		Profile:    contractx.BusinessProfile{ID: "biz_1", Name: "Coastal Bites", City: "Port Willow"},
		Products:   []contractx.Product{{ID: "prod_1", Name: "Fish Tacos", PriceCents: 1450, Currency: "USD"}},
		ActiveOffers: []contractx.Offer{
			{ID: "offer_1", Title: "Lunch", DiscountPercent: 20},
		},
	}, "Write a summer promo.")

	for _, want := range []string{"Business: Coastal Bites", "- Fish Tacos (14.50 USD)", "- Lunch (20% off)", "Request: Write a summer promo."} {
		if !strings.Contains(brief, want) {
			t.Fatalf("brief missing %q:\n%s", want, brief)
		}
	}
	for _, id := range []string{"biz_1", "prod_1", "offer_1"} {
		if strings.Contains(brief, id) {
			t.Fatalf("brief leaks %q", id)
		}
	}
}
