package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

func coastalBundle() *contractx.ContextBundle {
	ends := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	return &contractx.ContextBundle{
		BusinessID: "biz_coastal_bites",
		Profile: contractx.BusinessProfile{
			ID:           "biz_coastal_bites",
			Slug:         "coastal-bites",
			Name:         "Coastal Bites",
			Category:     "Restaurant",
			City:         "Port Willow",
			OpeningHours: "Tue-Sun 11:30-22:00",
		},
		Persona: contractx.Persona{DisplayName: "Marina", Tone: "warm", Greeting: "Ahoy!", Guidelines: "Recommend the catch of the day."},
		Products: []contractx.Product{
			{ID: "prod_fish_tacos", Name: "Fish Tacos", PriceCents: 1450, Currency: "usd", Available: true},
			{ID: "prod_lemon_tart", Name: "Lemon Tart", PriceCents: 700, Currency: "USD", Available: false},
		},
		ActiveOffers: []contractx.Offer{
			{ID: "offer_weekday_lunch", Title: "Weekday lunch special", DiscountPercent: 20, EndsAt: &ends},
		},
		AssembledAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLoadPromptSet(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.ContainsAny(set.Copywriter, "{}") {
		t.Fatal("copywriter prompt must not contain braces; it is an FString template")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	builder, err := NewSystemPromptBuilder(LoadPromptSet())
	if err != nil {
		t.Fatalf("NewSystemPromptBuilder() error = %v", err)
	}

	got, err := builder.Build(context.Background(), coastalBundle())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, want := range []string{
		"You are Marina, the digital twin of Coastal Bites",
		"Fish Tacos: 14.50 USD",
		"Lemon Tart: 7.00 USD (currently unavailable)",
		"Weekday lunch special (20% off)",
		"Valid until 31 December 2025",
		"Recommend the catch of the day.",
		"Today is Sunday, 1 June 2025.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	for _, id := range []string{"biz_coastal_bites", "prod_fish_tacos", "prod_lemon_tart", "offer_weekday_lunch"} {
		if strings.Contains(got, id) {
			t.Fatalf("prompt leaks internal id %q", id)
		}
	}
	if strings.Contains(got, "<no value>") {
		t.Fatalf("prompt has unresolved template values:\n%s", got)
	}
}

func TestBuildSystemPromptWithoutOffers(t *testing.T) {
	t.Parallel()

	builder, err := NewSystemPromptBuilder(LoadPromptSet())
	if err != nil {
		t.Fatalf("NewSystemPromptBuilder() error = %v", err)
	}
	bundle := coastalBundle()
	bundle.ActiveOffers = nil
	bundle.Products = nil

	got, err := builder.Build(context.Background(), bundle)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(got, "There are no active offers right now.") || !strings.Contains(got, "No products are listed.") {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
}

func TestBuildSystemPromptNilBundle(t *testing.T) {
	t.Parallel()

	builder, err := NewSystemPromptBuilder(LoadPromptSet())
	if err != nil {
		t.Fatalf("NewSystemPromptBuilder() error = %v", err)
	}
	if _, err := builder.Build(context.Background(), nil); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Build(nil) error = %v, want ErrValidation", err)
	}
	if _, err := NewSystemPromptBuilder(PromptSet{}); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("NewSystemPromptBuilder(empty) error = %v", err)
	}
}
