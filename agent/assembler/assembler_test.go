package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type fakeReader struct {
	calls   int
	persona *contractx.Persona
	offers  []contractx.Offer
	failOn  string
}

func (f *fakeReader) LoadBusiness(_ context.Context, id string) (contractx.BusinessProfile, error) {
	f.calls++
	if id != "coastal-bites" && id != "biz_1" {
		return contractx.BusinessProfile{}, fmt.Errorf("%w: business %q", contractx.ErrNotFound, id)
	}
	return contractx.BusinessProfile{ID: "biz_1", Slug: "coastal-bites", Name: "Coastal Bites"}, nil
}

func (f *fakeReader) LoadPersona(context.Context, string) (*contractx.Persona, error) {
	if f.failOn == "persona" {
		return nil, errors.New("db down")
	}
	return f.persona, nil
}

func (f *fakeReader) ListProducts(context.Context, string) ([]contractx.Product, error) {
	return []contractx.Product{{ID: "p1", Name: "Fish Tacos", PriceCents: 1450, Currency: "USD", Available: true}}, nil
}

func (f *fakeReader) ListActiveOffers(_ context.Context, businessID string, _ time.Time) ([]contractx.Offer, error) {
	if businessID != "biz_1" {
		return nil, fmt.Errorf("unexpected business id %q", businessID)
	}
	return f.offers, nil
}

type memoryCache struct {
	items  map[string]*contractx.ContextBundle
	getErr error
	puts   int
}

func (m *memoryCache) Get(_ context.Context, ref string) (*contractx.ContextBundle, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.items[ref], nil
}

func (m *memoryCache) Put(_ context.Context, ref string, b *contractx.ContextBundle, _ time.Duration) error {
	m.puts++
	m.items[ref] = b
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAssembleBuildsBundle(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{offers: []contractx.Offer{{Title: "Lunch", DiscountPercent: 20}}}
	a := New(reader, WithClock(fixedClock(now)))

	bundle, err := a.Assemble(context.Background(), "coastal-bites")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if bundle.BusinessID != "biz_1" {
		t.Fatalf("BusinessID = %q, want canonical id", bundle.BusinessID)
	}
	if !bundle.AssembledAt.Equal(now) {
		t.Fatalf("AssembledAt = %v", bundle.AssembledAt)
	}
	if len(bundle.Products) != 1 || len(bundle.ActiveOffers) != 1 {
		t.Fatalf("bundle = %+v", bundle)
	}
}

func TestAssembleNotFound(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeReader{}).Assemble(context.Background(), "nope")
	if !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Assemble() error = %v, want ErrNotFound", err)
	}
}

func TestAssembleEmptyRef(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeReader{}).Assemble(context.Background(), "  ")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Assemble() error = %v, want ErrValidation", err)
	}
}

func TestAssembleDefaultsPersona(t *testing.T) {
	t.Parallel()

	bundle, err := New(&fakeReader{}).Assemble(context.Background(), "coastal-bites")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if bundle.Persona.DisplayName != "Coastal Bites" {
		t.Fatalf("DisplayName = %q", bundle.Persona.DisplayName)
	}
	if bundle.Persona.Tone == "" || bundle.Persona.Greeting == "" {
		t.Fatalf("persona not defaulted: %+v", bundle.Persona)
	}
	if bundle.ActiveOffers == nil {
		t.Fatal("ActiveOffers should be empty, not nil")
	}
}

func TestAssembleKeepsConfiguredPersona(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{persona: &contractx.Persona{DisplayName: "Marina", Tone: "upbeat"}}
	bundle, err := New(reader).Assemble(context.Background(), "coastal-bites")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if bundle.Persona.DisplayName != "Marina" || bundle.Persona.Tone != "upbeat" {
		t.Fatalf("persona = %+v", bundle.Persona)
	}
}

func TestAssembleWrapsReaderErrors(t *testing.T) {
	t.Parallel()

	_, err := New(&fakeReader{failOn: "persona"}).Assemble(context.Background(), "coastal-bites")
	if err == nil || errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("Assemble() error = %v", err)
	}
}

func TestAssembleServesFreshCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	reader := &fakeReader{}
	cache := &memoryCache{items: map[string]*contractx.ContextBundle{}}
	a := New(reader, WithCache(cache, 30*time.Second), WithClock(func() time.Time { return clock }))

	if _, err := a.Assemble(context.Background(), "coastal-bites"); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if _, err := a.Assemble(context.Background(), "coastal-bites"); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if reader.calls != 1 || cache.puts != 1 {
		t.Fatalf("reader calls = %d, puts = %d; want 1 and 1", reader.calls, cache.puts)
	}

	clock = now.Add(time.Minute)
	if _, err := a.Assemble(context.Background(), "coastal-bites"); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("stale bundle served; reader calls = %d", reader.calls)
	}
}

func TestAssembleDegradesOnCacheFailure(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	cache := &memoryCache{items: map[string]*contractx.ContextBundle{}, getErr: errors.New("redis down")}
	bundle, err := New(reader, WithCache(cache, time.Minute)).Assemble(context.Background(), "coastal-bites")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if bundle == nil || reader.calls != 1 {
		t.Fatalf("expected direct read, calls = %d", reader.calls)
	}
}
