// Package assembler loads every business fact a turn may cite into one
// immutable ContextBundle before the model is called.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
)

const defaultTone = "friendly, concise and helpful"

type Assembler struct {
	reader    contractx.BusinessReader
	cache     contractx.BundleCache
	freshness time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Assembler)

// WithCache serves bundles younger than freshness from c. A zero
// freshness disables caching.
func WithCache(c contractx.BundleCache, freshness time.Duration) Option {
	return func(a *Assembler) {
		a.cache = c
		a.freshness = freshness
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

func New(reader contractx.BusinessReader, opts ...Option) *Assembler {
	a := &Assembler{
		reader: reader,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logx.Component("assembler"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Assemble returns the context bundle for businessRef (id or slug). It
// fails with ErrNotFound when no business matches.
func (a *Assembler) Assemble(ctx context.Context, businessRef string) (*contractx.ContextBundle, error) {
	if a == nil || a.reader == nil {
		return nil, fmt.Errorf("%w: assembler has no business reader", contractx.ErrConfig)
	}
	ref := strings.TrimSpace(businessRef)
	if ref == "" {
		return nil, fmt.Errorf("%w: business id is required", contractx.ErrValidation)
	}

	if bundle := a.cached(ctx, ref); bundle != nil {
		return bundle, nil
	}

	now := a.now()
	profile, err := a.reader.LoadBusiness(ctx, ref)
	if err != nil {
		return nil, err
	}

	persona, err := a.reader.LoadPersona(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}
	products, err := a.reader.ListProducts(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}
	offers, err := a.reader.ListActiveOffers(ctx, profile.ID, now)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}

	bundle := &contractx.ContextBundle{
		BusinessID:   profile.ID,
		Profile:      profile,
		Persona:      resolvePersona(profile, persona),
		Products:     nonNil(products),
		ActiveOffers: nonNil(offers),
		AssembledAt:  now,
	}

	a.logger.Debug().
		Str("business_id", bundle.BusinessID).
		Int("products", len(bundle.Products)).
		Int("offers", len(bundle.ActiveOffers)).
		Msg("context assembled")

	if a.cache != nil && a.freshness > 0 {
		if err := a.cache.Put(ctx, ref, bundle, a.freshness); err != nil {
			a.logger.Warn().Err(err).Str("business", ref).Msg("bundle cache put failed")
		}
	}
	return bundle, nil
}

// cached returns a fresh cached bundle or nil. Cache failures fall back to
// direct reads.
func (a *Assembler) cached(ctx context.Context, ref string) *contractx.ContextBundle {
	if a.cache == nil || a.freshness <= 0 {
		return nil
	}
	bundle, err := a.cache.Get(ctx, ref)
	if err != nil {
		a.logger.Warn().Err(err).Str("business", ref).Msg("bundle cache get failed")
		return nil
	}
	if bundle == nil || a.now().Sub(bundle.AssembledAt) > a.freshness {
		return nil
	}
	return bundle
}

// resolvePersona fills a missing or partial persona from the profile.
func resolvePersona(profile contractx.BusinessProfile, persona *contractx.Persona) contractx.Persona {
	out := contractx.Persona{}
	if persona != nil {
		out = *persona
	}
	if strings.TrimSpace(out.DisplayName) == "" {
		out.DisplayName = profile.Name
	}
	if strings.TrimSpace(out.Tone) == "" {
		out.Tone = defaultTone
	}
	if strings.TrimSpace(out.Greeting) == "" {
		out.Greeting = fmt.Sprintf("Hi! Welcome to %s. How can I help you today?", profile.Name)
	}
	return out
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
