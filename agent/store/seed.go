package store

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

type Fixture struct {
	Businesses []BusinessFixture `yaml:"businesses"`
}

type BusinessFixture struct {
	ID           string           `yaml:"id"`
	Slug         string           `yaml:"slug"`
	Name         string           `yaml:"name"`
	Category     string           `yaml:"category"`
	Description  string           `yaml:"description"`
	Address      string           `yaml:"address"`
	City         string           `yaml:"city"`
	Region       string           `yaml:"region"`
	Phone        string           `yaml:"phone"`
	Website      string           `yaml:"website"`
	OpeningHours string           `yaml:"opening_hours"`
	Persona      *PersonaFixture  `yaml:"persona"`
	Products     []ProductFixture `yaml:"products"`
	Offers       []OfferFixture   `yaml:"offers"`
}

type PersonaFixture struct {
	DisplayName string `yaml:"display_name"`
	Tone        string `yaml:"tone"`
	Greeting    string `yaml:"greeting"`
	Guidelines  string `yaml:"guidelines"`
	Language    string `yaml:"language"`
}

type ProductFixture struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	PriceCents  int64  `yaml:"price_cents"`
	Currency    string `yaml:"currency"`
	Available   *bool  `yaml:"available"`
}

type OfferFixture struct {
	ID              string     `yaml:"id"`
	Title           string     `yaml:"title"`
	Description     string     `yaml:"description"`
	DiscountPercent float64    `yaml:"discount_percent"`
	StartsAt        *time.Time `yaml:"starts_at"`
	EndsAt          *time.Time `yaml:"ends_at"`
	Active          *bool      `yaml:"active"`
}

// DemoFixture is the bundled sample catalog used by `seed` without --file.
func DemoFixture() (Fixture, error) {
	return ParseFixture(bytes.NewReader(demoFixture))
}

func ParseFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	for i, b := range f.Businesses {
		if strings.TrimSpace(b.Slug) == "" || strings.TrimSpace(b.Name) == "" {
			return Fixture{}, fmt.Errorf("fixture business %d: slug and name are required", i)
		}
	}
	return f, nil
}

func ParseFixtureFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer f.Close()
	return ParseFixture(f)
}

// Seed replaces every business in the fixture, together with its persona,
// products and offers, in a single transaction.
func (s *Store) Seed(ctx context.Context, fixture Fixture) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, b := range fixture.Businesses {
			if err := seedBusiness(ctx, tx, b); err != nil {
				return fmt.Errorf("seed %s: %w", b.Slug, err)
			}
			s.logger.Info().
				Str("business", b.Slug).
				Int("products", len(b.Products)).
				Int("offers", len(b.Offers)).
				Msg("business seeded")
		}
		return nil
	})
}

func seedBusiness(ctx context.Context, tx bun.Tx, b BusinessFixture) error {
	id := strings.TrimSpace(b.ID)
	if id == "" {
		id = uuid.NewString()
	}

	var existing []businessRow
	if err := tx.NewSelect().Model(&existing).Where("id = ?", id).WhereOr("slug = ?", b.Slug).Scan(ctx); err != nil {
		return err
	}
	for _, old := range existing {
		if err := deleteBusiness(ctx, tx, old.ID); err != nil {
			return err
		}
	}

	row := &businessRow{
		ID:           id,
		Slug:         b.Slug,
		Name:         b.Name,
		Category:     b.Category,
		Description:  b.Description,
		Address:      b.Address,
		City:         b.City,
		Region:       b.Region,
		Phone:        b.Phone,
		Website:      b.Website,
		OpeningHours: b.OpeningHours,
	}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert business: %w", err)
	}

	if p := b.Persona; p != nil {
		persona := &personaRow{
			BusinessID:  id,
			DisplayName: p.DisplayName,
			Tone:        p.Tone,
			Greeting:    p.Greeting,
			Guidelines:  p.Guidelines,
			Language:    p.Language,
		}
		if _, err := tx.NewInsert().Model(persona).Exec(ctx); err != nil {
			return fmt.Errorf("insert persona: %w", err)
		}
	}

	if len(b.Products) > 0 {
		products := make([]productRow, 0, len(b.Products))
		for i, p := range b.Products {
			products = append(products, productRow{
				ID:          orNewID(p.ID),
				BusinessID:  id,
				Name:        p.Name,
				Description: p.Description,
				Category:    p.Category,
				PriceCents:  p.PriceCents,
				Currency:    orDefault(p.Currency, "USD"),
				Available:   boolOr(p.Available, true),
				SortOrder:   i,
			})
		}
		if _, err := tx.NewInsert().Model(&products).Exec(ctx); err != nil {
			return fmt.Errorf("insert products: %w", err)
		}
	}

	if len(b.Offers) > 0 {
		offers := make([]offerRow, 0, len(b.Offers))
		for _, o := range b.Offers {
			offers = append(offers, offerRow{
				ID:              orNewID(o.ID),
				BusinessID:      id,
				Title:           o.Title,
				Description:     o.Description,
				DiscountPercent: o.DiscountPercent,
				StartsAt:        o.StartsAt,
				EndsAt:          o.EndsAt,
				Active:          boolOr(o.Active, true),
			})
		}
		if _, err := tx.NewInsert().Model(&offers).Exec(ctx); err != nil {
			return fmt.Errorf("insert offers: %w", err)
		}
	}

	return nil
}

func deleteBusiness(ctx context.Context, tx bun.Tx, id string) error {
	for _, m := range []any{(*offerRow)(nil), (*productRow)(nil), (*personaRow)(nil)} {
		if _, err := tx.NewDelete().Model(m).Where("business_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete %T: %w", m, err)
		}
	}
	if _, err := tx.NewDelete().Model((*businessRow)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	return nil
}

func orNewID(id string) string {
	if v := strings.TrimSpace(id); v != "" {
		return v
	}
	return uuid.NewString()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
