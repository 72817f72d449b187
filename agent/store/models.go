package store

import (
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type businessRow struct {
	bun.BaseModel `bun:"table:businesses,alias:b"`

	ID           string    `bun:"id,pk"`
	Slug         string    `bun:"slug,unique,notnull"`
	Name         string    `bun:"name,notnull"`
	Category     string    `bun:"category"`
	Description  string    `bun:"description"`
	Address      string    `bun:"address"`
	City         string    `bun:"city"`
	Region       string    `bun:"region"`
	Phone        string    `bun:"phone"`
	Website      string    `bun:"website"`
	OpeningHours string    `bun:"opening_hours"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r businessRow) toProfile() contractx.BusinessProfile {
	return contractx.BusinessProfile{
		ID:           r.ID,
		Slug:         r.Slug,
		Name:         r.Name,
		Category:     r.Category,
		Description:  r.Description,
		Address:      r.Address,
		City:         r.City,
		Region:       r.Region,
		Phone:        r.Phone,
		Website:      r.Website,
		OpeningHours: r.OpeningHours,
	}
}

type personaRow struct {
	bun.BaseModel `bun:"table:personas,alias:pe"`

	BusinessID  string `bun:"business_id,pk"`
	DisplayName string `bun:"display_name"`
	Tone        string `bun:"tone"`
	Greeting    string `bun:"greeting"`
	Guidelines  string `bun:"guidelines"`
	Language    string `bun:"language"`
}

func (r personaRow) toPersona() contractx.Persona {
	return contractx.Persona{
		DisplayName: r.DisplayName,
		Tone:        r.Tone,
		Greeting:    r.Greeting,
		Guidelines:  r.Guidelines,
		Language:    r.Language,
	}
}

type productRow struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID          string `bun:"id,pk"`
	BusinessID  string `bun:"business_id,notnull"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description"`
	Category    string `bun:"category"`
	PriceCents  int64  `bun:"price_cents,notnull"`
	Currency    string `bun:"currency,notnull"`
	Available   bool   `bun:"available,notnull"`
	SortOrder   int    `bun:"sort_order,notnull"`
}

func (r productRow) toProduct() contractx.Product {
	return contractx.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		PriceCents:  r.PriceCents,
		Currency:    r.Currency,
		Available:   r.Available,
	}
}

type offerRow struct {
	bun.BaseModel `bun:"table:offers,alias:o"`

	ID              string     `bun:"id,pk"`
	BusinessID      string     `bun:"business_id,notnull"`
	Title           string     `bun:"title,notnull"`
	Description     string     `bun:"description"`
	DiscountPercent float64    `bun:"discount_percent,notnull"`
	StartsAt        *time.Time `bun:"starts_at,nullzero"`
	EndsAt          *time.Time `bun:"ends_at,nullzero"`
	Active          bool       `bun:"active,notnull"`
}

// activeAt reports whether the offer is enabled and inside its validity
// window. Bounds are inclusive at the start, exclusive at the end.
func (r offerRow) activeAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && !now.Before(*r.EndsAt) {
		return false
	}
	return true
}

func (r offerRow) toOffer() contractx.Offer {
	return contractx.Offer{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		DiscountPercent: r.DiscountPercent,
		StartsAt:        r.StartsAt,
		EndsAt:          r.EndsAt,
	}
}

var models = []any{
	(*businessRow)(nil),
	(*personaRow)(nil),
	(*productRow)(nil),
	(*offerRow)(nil),
}
