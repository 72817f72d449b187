package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "twin.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	fixture, err := DemoFixture()
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, fixture))
	return s
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Driver: "postgres", DSN: "postgres://localhost/twin"}.Validate())
	assert.True(t, errors.Is(Config{Driver: "mysql", DSN: "x"}.Validate(), contractx.ErrConfig))
	assert.True(t, errors.Is(Config{Driver: "sqlite"}.Validate(), contractx.ErrConfig))
}

func TestMigrate_Idempotent(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestLoadBusiness_ByIDAndSlug(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	byID, err := s.LoadBusiness(ctx, "biz_coastal_bites")
	require.NoError(t, err)
	bySlug, err := s.LoadBusiness(ctx, "coastal-bites")
	require.NoError(t, err)

	assert.Equal(t, byID, bySlug)
	assert.Equal(t, "Coastal Bites", byID.Name)
	assert.Equal(t, "Port Willow", byID.City)
}

func TestLoadBusiness_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.LoadBusiness(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contractx.ErrNotFound))
}

func TestLoadPersona(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	persona, err := s.LoadPersona(ctx, "biz_coastal_bites")
	require.NoError(t, err)
	require.NotNil(t, persona)
	assert.Equal(t, "Marina from Coastal Bites", persona.DisplayName)

	none, err := s.LoadPersona(ctx, "biz_northside_books")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListProducts_Ordered(t *testing.T) {
	s := testStore(t)

	products, err := s.ListProducts(context.Background(), "biz_coastal_bites")
	require.NoError(t, err)
	require.Len(t, products, 4)

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Fish Tacos", "Grilled Snapper", "Clam Chowder", "Lemon Tart"}, names)
	assert.Equal(t, "14.50 USD", products[0].Price())
	assert.False(t, products[3].Available)
}

func TestListActiveOffers_Window(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	offers, err := s.ListActiveOffers(ctx, "biz_coastal_bites", now)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "Weekday lunch special", offers[0].Title)
	assert.Equal(t, "20% off", offers[0].DiscountLabel())

	winter := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	offers, err = s.ListActiveOffers(ctx, "biz_coastal_bites", winter)
	require.NoError(t, err)
	assert.Len(t, offers, 2)

	before := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	offers, err = s.ListActiveOffers(ctx, "biz_coastal_bites", before)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestOfferActiveAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	row := offerRow{Active: true, StartsAt: &start, EndsAt: &end}

	assert.True(t, row.activeAt(start))
	assert.False(t, row.activeAt(end))
	assert.False(t, row.activeAt(start.Add(-time.Second)))

	row.Active = false
	assert.False(t, row.activeAt(start.Add(time.Hour)))
}

func TestSeed_ReplacesBusiness(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fixture, err := ParseFixture(strings.NewReader(`
businesses:
  - id: biz_coastal_bites
    slug: coastal-bites
    name: Coastal Bites Harbour
    products:
      - name: Oysters
        price_cents: 1800
`))
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, fixture))

	profile, err := s.LoadBusiness(ctx, "coastal-bites")
	require.NoError(t, err)
	assert.Equal(t, "Coastal Bites Harbour", profile.Name)

	products, err := s.ListProducts(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "USD", products[0].Currency)
	assert.True(t, products[0].Available)
	assert.NotEmpty(t, products[0].ID)

	persona, err := s.LoadPersona(ctx, profile.ID)
	require.NoError(t, err)
	assert.Nil(t, persona)
}

func TestParseFixture_RejectsUnknownFields(t *testing.T) {
	_, err := ParseFixture(strings.NewReader("businesses:\n  - slug: a\n    name: A\n    colour: red\n"))
	require.Error(t, err)

	_, err = ParseFixture(strings.NewReader("businesses:\n  - name: A\n"))
	require.Error(t, err)
}

func TestReadsDoNotMutate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	count := func() int {
		n, err := s.DB().NewSelect().Model((*productRow)(nil)).Count(ctx)
		require.NoError(t, err)
		return n
	}

	before := count()
	for i := 0; i < 3; i++ {
		_, err := s.ListProducts(ctx, "biz_coastal_bites")
		require.NoError(t, err)
		_, err = s.ListActiveOffers(ctx, "biz_coastal_bites", time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, before, count())
}
