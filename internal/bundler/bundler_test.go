package bundler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"fuelstack/internal/llm"
	"fuelstack/internal/menu"
	"fuelstack/internal/scraper"
	"fuelstack/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockTextGenerator struct {
	content string
	err     error
	calls   int
	prompts []string
}

func (m *MockTextGenerator) GenerateContent(_ context.Context, system, prompt string) (llm.ContentResponse, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   shared.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, Model: "mock"},
	}, nil
}

func TestGroupStation_FixedStations(t *testing.T) {
	gen := &MockTextGenerator{}
	b := New(gen)
	ctx := context.Background()

	tests := []struct {
		station string
		items   []string
		want    int
		style   string
	}{
		{"Grill", []string{"Burger"}, 1, menu.StyleBundle},
		{"Soup", []string{"Chili", "Bisque"}, 2, menu.StyleBundle},
		{"MBakery", []string{"Cookie", "Brownie", "Muffin"}, 3, menu.StyleDessert},
		{"Deli", []string{"Turkey", "Ham"}, 0, ""},
		{"Grill", nil, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.station, func(t *testing.T) {
			res, err := b.GroupStation(ctx, tt.station, tt.items)
			require.NoError(t, err)
			assert.Equal(t, tt.station, res.Menu.StationName)
			require.Len(t, res.Menu.Offerings, tt.want)
			for i, o := range res.Menu.Offerings {
				assert.Equal(t, []string{tt.items[i]}, o.Items)
				assert.Equal(t, tt.style, o.ServiceStyle)
			}
			assert.Empty(t, res.Meta.AgentName)
		})
	}
	assert.Zero(t, gen.calls, "fixed stations never reach the model")
}

func TestGroupStation_UsesModel(t *testing.T) {
	gen := &MockTextGenerator{content: "```json\n" + `{
		"station_name": "Kings Grill",
		"offerings": [
			{"name": "Burger Combo", "items": ["Burger", "Fries", "Milkshake"], "service_style": "bundle", "reasoning": "pairing"},
			{"name": "Side of Fries", "items": ["Fries"], "service_style": "self_serve", "reasoning": "component"},
			{"name": "Mystery", "items": ["Lobster"], "service_style": "bundle", "reasoning": "invented"},
			{"name": "Odd", "items": ["Fish"], "service_style": "buffet", "reasoning": "bad style"}
		]}` + "\n```"}

	res, err := New(gen).GroupStation(context.Background(), "Kings Grill", []string{"Burger", "Fish", "Fries"})
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompts[0], `Input: "Kings Grill" -> ["Burger","Fish","Fries"]`)

	require.Len(t, res.Menu.Offerings, 2)
	assert.Equal(t, []string{"Burger", "Fries"}, res.Menu.Offerings[0].Items, "unknown items are dropped")
	assert.Equal(t, "Side of Fries", res.Menu.Offerings[1].Name)

	assert.Equal(t, AgentName, res.Meta.AgentName)
	assert.Equal(t, 120, res.Meta.Usage.TotalTokens)
}

func TestGroupStation_Errors(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		gen := &MockTextGenerator{err: errors.New("quota")}
		_, err := New(gen).GroupStation(context.Background(), "Grill", []string{"A", "B"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota")
	})

	t.Run("bad json", func(t *testing.T) {
		gen := &MockTextGenerator{content: "not json"}
		_, err := New(gen).GroupStation(context.Background(), "Grill", []string{"A", "B"})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "failed to parse bundler response"))
	})
}

func TestCachedGrouper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "bundles.json")
	gen := &MockTextGenerator{content: `{"offerings": [{"name": "Plate", "items": ["A", "B"], "service_style": "bundle"}]}`}

	var hits, misses int
	hook := WithLookupHook(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})

	c, err := NewCachedGrouper(New(gen), path, hook)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.GroupStation(ctx, "Grill", []string{"A", "B"})
	require.NoError(t, err)
	second, err := c.GroupStation(ctx, "Grill", []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, first.Menu, second.Menu)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	_, err = c.GroupStation(ctx, "Grill", []string{"A", "C"})
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls, "a changed item list misses the cache")

	require.NoError(t, c.SaveCache())

	reloaded, err := NewCachedGrouper(New(gen), path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	_, err = reloaded.GroupStation(ctx, "Grill", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
}

func item(name string, cal, protein float64, traits, allergens []string) scraper.Item {
	return scraper.Item{
		Name:        name,
		Traits:      traits,
		Allergens:   allergens,
		PortionSize: "4 oz",
		Nutrition: map[string]scraper.Measurement{
			scraper.LabelCalories: {Value: cal},
			scraper.LabelProtein:  {Value: protein},
			scraper.LabelSodium:   {Value: 100},
		},
	}
}

func TestPrepare(t *testing.T) {
	raw := []scraper.Item{
		item("Pork Roast", 310.7, 38, []string{"Gluten Free", "Halal"}, []string{"soy"}),
		item("Rice", 200, 4, []string{"Vegan", "Gluten Free"}, []string{}),
		item("Corn", 90, 3, []string{"Vegan", "Gluten Free", "Spicy"}, []string{"corn"}),
	}
	offerings := []Offering{
		{Name: "Pork Roast Plate", Items: []string{"Pork Roast", "Rice"}, ServiceStyle: menu.StyleBundle},
		{Name: "Side of Rice", Items: []string{"Rice"}, ServiceStyle: menu.StyleSelfServe},
	}

	got := Prepare(Placement{Station: "Signature Maize", MealPeriod: "Lunch", DiningHallID: 7}, raw, offerings)
	require.Len(t, got, 4)

	plate := got[0]
	assert.Equal(t, menu.TierPrimary, plate.Tier)
	assert.Equal(t, []string{"Gluten Free"}, plate.Traits)
	assert.Equal(t, []string{"soy"}, plate.Allergens)
	assert.Equal(t, 510.0, plate.CaloriesKcal, "calories are truncated")
	assert.Equal(t, 42.0, plate.ProteinG)
	assert.Equal(t, 200.0, plate.SodiumMg)
	assert.Equal(t, "1 meal", plate.PortionSize)
	assert.Equal(t, "lunch", plate.MealPeriod)
	assert.Equal(t, int64(7), plate.DiningHallID)

	side := got[1]
	assert.Equal(t, menu.TierSecondary, side.Tier)
	assert.Equal(t, "4 oz", side.PortionSize)
	assert.Equal(t, []string{"Vegan", "Gluten Free"}, side.Traits)

	// Pork Roast only appears in a bundle, so it is also offered on its own.
	names := []string{got[2].Name, got[3].Name}
	assert.Equal(t, []string{"Pork Roast", "Corn"}, names)
	for _, c := range got[2:] {
		assert.Equal(t, menu.TierFallback, c.Tier)
		require.NoError(t, c.Validate())
	}
	assert.Equal(t, []string{"Vegan", "Gluten Free"}, got[3].Traits, "non-dietary traits are dropped")
}

func TestPrepare_UnknownComponent(t *testing.T) {
	raw := []scraper.Item{item("Toast", 100, 3, []string{"Vegan"}, nil)}
	got := Prepare(Placement{Station: "Toast Bar"}, raw, []Offering{
		{Name: "Toast & Jam", Items: []string{"Toast", "Jam"}, ServiceStyle: menu.StyleBundle},
	})
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Traits, "a missing component carries no traits")
	assert.Equal(t, 100.0, got[0].CaloriesKcal)
}
