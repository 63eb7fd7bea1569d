package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fuelstack/internal/bundler"
	"fuelstack/internal/config"
	"fuelstack/internal/database"
	"fuelstack/internal/llm"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/optimizer"
	"fuelstack/internal/scraper"
	"fuelstack/internal/shared"
	"fuelstack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTextGen struct {
	res string
	err error
}

func (m *mockTextGen) GenerateContent(ctx context.Context, system, prompt string) (llm.ContentResponse, error) {
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{Content: m.res, Usage: shared.TokenUsage{PromptTokens: 50, CompletionTokens: 10, Model: "mock"}}, nil
}

type mockFetcher struct {
	menu  *scraper.Menu
	calls int
}

func (m *mockFetcher) Fetch(ctx context.Context, pageURL, date string) (*scraper.Menu, error) {
	m.calls++
	return m.menu, nil
}

func rawItem(name string, cal, protein float64) scraper.Item {
	return scraper.Item{
		Name:      name,
		Traits:    []string{"Halal"},
		Allergens: []string{},
		Nutrition: map[string]scraper.Measurement{
			scraper.LabelCalories: {Value: cal},
			scraper.LabelProtein:  {Value: protein},
		},
	}
}

var fixedNow = time.Date(2025, 12, 18, 15, 0, 0, 0, time.UTC)

type fixture struct {
	app     *App
	repo    *menu.Repository
	store   *metrics.Store
	fetcher *mockFetcher
	gen     *mockTextGen
	hall    menu.Hall
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "app.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	snapshots, err := storage.NewSnapshotStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)

	f := &fixture{
		repo:  menu.NewRepository(db.SQL),
		store: metrics.NewStore(db.SQL),
		gen:   &mockTextGen{res: `{"station_name": "Grill", "offerings": [{"name": "Burger Combo", "items": ["Burger", "Fries"], "service_style": "bundle"}]}`},
		fetcher: &mockFetcher{menu: &scraper.Menu{
			Hall: "South Quad",
			Periods: []scraper.Period{{
				Name: "Lunch",
				Stations: []scraper.Station{
					{Name: "Grill", Items: []scraper.Item{rawItem("Burger", 500, 30), rawItem("Fries", 300, 4)}},
					{Name: "Soup", Items: []scraper.Item{rawItem("Chili", 250, 18)}},
					{Name: "Deli", Items: []scraper.Item{rawItem("Turkey", 200, 20), rawItem("Ham", 220, 16)}},
				},
			}},
		}},
	}

	cfg := &config.Config{
		MenuTimezone:   time.UTC,
		PlanCount:      5,
		ReusePenalty:   300,
		SolveBudget:    10 * time.Second,
		SolverMaxNodes: 10000,
	}
	f.app = New(Deps{
		Config:     cfg,
		Repo:       f.repo,
		Metrics:    f.store,
		Collectors: metrics.NewCollectors(),
		Snapshots:  snapshots,
		Fetcher:    f.fetcher,
		Grouper:    bundler.New(f.gen),
		Now:        func() time.Time { return fixedNow },
	})

	f.hall, err = f.app.AddHall(context.Background(), "South Quad", "https://example.edu/south-quad")
	require.NoError(t, err)
	return f
}

func TestIngestHall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.app.IngestHall(ctx, f.hall.ID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2025-12-18", report.Date)
	assert.Equal(t, 3, report.Stations)
	assert.Equal(t, 6, report.Items)
	assert.Equal(t, map[string]int{"primary": 2, "fallback": 4}, report.ByTier)
	assert.Equal(t, 1, f.fetcher.calls)

	raw, err := f.app.DefaultMenu(ctx, f.hall.ID, "lunch")
	require.NoError(t, err)
	assert.Len(t, raw, 4)

	usage, err := f.store.GetDailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1, "grill grouping usage is recorded")

	t.Run("replays the snapshot", func(t *testing.T) {
		again, err := f.app.IngestHall(ctx, f.hall.ID, IngestOptions{})
		require.NoError(t, err)
		assert.Equal(t, 6, again.Items, "ingestion replaces the day's menu")
		assert.Equal(t, 1, f.fetcher.calls)

		_, err = f.app.IngestHall(ctx, f.hall.ID, IngestOptions{Refresh: true})
		require.NoError(t, err)
		assert.Equal(t, 2, f.fetcher.calls)
	})

	t.Run("grouping failure keeps raw items", func(t *testing.T) {
		f.gen.err = errors.New("quota exceeded")
		report, err := f.app.IngestHall(ctx, f.hall.ID, IngestOptions{Date: "2025-12-19"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"primary": 1, "fallback": 4}, report.ByTier)
	})

	t.Run("unknown hall", func(t *testing.T) {
		_, err := f.app.IngestHall(ctx, 999, IngestOptions{})
		assert.ErrorIs(t, err, menu.ErrHallNotFound)
	})
}

func TestIngestAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.app.AddHall(ctx, "East Quad", "https://example.edu/east-quad")
	require.NoError(t, err)

	reports, err := f.app.IngestAll(ctx, IngestOptions{})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestIngestHall_Disabled(t *testing.T) {
	f := newFixture(t)
	a := New(Deps{Config: f.app.cfg, Repo: f.repo})
	_, err := a.IngestHall(context.Background(), f.hall.ID, IngestOptions{})
	assert.ErrorIs(t, err, ErrIngestionDisabled)
}

func TestOptimize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.app.IngestHall(ctx, f.hall.ID, IngestOptions{})
	require.NoError(t, err)

	set, err := f.app.Optimize(ctx, MealRequest{
		HallID:     f.hall.ID,
		MealPeriod: "Lunch",
		Bounds:     menu.NutrientBounds{menu.Calories: menu.Between(600, 900)},
		Count:      3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, set.Plans)
	assert.LessOrEqual(t, len(set.Plans), 3)
	for _, p := range set.Plans {
		assert.GreaterOrEqual(t, p.Totals.CaloriesKcal, 600-1e-6)
		assert.LessOrEqual(t, p.Totals.CaloriesKcal, 900+1e-6)
	}

	runs, err := f.store.SummarizeRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Runs)

	t.Run("trait filter leaves no candidates", func(t *testing.T) {
		_, err := f.app.Optimize(ctx, MealRequest{
			HallID:     f.hall.ID,
			MealPeriod: "lunch",
			Bounds:     menu.NutrientBounds{menu.Calories: menu.Between(600, 900)},
			Traits:     []string{"Vegan"},
		})
		assert.ErrorIs(t, err, optimizer.ErrConfiguration)
	})

	t.Run("unknown hall", func(t *testing.T) {
		_, err := f.app.Optimize(ctx, MealRequest{HallID: 42, MealPeriod: "lunch"})
		assert.ErrorIs(t, err, menu.ErrHallNotFound)
	})
}

func TestAddHall_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.AddHall(context.Background(), " ", "https://example.edu")
	assert.Error(t, err)

	halls, err := f.app.Halls(context.Background())
	require.NoError(t, err)
	assert.Len(t, halls, 1)
}
