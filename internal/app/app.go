// Package app wires the menu store, the bundler and the optimizer into the
// use cases served by the CLI, the HTTP API and the Telegram bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fuelstack/internal/bundler"
	"fuelstack/internal/config"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/mip"
	"fuelstack/internal/optimizer"
	"fuelstack/internal/scraper"
	"fuelstack/internal/storage"

	"go.uber.org/zap"
)

// MenuFetcher downloads a hall's menu page for a date.
type MenuFetcher interface {
	Fetch(ctx context.Context, pageURL, date string) (*scraper.Menu, error)
}

// Deps are the collaborators of an App. Grouper, Fetcher, Snapshots and
// Collectors may be nil when the caller never ingests or never exports
// Prometheus metrics.
type Deps struct {
	Config     *config.Config
	Repo       *menu.Repository
	Metrics    *metrics.Store
	Collectors *metrics.Collectors
	Snapshots  *storage.SnapshotStore
	Fetcher    MenuFetcher
	Grouper    bundler.Grouper
	Engine     mip.Engine
	Logger     *zap.Logger
	Now        func() time.Time
}

// App holds the application's dependencies.
type App struct {
	cfg        *config.Config
	repo       *menu.Repository
	metrics    *metrics.Store
	collectors *metrics.Collectors
	snapshots  *storage.SnapshotStore
	fetcher    MenuFetcher
	grouper    bundler.Grouper
	engine     mip.Engine
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an App. A missing engine defaults to branch and bound with
// the configured node limit.
func New(d Deps) *App {
	a := &App{
		cfg:        d.Config,
		repo:       d.Repo,
		metrics:    d.Metrics,
		collectors: d.Collectors,
		snapshots:  d.Snapshots,
		fetcher:    d.Fetcher,
		grouper:    d.Grouper,
		engine:     d.Engine,
		logger:     d.Logger,
		now:        d.Now,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.engine == nil {
		a.engine = mip.NewBranchAndBound(mip.WithMaxNodes(a.cfg.SolverMaxNodes))
	}
	return a
}

// Today returns the current menu date in the configured time zone.
func (a *App) Today() string {
	return menu.Today(a.now(), a.cfg.MenuTimezone)
}

// Halls lists the registered dining halls.
func (a *App) Halls(ctx context.Context) ([]menu.Hall, error) {
	return a.repo.ListHalls(ctx)
}

// AddHall registers a dining hall.
func (a *App) AddHall(ctx context.Context, name, url string) (menu.Hall, error) {
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)
	if name == "" || url == "" {
		return menu.Hall{}, errors.New("hall name and url are required")
	}
	return a.repo.AddHall(ctx, name, url)
}

// DefaultMenu returns today's raw items of a hall for a meal period.
func (a *App) DefaultMenu(ctx context.Context, hallID int64, mealPeriod string) ([]menu.CandidateItem, error) {
	if _, err := a.repo.GetHall(ctx, hallID); err != nil {
		return nil, err
	}
	items, err := a.repo.DefaultMenu(ctx, hallID, a.Today(), mealPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to load default menu: %w", err)
	}
	return items, nil
}

// MealRequest describes one optimization request.
type MealRequest struct {
	HallID     int64
	MealPeriod string
	// Date defaults to today.
	Date      string
	Bounds    menu.NutrientBounds
	Traits    []string
	Allergens []string
	// Count overrides the configured number of plans when positive.
	Count int
}

// Optimize loads the matching candidates and enumerates meal plans.
func (a *App) Optimize(ctx context.Context, req MealRequest) (optimizer.PlanSet, error) {
	if _, err := a.repo.GetHall(ctx, req.HallID); err != nil {
		return optimizer.PlanSet{}, err
	}
	date := req.Date
	if date == "" {
		date = a.Today()
	}

	items, err := a.repo.ListCandidates(ctx, menu.Query{
		HallID:     req.HallID,
		MealPeriod: req.MealPeriod,
		Date:       date,
		Traits:     req.Traits,
		Allergens:  req.Allergens,
	})
	if err != nil {
		return optimizer.PlanSet{}, fmt.Errorf("failed to load candidates: %w", err)
	}

	count := a.cfg.PlanCount
	if req.Count > 0 {
		count = req.Count
	}
	opts := []optimizer.Option{
		optimizer.WithPlanCount(count),
		optimizer.WithReusePenalty(a.cfg.ReusePenalty),
		optimizer.WithTimeBudget(a.cfg.SolveBudget),
		optimizer.WithLogger(a.logger.With(zap.Int64("hall_id", req.HallID), zap.String("meal_period", req.MealPeriod))),
	}
	if a.collectors != nil {
		opts = append(opts, optimizer.WithObserver(a.collectors))
	}

	start := a.now()
	set, err := optimizer.New(a.engine, opts...).Run(ctx, items, req.Bounds)
	if err != nil {
		return optimizer.PlanSet{}, err
	}

	if a.metrics != nil {
		run := metrics.RunMetric{
			RunID:        set.RunID,
			DiningHallID: req.HallID,
			MealPeriod:   strings.ToLower(req.MealPeriod),
			Candidates:   len(items),
			Plans:        len(set.Plans),
			Solves:       set.Solves,
			StopReason:   string(set.StopReason),
			LatencyMS:    a.now().Sub(start).Milliseconds(),
		}
		if err := a.metrics.RecordRun(ctx, run); err != nil {
			a.logger.Warn("failed to record optimization run", zap.Error(err))
		}
	}
	return set, nil
}
