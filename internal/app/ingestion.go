package app

import (
	"context"
	"errors"
	"fmt"

	"fuelstack/internal/bundler"
	"fuelstack/internal/menu"
	"fuelstack/internal/scraper"

	"go.uber.org/zap"
)

// ErrIngestionDisabled is returned when the App was built without a grouper
// or a menu source.
var ErrIngestionDisabled = errors.New("ingestion is not configured")

// IngestOptions selects what to ingest.
type IngestOptions struct {
	// Date defaults to today.
	Date string
	// Refresh downloads the page even when a snapshot exists.
	Refresh bool
}

// IngestReport summarises one hall's ingestion.
type IngestReport struct {
	Hall     menu.Hall      `json:"hall"`
	Date     string         `json:"date"`
	Stations int            `json:"stations"`
	Items    int            `json:"items"`
	ByTier   map[string]int `json:"by_tier"`
	Skipped  int            `json:"skipped"`
}

type saver interface {
	SaveCache() error
}

// IngestHall scrapes (or replays) a hall's menu, groups every station into
// offerings and replaces the stored menu for the date. A station whose
// grouping fails keeps its raw items as fallback candidates.
func (a *App) IngestHall(ctx context.Context, hallID int64, opts IngestOptions) (IngestReport, error) {
	if a.grouper == nil || (a.fetcher == nil && a.snapshots == nil) {
		return IngestReport{}, ErrIngestionDisabled
	}
	hall, err := a.repo.GetHall(ctx, hallID)
	if err != nil {
		return IngestReport{}, err
	}
	date := opts.Date
	if date == "" {
		date = a.Today()
	}
	log := a.logger.With(zap.Int64("hall_id", hall.ID), zap.String("hall", hall.Name), zap.String("date", date))

	raw, err := a.loadMenu(ctx, hall, date, opts.Refresh, log)
	if err != nil {
		return IngestReport{}, err
	}

	report := IngestReport{Hall: hall, Date: date, ByTier: make(map[string]int)}
	var items []menu.CandidateItem
	for _, period := range raw.Periods {
		for _, station := range period.Stations {
			report.Stations++
			offerings := a.groupStation(ctx, station, log)
			prepared := bundler.Prepare(bundler.Placement{
				Station:      station.Name,
				MealPeriod:   period.Name,
				DiningHallID: hall.ID,
			}, station.Items, offerings)

			for _, it := range prepared {
				if err := it.Validate(); err != nil {
					log.Warn("skipping invalid item", zap.String("station", station.Name), zap.Error(err))
					report.Skipped++
					continue
				}
				items = append(items, it)
				report.ByTier[it.Tier.String()]++
			}
		}
	}

	if err := a.repo.ReplaceItems(ctx, hall.ID, date, items); err != nil {
		return IngestReport{}, fmt.Errorf("failed to store menu items: %w", err)
	}
	report.Items = len(items)

	if a.collectors != nil {
		for tier, n := range report.ByTier {
			a.collectors.ObserveIngested(tier, n)
		}
	}
	if s, ok := a.grouper.(saver); ok {
		if err := s.SaveCache(); err != nil {
			log.Warn("failed to save bundle cache", zap.Error(err))
		}
	}

	log.Info("menu ingested",
		zap.Int("stations", report.Stations),
		zap.Int("items", report.Items),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// IngestAll ingests every registered hall. Failures are logged and the
// remaining halls still run.
func (a *App) IngestAll(ctx context.Context, opts IngestOptions) ([]IngestReport, error) {
	halls, err := a.repo.ListHalls(ctx)
	if err != nil {
		return nil, err
	}
	var (
		reports []IngestReport
		errs    []error
	)
	for _, h := range halls {
		r, err := a.IngestHall(ctx, h.ID, opts)
		if err != nil {
			a.logger.Error("hall ingestion failed", zap.Int64("hall_id", h.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("hall %d: %w", h.ID, err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

func (a *App) loadMenu(ctx context.Context, hall menu.Hall, date string, refresh bool, log *zap.Logger) (*scraper.Menu, error) {
	if a.snapshots != nil && !refresh && a.snapshots.Exists(hall.ID, date) {
		log.Debug("replaying menu snapshot")
		return a.snapshots.Load(hall.ID, date)
	}
	if a.fetcher == nil {
		return nil, fmt.Errorf("no snapshot for hall %d on %s and no fetcher configured", hall.ID, date)
	}

	raw, err := a.fetcher.Fetch(ctx, hall.URL, date)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", hall.Name, err)
	}
	if a.snapshots != nil {
		if err := a.snapshots.Save(hall.ID, date, raw); err != nil {
			log.Warn("failed to save menu snapshot", zap.Error(err))
		}
	}
	return raw, nil
}

func (a *App) groupStation(ctx context.Context, station scraper.Station, log *zap.Logger) []bundler.Offering {
	names := make([]string, 0, len(station.Items))
	for _, it := range station.Items {
		names = append(names, it.Name)
	}

	res, err := a.grouper.GroupStation(ctx, station.Name, names)
	if a.collectors != nil && (err != nil || res.Meta.AgentName != "") {
		a.collectors.ObserveLLM(bundler.AgentName, res.Meta.Usage.PromptTokens, res.Meta.Usage.CompletionTokens, err)
	}
	if err != nil {
		log.Warn("station grouping failed, keeping raw items", zap.String("station", station.Name), zap.Error(err))
		return nil
	}

	if a.metrics != nil {
		if err := a.metrics.RecordMeta(ctx, res.Meta); err != nil {
			log.Warn("failed to record metrics", zap.String("agent", res.Meta.AgentName), zap.Error(err))
		}
	}
	return res.Menu.Offerings
}
