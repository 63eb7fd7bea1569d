package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"fuelstack/internal/api"
	"fuelstack/internal/app"
	"fuelstack/internal/bundler"
	"fuelstack/internal/config"
	"fuelstack/internal/database"
	"fuelstack/internal/llm"
	"fuelstack/internal/logging"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/scraper"
	"fuelstack/internal/storage"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	snapshots, err := storage.NewSnapshotStore(cfg.SnapshotDir)
	if err != nil {
		log.Fatalf("Failed to initialize snapshot store: %v", err)
	}

	repo := menu.NewRepository(db.SQL)
	metricsStore := metrics.NewStore(db.SQL)
	collectors := metrics.NewCollectors()

	deps := app.Deps{
		Config:     cfg,
		Repo:       repo,
		Metrics:    metricsStore,
		Collectors: collectors,
		Snapshots:  snapshots,
		Fetcher:    scraper.New(),
		Logger:     logger,
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		grouper, closer, err := newGrouper(ctx, cfg, collectors)
		if err != nil {
			logger.Warn("ingestion disabled", zap.Error(err))
		} else {
			defer closer.Close()
			deps.Grouper = grouper
		}
		server := api.NewServer(app.New(deps), api.Options{
			Addr:           cfg.HTTPAddr,
			AllowedOrigins: cfg.AllowedOrigins,
			AdminSecret:    cfg.AdminJWTSecret,
			DataPath:       filepath.Dir(cfg.DatabasePath),
			DB:             db.SQL,
			Collectors:     collectors,
			Logger:         logger,
		})
		if err := server.ListenAndServe(ctx); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	case "ingest":
		fs := flag.NewFlagSet("ingest", flag.ExitOnError)
		hall := fs.Int64("hall", 0, "Dining hall id (0 ingests every hall)")
		date := fs.String("date", "", "Menu date YYYY-MM-DD (default today)")
		refresh := fs.Bool("refresh", false, "Download the page even when a snapshot exists")
		fs.Parse(args)

		grouper, closer, err := newGrouper(ctx, cfg, collectors)
		if err != nil {
			log.Fatalf("Failed to initialize bundler: %v", err)
		}
		defer closer.Close()
		deps.Grouper = grouper
		application := app.New(deps)

		opts := app.IngestOptions{Date: *date, Refresh: *refresh}
		var reports []app.IngestReport
		if *hall > 0 {
			r, err := application.IngestHall(ctx, *hall, opts)
			if err != nil {
				log.Fatalf("Ingestion failed: %v", err)
			}
			reports = append(reports, r)
		} else {
			reports, err = application.IngestAll(ctx, opts)
			if err != nil {
				logger.Error("some halls failed", zap.Error(err))
			}
		}
		for _, r := range reports {
			fmt.Printf("%s (%s): %d stations, %d items, %d skipped\n", r.Hall.Name, r.Date, r.Stations, r.Items, r.Skipped)
		}

	case "optimize":
		fs := flag.NewFlagSet("optimize", flag.ExitOnError)
		hall := fs.Int64("hall", 0, "Dining hall id")
		period := fs.String("period", "", "Meal period, e.g. lunch")
		date := fs.String("date", "", "Menu date YYYY-MM-DD (default today)")
		count := fs.Int("count", 0, "Number of plans (default PLAN_COUNT)")
		traits := fs.String("traits", "", "Comma-separated traits every item must carry")
		allergens := fs.String("allergens", "", "Comma-separated allergens to avoid")
		ranges := make(map[menu.Nutrient]*menu.Range)
		for _, n := range []struct {
			flag     string
			nutrient menu.Nutrient
		}{
			{"cal", menu.Calories}, {"protein", menu.Protein}, {"fat", menu.TotalFat},
			{"carb", menu.Carbohydrate}, {"sugars", menu.Sugars}, {"sodium", menu.Sodium},
		} {
			r := &menu.Range{}
			ranges[n.nutrient] = r
			fs.Var(optionalFloat{&r.Min}, n.flag+"-min", "Minimum "+string(n.nutrient))
			fs.Var(optionalFloat{&r.Max}, n.flag+"-max", "Maximum "+string(n.nutrient))
		}
		fs.Parse(args)

		bounds := menu.NutrientBounds{}
		for n, r := range ranges {
			if r.IsSet() {
				bounds[n] = *r
			}
		}

		set, err := app.New(deps).Optimize(ctx, app.MealRequest{
			HallID:     *hall,
			MealPeriod: *period,
			Date:       *date,
			Bounds:     bounds,
			Traits:     splitList(*traits),
			Allergens:  splitList(*allergens),
			Count:      *count,
		})
		if err != nil {
			log.Fatalf("Optimization failed: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(set); err != nil {
			log.Fatalf("Failed to encode plans: %v", err)
		}

	case "add-hall":
		fs := flag.NewFlagSet("add-hall", flag.ExitOnError)
		name := fs.String("name", "", "Dining hall name")
		url := fs.String("url", "", "Menu page URL")
		fs.Parse(args)

		h, err := app.New(deps).AddHall(ctx, *name, *url)
		if err != nil {
			log.Fatalf("Failed to add hall: %v", err)
		}
		fmt.Printf("Added dining hall %d: %s\n", h.ID, h.Name)

	case "token":
		fs := flag.NewFlagSet("token", flag.ExitOnError)
		subject := fs.String("subject", "admin", "Token subject")
		ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
		fs.Parse(args)

		token, err := api.IssueAdminToken(cfg.AdminJWTSecret, *subject, *ttl, time.Now())
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)

	case "metrics-cleanup":
		fs := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := fs.Int("days", 30, "Keep records for the last N days")
		fs.Parse(args)

		affected, err := metricsStore.Cleanup(ctx, *days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)

		cutoff := time.Now().In(cfg.MenuTimezone).AddDate(0, 0, -*days).Format(menu.DateLayout)
		halls, err := repo.ListHalls(ctx)
		if err != nil {
			log.Fatalf("Failed to list halls: %v", err)
		}
		for _, h := range halls {
			n, err := snapshots.PruneBefore(h.ID, cutoff)
			if err != nil {
				logger.Warn("failed to prune snapshots", zap.Int64("hall_id", h.ID), zap.Error(err))
				continue
			}
			if n > 0 {
				fmt.Printf("Removed %d menu snapshots of %s.\n", n, h.Name)
			}
		}

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newGrouper builds the cached LLM bundler for the configured provider.
func newGrouper(ctx context.Context, cfg *config.Config, collectors *metrics.Collectors) (bundler.Grouper, llm.Closer, error) {
	textGen, closer, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cached, err := bundler.NewCachedGrouper(bundler.New(textGen), cfg.BundleCachePath,
		bundler.WithLookupHook(collectors.ObserveBundleCache))
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return cached, closer, nil
}

// optionalFloat is a flag.Value that leaves its target nil until set.
type optionalFloat struct {
	target **float64
}

func (o optionalFloat) String() string {
	if o.target == nil || *o.target == nil {
		return ""
	}
	return strconv.FormatFloat(**o.target, 'g', -1, 64)
}

func (o optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*o.target = &v
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printUsage() {
	fmt.Println("Usage: fuelstack <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve              Run the HTTP API")
	fmt.Println("  ingest             Scrape, bundle and store today's menus")
	fmt.Println("  optimize           Print meal plans for a hall and meal period")
	fmt.Println("  add-hall           Register a dining hall")
	fmt.Println("  token              Issue an admin token for /admin routes")
	fmt.Println("  metrics-cleanup    Remove old metric records and menu snapshots")
}
