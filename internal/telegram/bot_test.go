package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fuelstack/internal/app"
	"fuelstack/internal/config"
	"fuelstack/internal/database"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/optimizer"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "bot.db"), nil)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	repo := menu.NewRepository(db.SQL)
	hall, err := repo.AddHall(ctx, "South Quad", "https://example.edu/south-quad")
	if err != nil {
		t.Fatalf("AddHall failed: %v", err)
	}
	err = repo.ReplaceItems(ctx, hall.ID, "2025-12-18", []menu.CandidateItem{
		{Name: "Roast Plate", Station: "Signature Maize", Tier: menu.TierPrimary, MealPeriod: "dinner",
			Nutrients: menu.Nutrients{CaloriesKcal: 700, ProteinG: 44}},
	})
	if err != nil {
		t.Fatalf("ReplaceItems failed: %v", err)
	}

	store := metrics.NewStore(db.SQL)
	a := app.New(app.Deps{
		Config:  &config.Config{MenuTimezone: time.UTC, PlanCount: 5, ReusePenalty: 300, SolverMaxNodes: 1000},
		Repo:    repo,
		Metrics: store,
		Now:     func() time.Time { return time.Date(2025, 12, 18, 18, 0, 0, 0, time.UTC) },
	})

	sender := &fakeSender{}
	return New(sender, a, []int64{42}, Options{Metrics: store, DataPath: dir, DB: db.SQL}), sender
}

func command(userID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: 7},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		},
	}
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Unauthorized user", func(t *testing.T) {
		bot, sender := newTestBot(t)
		bot.HandleMessage(ctx, command(1, "/halls"))
		if len(sender.sent) != 0 {
			t.Fatalf("Expected no reply, got %d", len(sender.sent))
		}
	})

	t.Run("Halls", func(t *testing.T) {
		bot, sender := newTestBot(t)
		bot.HandleMessage(ctx, command(42, "/halls"))
		if len(sender.sent) != 1 {
			t.Fatalf("Expected one reply, got %d", len(sender.sent))
		}
		if !strings.Contains(sender.sent[0].Text, "`1` South Quad") {
			t.Errorf("Unexpected halls reply: %s", sender.sent[0].Text)
		}
		if sender.sent[0].ChatID != 7 {
			t.Errorf("Expected reply to chat 7, got %d", sender.sent[0].ChatID)
		}
	})

	t.Run("Plan", func(t *testing.T) {
		bot, sender := newTestBot(t)
		bot.HandleMessage(ctx, command(42, "/plan 1 Dinner 600 800 30"))
		if len(sender.sent) != 1 {
			t.Fatalf("Expected one reply, got %d", len(sender.sent))
		}
		text := sender.sent[0].Text
		if !strings.Contains(text, "*Option 1* (700 kcal, 44 g protein)") || !strings.Contains(text, "Roast Plate") {
			t.Errorf("Unexpected plan reply: %s", text)
		}
	})

	t.Run("Plan with bad arguments", func(t *testing.T) {
		bot, sender := newTestBot(t)
		bot.HandleMessage(ctx, command(42, "/plan 1 dinner"))
		if !strings.Contains(sender.sent[0].Text, "Usage: /plan") {
			t.Errorf("Expected usage hint, got: %s", sender.sent[0].Text)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		bot, sender := newTestBot(t)
		bot.HandleMessage(ctx, command(42, "/plan 1 dinner 600 800"))
		bot.HandleMessage(ctx, command(42, "/metrics"))
		text := sender.sent[1].Text
		if !strings.Contains(text, "Optimizer Runs") || !strings.Contains(text, "exhausted: 1 runs") {
			t.Errorf("Unexpected metrics reply: %s", text)
		}
	})
}

func TestParsePlanArgs(t *testing.T) {
	req, err := parsePlanArgs("3 Lunch 500 900 35")
	if err != nil {
		t.Fatalf("parsePlanArgs failed: %v", err)
	}
	if req.HallID != 3 || req.MealPeriod != "lunch" {
		t.Errorf("Unexpected request %+v", req)
	}
	if r := req.Bounds[menu.Calories]; *r.Min != 500 || *r.Max != 900 {
		t.Errorf("Unexpected calorie range")
	}
	if r := req.Bounds[menu.Protein]; *r.Min != 35 || r.Max != nil {
		t.Errorf("Unexpected protein range")
	}

	for _, bad := range []string{"", "1 lunch 500", "x lunch 500 900", "1 lunch a 900", "1 lunch 1 2 3 4"} {
		if _, err := parsePlanArgs(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestFormatPlans(t *testing.T) {
	plan := optimizer.MealPlan{
		Items: []optimizer.PlanItem{
			{CandidateItem: menu.CandidateItem{Name: "Fish_Tacos", Station: "Grill"}, Quantity: 2},
		},
		Totals: menu.Nutrients{CaloriesKcal: 640, ProteinG: 38},
	}
	out := formatPlans(optimizer.PlanSet{Plans: []optimizer.MealPlan{plan, plan, plan, plan}}, 3)

	if !strings.Contains(out, "• Fish\\_Tacos ×2 _(Grill)_") {
		t.Errorf("Missing formatted item: %s", out)
	}
	if !strings.Contains(out, "_1 more plan(s) not shown_") {
		t.Errorf("Missing overflow note: %s", out)
	}
	if formatPlans(optimizer.PlanSet{}, 3) != "🤷 No meal fits those targets today." {
		t.Error("Unexpected empty reply")
	}
}
