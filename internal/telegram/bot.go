// Package telegram is a chat front-end to the meal optimizer.
package telegram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fuelstack/internal/app"
	"fuelstack/internal/config"
	"fuelstack/internal/menu"
	"fuelstack/internal/metrics"
	"fuelstack/internal/optimizer"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// maxPlansShown caps how many plans one reply lists.
const maxPlansShown = 3

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options are the optional collaborators of a Bot.
type Options struct {
	Metrics  *metrics.Store
	DataPath string
	DB       *sql.DB
	Logger   *zap.Logger
}

// Bot answers /halls, /plan and /metrics for allow-listed users.
type Bot struct {
	api     Sender
	app     *app.App
	allowed map[int64]bool
	opts    Options
	logger  *zap.Logger
	timeout time.Duration
}

// New creates a Bot over an existing sender.
func New(api Sender, a *app.App, allowedUserIDs []int64, opts Options) *Bot {
	b := &Bot{
		api:     api,
		app:     a,
		allowed: make(map[int64]bool, len(allowedUserIDs)),
		opts:    opts,
		logger:  opts.Logger,
		timeout: time.Minute,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	for _, id := range allowedUserIDs {
		b.allowed[id] = true
	}
	return b
}

// Connect authorizes against the Telegram API and registers the webhook.
func Connect(cfg *config.Config, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("telegram authorized", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("telegram webhook set", zap.String("response", resp.Description))
	return api, nil
}

// ServeHTTP receives webhook updates. Messages are answered asynchronously
// so Telegram is acknowledged right away.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("failed to parse update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		b.HandleMessage(ctx, update.Message)
	}()
}

// HandleMessage dispatches one message. Messages from users outside the
// allow-list are dropped.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !b.allowed[msg.From.ID] {
		if msg.From != nil {
			b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", msg.From.ID), zap.String("username", msg.From.UserName))
		}
		return
	}

	var reply string
	switch msg.Command() {
	case "start", "help":
		reply = helpText
	case "halls":
		reply = b.halls(ctx)
	case "plan":
		reply = b.plan(ctx, msg.CommandArguments())
	case "metrics":
		reply = b.report(ctx)
	default:
		reply = "Unknown command.\n\n" + helpText
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(out); err != nil {
		b.logger.Error("failed to send reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

const helpText = "*FuelStack*\n" +
	"/halls - list dining halls\n" +
	"/plan <hall> <period> <calMin> <calMax> [proteinMin] - meal plans for today\n" +
	"/metrics - usage and health"

func (b *Bot) halls(ctx context.Context) string {
	halls, err := b.app.Halls(ctx)
	if err != nil {
		b.logger.Error("failed to list halls", zap.Error(err))
		return "❌ Could not load dining halls."
	}
	return formatHalls(halls)
}

func (b *Bot) plan(ctx context.Context, args string) string {
	req, err := parsePlanArgs(args)
	if err != nil {
		return "⚠️ " + err.Error() + "\nUsage: /plan <hall> <period> <calMin> <calMax> [proteinMin]"
	}

	set, err := b.app.Optimize(ctx, req)
	switch {
	case err == nil:
		return formatPlans(set, maxPlansShown)
	case errors.Is(err, optimizer.ErrConfiguration), errors.Is(err, menu.ErrHallNotFound):
		return "⚠️ " + escape(err.Error())
	default:
		b.logger.Error("optimization failed", zap.Error(err))
		return "❌ The optimizer failed, try again later."
	}
}

func (b *Bot) report(ctx context.Context) string {
	if b.opts.Metrics == nil {
		return "Metrics are not configured."
	}
	usage, err := b.opts.Metrics.GetDailyUsage(ctx, 7)
	if err != nil {
		return "❌ Error fetching metrics."
	}
	runs, err := b.opts.Metrics.SummarizeRuns(ctx, 7)
	if err != nil {
		return "❌ Error fetching metrics."
	}
	return formatReport(usage, runs, metrics.GetSysHealth(b.opts.DataPath, b.opts.DB))
}

// parsePlanArgs reads "<hall> <period> <calMin> <calMax> [proteinMin]".
func parsePlanArgs(args string) (app.MealRequest, error) {
	f := strings.Fields(args)
	if len(f) < 4 || len(f) > 5 {
		return app.MealRequest{}, errors.New("expected 4 or 5 arguments")
	}
	hall, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil || hall <= 0 {
		return app.MealRequest{}, fmt.Errorf("invalid hall id %q", f[0])
	}
	nums := make([]float64, 0, 3)
	for _, s := range f[2:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return app.MealRequest{}, fmt.Errorf("invalid number %q", s)
		}
		nums = append(nums, v)
	}

	bounds := menu.NutrientBounds{menu.Calories: menu.Between(nums[0], nums[1])}
	if len(nums) == 3 {
		bounds[menu.Protein] = menu.AtLeast(nums[2])
	}
	return app.MealRequest{HallID: hall, MealPeriod: strings.ToLower(f[1]), Bounds: bounds}, nil
}

func formatHalls(halls []menu.Hall) string {
	if len(halls) == 0 {
		return "No dining halls registered yet."
	}
	var sb strings.Builder
	sb.WriteString("🏛 *Dining Halls*\n\n")
	for _, h := range halls {
		fmt.Fprintf(&sb, "• `%d` %s\n", h.ID, escape(h.Name))
	}
	return sb.String()
}

func formatPlans(set optimizer.PlanSet, limit int) string {
	if len(set.Plans) == 0 {
		return "🤷 No meal fits those targets today."
	}
	var sb strings.Builder
	sb.WriteString("🍽 *Meal Plans*\n")
	for i, p := range set.Plans {
		if i == limit {
			fmt.Fprintf(&sb, "\n_%d more plan(s) not shown_\n", len(set.Plans)-limit)
			break
		}
		fmt.Fprintf(&sb, "\n*Option %d* (%.0f kcal, %.0f g protein)\n", i+1, p.Totals.CaloriesKcal, p.Totals.ProteinG)
		for _, it := range p.Items {
			fmt.Fprintf(&sb, "• %s", escape(it.Name))
			if it.Quantity > 1 {
				fmt.Fprintf(&sb, " ×%d", it.Quantity)
			}
			if it.Station != "" {
				fmt.Fprintf(&sb, " _(%s)_", escape(it.Station))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatReport(usage []metrics.DailyUsage, runs []metrics.RunSummary, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		fmt.Fprintf(&sb, "• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}

	sb.WriteString("\n🧮 *Optimizer Runs*\n")
	if len(runs) == 0 {
		sb.WriteString("_No runs yet_\n")
	}
	for _, r := range runs {
		fmt.Fprintf(&sb, "• %s: %d runs, %.1f plans avg, %.0f ms avg\n", escape(r.StopReason), r.Runs, r.AvgPlans, r.AvgLatencyMS)
	}

	sb.WriteString("\n🧠 *System Health*\n")
	fmt.Fprintf(&sb, "• Status: %s, up %s\n", health.Status, health.Uptime)
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	return sb.String()
}

// escape neutralizes legacy Markdown control characters.
func escape(s string) string {
	return strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[").Replace(s)
}
