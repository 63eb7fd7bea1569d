// Package bundler groups the raw items served at a station into the
// offerings a diner would actually pick up, and turns those offerings into
// candidate items for the optimizer.
package bundler

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"fuelstack/internal/llm"
	"fuelstack/internal/menu"
	"fuelstack/internal/shared"
)

//go:embed system_prompt.md
var systemPrompt string

//go:embed station_prompt.md
var stationPrompt string

var stationTmpl = template.Must(template.New("station").Parse(stationPrompt))

// AgentName identifies the bundler in execution metrics.
const AgentName = "Bundler"

// Stations with fixed handling.
const (
	StationSoup   = "Soup"
	StationBakery = "MBakery"
	StationDeli   = "Deli"
)

// Offering is one orderable combination of station items.
type Offering struct {
	Name         string   `json:"name"`
	Items        []string `json:"items"`
	ServiceStyle string   `json:"service_style"`
	Reasoning    string   `json:"reasoning"`
}

// StationMenu is the grouped menu of one station.
type StationMenu struct {
	StationName string     `json:"station_name"`
	Offerings   []Offering `json:"offerings"`
}

// Result carries the grouped station and metadata about the LLM call, if any.
type Result struct {
	Menu StationMenu
	Meta shared.AgentMeta
}

// Grouper groups a station's items into offerings.
type Grouper interface {
	GroupStation(ctx context.Context, station string, items []string) (Result, error)
}

// Bundler groups stations with the help of a text generator.
type Bundler struct {
	textGen llm.TextGenerator
}

// New creates a Bundler.
func New(textGen llm.TextGenerator) *Bundler {
	return &Bundler{textGen: textGen}
}

type stationPromptData struct {
	StationName string
	ItemsJSON   string
}

// GroupStation returns the offerings for station. Single-item stations,
// soups and bakery items become one offering per item and the deli is
// skipped; only the remaining stations reach the model.
func (b *Bundler) GroupStation(ctx context.Context, station string, items []string) (Result, error) {
	if fixed, ok := fixedStation(station, items); ok {
		return Result{Menu: fixed}, nil
	}

	start := time.Now()
	prompt, err := buildStationPrompt(station, items)
	if err != nil {
		return Result{}, err
	}

	resp, err := b.textGen.GenerateContent(ctx, systemPrompt, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("failed to group station %q: %w", station, err)
	}

	var raw StationMenu
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &raw); err != nil {
		return Result{}, fmt.Errorf("failed to parse bundler response: %w. Response: %s", err, resp.Content)
	}

	return Result{
		Menu: sanitize(station, items, raw),
		Meta: shared.AgentMeta{
			AgentName: AgentName,
			Usage:     resp.Usage,
			Latency:   time.Since(start),
		},
	}, nil
}

func fixedStation(station string, items []string) (StationMenu, bool) {
	out := StationMenu{StationName: station, Offerings: []Offering{}}
	switch {
	case len(items) <= 1:
		for _, it := range items {
			out.Offerings = append(out.Offerings, Offering{Name: it, Items: []string{it}, ServiceStyle: menu.StyleBundle, Reasoning: "Only item at station"})
		}
	case strings.EqualFold(station, StationSoup):
		for _, it := range items {
			out.Offerings = append(out.Offerings, Offering{Name: it, Items: []string{it}, ServiceStyle: menu.StyleBundle, Reasoning: "Soup"})
		}
	case strings.EqualFold(station, StationBakery):
		for _, it := range items {
			out.Offerings = append(out.Offerings, Offering{Name: it, Items: []string{it}, ServiceStyle: menu.StyleDessert, Reasoning: "Dessert"})
		}
	case strings.EqualFold(station, StationDeli):
	default:
		return StationMenu{}, false
	}
	return out, true
}

func buildStationPrompt(station string, items []string) (string, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal station items: %w", err)
	}
	var buf bytes.Buffer
	if err := stationTmpl.Execute(&buf, stationPromptData{StationName: station, ItemsJSON: string(itemsJSON)}); err != nil {
		return "", fmt.Errorf("failed to execute station template: %w", err)
	}
	return buf.String(), nil
}

// sanitize drops names the model invented and offerings left empty or with
// an unknown service style.
func sanitize(station string, items []string, raw StationMenu) StationMenu {
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it] = true
	}

	out := StationMenu{StationName: station, Offerings: []Offering{}}
	for _, o := range raw.Offerings {
		if o.ServiceStyle != menu.StyleBundle && o.ServiceStyle != menu.StyleSelfServe {
			continue
		}
		kept := make([]string, 0, len(o.Items))
		seen := make(map[string]bool, len(o.Items))
		for _, it := range o.Items {
			if known[it] && !seen[it] {
				kept = append(kept, it)
				seen[it] = true
			}
		}
		if len(kept) == 0 {
			continue
		}
		o.Items = kept
		if strings.TrimSpace(o.Name) == "" {
			o.Name = strings.Join(kept, " & ")
		}
		out.Offerings = append(out.Offerings, o)
	}
	return out
}

// cleanJSON strips a markdown code fence some models wrap around JSON.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
