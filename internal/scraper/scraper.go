// Package scraper reads a dining hall's daily menu page into a structured
// Menu of meal periods, stations and items with their nutrition facts.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Nutrition fact labels as printed on the menu page.
const (
	LabelServingSize  = "Serving Size"
	LabelCalories     = "Calories"
	LabelTotalFat     = "Total Fat"
	LabelSaturatedFat = "Saturated Fat"
	LabelTransFat     = "Trans Fat"
	LabelCholesterol  = "Cholesterol"
	LabelSodium       = "Sodium"
	LabelCarbohydrate = "Total Carbohydrate"
	LabelFiber        = "Dietary Fiber"
	LabelSugars       = "Sugars"
	LabelProtein      = "Protein"
)

var knownLabels = map[string]bool{
	LabelServingSize: true, LabelCalories: true, LabelTotalFat: true, LabelSaturatedFat: true,
	LabelTransFat: true, LabelCholesterol: true, LabelSodium: true, LabelCarbohydrate: true,
	LabelFiber: true, LabelSugars: true, LabelProtein: true,
	"Vitamin A": true, "Vitamin C": true, "Calcium": true, "Iron": true, "Potassium": true,
}

var unitNames = map[string]string{
	"g":          "grams",
	"mg":         "milligrams",
	"mcg":        "micrograms",
	"IU":         "international units",
	"kcal":       "kilocalories",
	"oz":         "ounces",
	"cups":       "cups",
	"serving(s)": "servings",
}

// Measurement is one nutrition fact.
type Measurement struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	DailyValue float64 `json:"daily_value,omitempty"`
}

// Item is a single dish with its facts.
type Item struct {
	Name        string                 `json:"name"`
	Traits      []string               `json:"traits"`
	Allergens   []string               `json:"allergens"`
	PortionSize string                 `json:"portion_size,omitempty"`
	ServingSize *Measurement           `json:"serving_size,omitempty"`
	Nutrition   map[string]Measurement `json:"nutrition"`
}

// Fact returns the value of the labelled nutrition fact, or 0.
func (i Item) Fact(label string) float64 {
	return i.Nutrition[label].Value
}

// Station groups the items served at one counter.
type Station struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Period is a meal period such as breakfast or lunch.
type Period struct {
	Name     string    `json:"name"`
	Stations []Station `json:"stations"`
}

// Menu is one hall's menu for one date.
type Menu struct {
	Hall    string   `json:"hall"`
	Date    string   `json:"date"`
	Periods []Period `json:"periods"`
}

// Scraper downloads menu pages.
type Scraper struct {
	httpClient *http.Client
	userAgent  string
}

// New returns a Scraper with a sensible timeout.
func New() *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		userAgent:  "fuelstack-menu-scraper/1.0",
	}
}

// Fetch downloads and parses the menu at pageURL for date (YYYY-MM-DD).
// An empty date fetches the page as is.
func (s *Scraper) Fetch(ctx context.Context, pageURL, date string) (*Menu, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid menu url %q: %w", pageURL, err)
	}
	if date != "" {
		q := u.Query()
		q.Set("menuDate", date)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch menu: status %d", resp.StatusCode)
	}

	menu, err := ParseMenu(resp.Body)
	if err != nil {
		return nil, err
	}
	menu.Date = date
	return menu, nil
}

// ParseMenu reads the menu markup. Stations whose items carry no nutrition
// information are skipped.
func ParseMenu(r io.Reader) (*Menu, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse menu html: %w", err)
	}

	root := doc.Find("#mdining-items")
	if root.Length() == 0 {
		return nil, fmt.Errorf("menu container #mdining-items not found")
	}

	menu := &Menu{Hall: strings.TrimSpace(doc.Find("h1").First().Text())}
	var current *Period
	root.Children().Each(func(_ int, sel *goquery.Selection) {
		switch {
		case goquery.NodeName(sel) == "h3":
			menu.Periods = append(menu.Periods, Period{Name: strings.TrimSpace(sel.Text())})
			current = &menu.Periods[len(menu.Periods)-1]
		case goquery.NodeName(sel) == "div" && sel.HasClass("courses") && current != nil:
			sel.Find("ul.courses_wrapper").First().ChildrenFiltered("li").Each(func(_ int, st *goquery.Selection) {
				if station, ok := parseStation(st); ok {
					current.Stations = append(current.Stations, station)
				}
			})
		}
	})
	return menu, nil
}

func parseStation(sel *goquery.Selection) (Station, bool) {
	list := sel.Find("ul.items").First()
	if list.Find("a.item-no-nutrition").Length() > 0 {
		return Station{}, false
	}
	station := Station{Name: strings.TrimSpace(sel.Find("h4").First().Text())}
	list.ChildrenFiltered("li").Each(func(_ int, it *goquery.Selection) {
		station.Items = append(station.Items, parseItem(it))
	})
	return station, station.Name != ""
}

func parseItem(sel *goquery.Selection) Item {
	item := Item{
		Name:      strings.TrimSpace(sel.Find(".item-name").First().Text()),
		Traits:    texts(sel.Find("ul.traits li")),
		Allergens: texts(sel.Find("div.nutrition-wrapper div.allergens ul li")),
		Nutrition: make(map[string]Measurement),
	}

	sel.Find("div.nutrition-wrapper table.nutrition-facts tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		switch cells.Length() {
		case 0:
			return
		case 1:
			parseHeaderRow(&item, strings.Fields(cells.First().Text()))
		default:
			fields := strings.Fields(cells.First().Text())
			label, rest := splitLabel(fields)
			if label == "" {
				return
			}
			m := parseAmount(strings.Join(rest, ""))
			m.DailyValue = parseNumber(strings.TrimSuffix(strings.TrimSpace(cells.Eq(1).Text()), "%"))
			item.Nutrition[label] = m
		}
	})
	return item
}

// parseHeaderRow handles the single-cell "Serving Size" and "Calories" rows.
func parseHeaderRow(item *Item, fields []string) {
	if len(fields) >= 2 && fields[0]+" "+fields[1] == LabelServingSize {
		switch {
		case len(fields) >= 5:
			item.PortionSize = strings.Join(fields[2:4], " ")
		case len(fields) >= 3:
			item.PortionSize = fields[2]
		}
		if len(fields) >= 3 {
			raw := strings.Trim(fields[len(fields)-1], "()")
			m := parseAmount(raw)
			item.ServingSize = &m
		}
		return
	}
	if len(fields) >= 1 && fields[0] == LabelCalories {
		m := Measurement{}
		if len(fields) >= 2 {
			m.Value = parseNumber(fields[1])
			m.Unit = unitNames["kcal"]
		}
		item.Nutrition[LabelCalories] = m
	}
}

// splitLabel matches a two-word label before a one-word one.
func splitLabel(fields []string) (string, []string) {
	if len(fields) >= 2 && knownLabels[fields[0]+" "+fields[1]] {
		return fields[0] + " " + fields[1], fields[2:]
	}
	if len(fields) >= 1 && knownLabels[fields[0]] {
		return fields[0], fields[1:]
	}
	return "", nil
}

// parseAmount splits "12.5mg" into value and unit.
func parseAmount(s string) Measurement {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '<'
	})
	if i < 0 {
		return Measurement{Value: parseNumber(s)}
	}
	unit := s[i:]
	if name, ok := unitNames[unit]; ok {
		unit = name
	}
	return Measurement{Value: parseNumber(s[:i]), Unit: unit}
}

func parseNumber(s string) float64 {
	s = strings.TrimLeft(strings.TrimSpace(s), "<")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func texts(sel *goquery.Selection) []string {
	out := []string{}
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
