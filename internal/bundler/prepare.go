package bundler

import (
	"math"
	"sort"
	"strings"

	"fuelstack/internal/menu"
	"fuelstack/internal/scraper"
)

// DietaryTraits are the traits carried over to candidate items.
var DietaryTraits = []string{"Vegan", "Vegetarian", "Gluten Free", "Halal", "Kosher"}

// Placement says where the candidates of one station belong.
type Placement struct {
	Station      string
	MealPeriod   string
	DiningHallID int64
}

// Prepare turns a station's offerings into candidate items. Nutrients are
// summed over the components, a dietary trait survives only when every
// component carries it, and allergens are unioned. Raw items not covered
// by a single-item offering are added as fallback candidates.
func Prepare(p Placement, raw []scraper.Item, offerings []Offering) []menu.CandidateItem {
	byName := make(map[string]scraper.Item, len(raw))
	for _, it := range raw {
		byName[it.Name] = it
	}

	out := make([]menu.CandidateItem, 0, len(offerings)+len(raw))
	covered := make(map[string]bool)

	for _, o := range offerings {
		c := menu.CandidateItem{
			Name:         o.Name,
			Station:      p.Station,
			Components:   append([]string(nil), o.Items...),
			Tier:         menu.TierFromServiceStyle(o.ServiceStyle),
			DiningHallID: p.DiningHallID,
			MealPeriod:   strings.ToLower(p.MealPeriod),
			Traits:       sharedTraits(byName, o.Items),
			PortionSize:  "1 meal",
		}

		allergens := make(map[string]bool)
		for _, name := range o.Items {
			it, ok := byName[name]
			if !ok {
				continue
			}
			for _, a := range it.Allergens {
				allergens[a] = true
			}
			c.Nutrients = c.Nutrients.Add(nutrientsOf(it), 1)
		}
		c.Allergens = sortedKeys(allergens)
		c.CaloriesKcal = math.Trunc(c.CaloriesKcal)

		if len(o.Items) == 1 {
			covered[o.Items[0]] = true
			if it, ok := byName[o.Items[0]]; ok {
				c.PortionSize = portionOf(it)
			}
		}
		out = append(out, c)
	}

	for _, it := range raw {
		if covered[it.Name] {
			continue
		}
		covered[it.Name] = true
		n := nutrientsOf(it)
		n.CaloriesKcal = math.Trunc(n.CaloriesKcal)
		out = append(out, menu.CandidateItem{
			Name:         it.Name,
			Station:      p.Station,
			Components:   []string{it.Name},
			Tier:         menu.TierFallback,
			Traits:       sharedTraits(byName, []string{it.Name}),
			Allergens:    append([]string{}, it.Allergens...),
			DiningHallID: p.DiningHallID,
			MealPeriod:   strings.ToLower(p.MealPeriod),
			PortionSize:  it.PortionSize,
			Nutrients:    n,
		})
	}
	return out
}

func nutrientsOf(it scraper.Item) menu.Nutrients {
	return menu.Nutrients{
		CaloriesKcal:      it.Fact(scraper.LabelCalories),
		ProteinG:          it.Fact(scraper.LabelProtein),
		TotalFatG:         it.Fact(scraper.LabelTotalFat),
		TotalCarbohydrate: it.Fact(scraper.LabelCarbohydrate),
		SugarsG:           it.Fact(scraper.LabelSugars),
		SodiumMg:          it.Fact(scraper.LabelSodium),
	}
}

func portionOf(it scraper.Item) string {
	if it.PortionSize == "" {
		return "1 serving"
	}
	return it.PortionSize
}

// sharedTraits keeps the dietary traits carried by every named item. An
// unknown component carries no traits.
func sharedTraits(byName map[string]scraper.Item, names []string) []string {
	traits := []string{}
	if len(names) == 0 {
		return traits
	}
	for _, trait := range DietaryTraits {
		all := true
		for _, name := range names {
			it, ok := byName[name]
			if !ok || !containsString(it.Traits, trait) {
				all = false
				break
			}
		}
		if all {
			traits = append(traits, trait)
		}
	}
	return traits
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
