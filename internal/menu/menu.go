package menu

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidItem is returned by CandidateItem.Validate.
var ErrInvalidItem = errors.New("invalid candidate item")

// Tier is the convenience tier of an offering.
type Tier int

const (
	TierFallback  Tier = 1
	TierSecondary Tier = 3
	TierPrimary   Tier = 5
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierFallback || t == TierSecondary || t == TierPrimary
}

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierFallback:
		return "fallback"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Service styles produced by the bundler.
const (
	StyleBundle    = "bundle"
	StyleSelfServe = "self_serve"
	StyleDessert   = "dessert"
)

// TierFromServiceStyle maps a bundler service style to a convenience tier.
func TierFromServiceStyle(style string) Tier {
	switch style {
	case StyleBundle:
		return TierPrimary
	case StyleSelfServe:
		return TierSecondary
	default:
		return TierFallback
	}
}

// Nutrient names one of the tracked nutrients.
type Nutrient string

const (
	Calories     Nutrient = "calories_kcal"
	Protein      Nutrient = "protein_g"
	TotalFat     Nutrient = "total_fat_g"
	Carbohydrate Nutrient = "total_carbohydrate_g"
	Sugars       Nutrient = "sugars_g"
	Sodium       Nutrient = "sodium_mg"
)

// AllNutrients lists every tracked nutrient in a fixed order.
var AllNutrients = []Nutrient{Calories, Protein, TotalFat, Carbohydrate, Sugars, Sodium}

// Nutrients holds per-unit (or aggregated) nutrient amounts.
type Nutrients struct {
	CaloriesKcal      float64 `json:"calories_kcal"`
	ProteinG          float64 `json:"protein_g"`
	TotalFatG         float64 `json:"total_fat_g"`
	TotalCarbohydrate float64 `json:"total_carbohydrate_g"`
	SugarsG           float64 `json:"sugars_g"`
	SodiumMg          float64 `json:"sodium_mg"`
}

// Get returns the amount of n.
func (v Nutrients) Get(n Nutrient) float64 {
	switch n {
	case Calories:
		return v.CaloriesKcal
	case Protein:
		return v.ProteinG
	case TotalFat:
		return v.TotalFatG
	case Carbohydrate:
		return v.TotalCarbohydrate
	case Sugars:
		return v.SugarsG
	case Sodium:
		return v.SodiumMg
	}
	return 0
}

// Add returns v plus qty units of o.
func (v Nutrients) Add(o Nutrients, qty float64) Nutrients {
	return Nutrients{
		CaloriesKcal:      v.CaloriesKcal + qty*o.CaloriesKcal,
		ProteinG:          v.ProteinG + qty*o.ProteinG,
		TotalFatG:         v.TotalFatG + qty*o.TotalFatG,
		TotalCarbohydrate: v.TotalCarbohydrate + qty*o.TotalCarbohydrate,
		SugarsG:           v.SugarsG + qty*o.SugarsG,
		SodiumMg:          v.SodiumMg + qty*o.SodiumMg,
	}
}

// Validate rejects negative or non-finite amounts.
func (v Nutrients) Validate() error {
	for _, n := range AllNutrients {
		x := v.Get(n)
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return fmt.Errorf("%s must be a non-negative number, got %v", n, x)
		}
	}
	return nil
}

// CandidateItem is a scoreable offering the optimizer may select.
type CandidateItem struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Station      string   `json:"station"`
	Components   []string `json:"components"`
	Tier         Tier     `json:"convenience_score"`
	Traits       []string `json:"traits"`
	Allergens    []string `json:"allergens"`
	DiningHallID int64    `json:"dining_hall_id"`
	MealPeriod   string   `json:"meal_period"`
	PortionSize  string   `json:"portion_size,omitempty"`
	Nutrients
}

// IsMain reports whether the item counts as a main.
func (c CandidateItem) IsMain() bool { return c.Tier == TierPrimary }

// HasTrait reports whether the item carries trait (case-insensitive).
func (c CandidateItem) HasTrait(trait string) bool {
	return containsFold(c.Traits, trait)
}

// HasAllergen reports whether the item lists allergen (case-insensitive).
func (c CandidateItem) HasAllergen(allergen string) bool {
	return containsFold(c.Allergens, allergen)
}

// Validate checks the item before it reaches the optimizer.
func (c CandidateItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: item %d has no name", ErrInvalidItem, c.ID)
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("%w: item %q has unknown tier %d", ErrInvalidItem, c.Name, int(c.Tier))
	}
	if err := c.Nutrients.Validate(); err != nil {
		return fmt.Errorf("%w: item %q: %v", ErrInvalidItem, c.Name, err)
	}
	return nil
}

// Hall is a dining location whose menu is scraped.
type Hall struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
