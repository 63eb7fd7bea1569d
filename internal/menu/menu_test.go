package menu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFromServiceStyle(t *testing.T) {
	assert.Equal(t, TierPrimary, TierFromServiceStyle(StyleBundle))
	assert.Equal(t, TierSecondary, TierFromServiceStyle(StyleSelfServe))
	assert.Equal(t, TierFallback, TierFromServiceStyle(StyleDessert))
	assert.Equal(t, TierFallback, TierFromServiceStyle(""))
}

func TestCandidateItem_Validate(t *testing.T) {
	valid := CandidateItem{ID: 1, Name: "Roast", Tier: TierPrimary, Nutrients: Nutrients{CaloriesKcal: 500, ProteinG: 40}}

	tests := []struct {
		name    string
		mutate  func(*CandidateItem)
		wantErr bool
	}{
		{"valid", func(*CandidateItem) {}, false},
		{"missing name", func(c *CandidateItem) { c.Name = "  " }, true},
		{"unknown tier", func(c *CandidateItem) { c.Tier = 4 }, true},
		{"negative nutrient", func(c *CandidateItem) { c.SodiumMg = -1 }, true},
		{"nan nutrient", func(c *CandidateItem) { c.ProteinG = math.NaN() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid
			tt.mutate(&item)
			err := item.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidItem)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNutrients_Add(t *testing.T) {
	a := Nutrients{CaloriesKcal: 100, ProteinG: 10, SodiumMg: 5}
	b := Nutrients{CaloriesKcal: 50, SugarsG: 2}
	sum := a.Add(b, 2)
	assert.Equal(t, 200.0, sum.Get(Calories))
	assert.Equal(t, 10.0, sum.Get(Protein))
	assert.Equal(t, 4.0, sum.Get(Sugars))
	assert.Equal(t, 5.0, sum.Get(Sodium))
}

func TestNutrientBounds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		bounds  NutrientBounds
		wantErr bool
	}{
		{"calories only", NutrientBounds{Calories: Between(600, 900)}, false},
		{"with optional", NutrientBounds{Calories: Between(600, 900), Protein: AtLeast(30), Sodium: AtMost(1500)}, false},
		{"missing calories", NutrientBounds{Protein: AtLeast(30)}, true},
		{"calories without max", NutrientBounds{Calories: AtLeast(600)}, true},
		{"min above max", NutrientBounds{Calories: Between(900, 600)}, true},
		{"negative", NutrientBounds{Calories: Between(600, 900), TotalFat: AtMost(-1)}, true},
		{"unknown nutrient", NutrientBounds{Calories: Between(600, 900), "fiber_g": AtLeast(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bounds.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBounds)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRange_Contains(t *testing.T) {
	r := Between(10, 20)
	assert.True(t, r.Contains(10, 0))
	assert.True(t, r.Contains(20.0000001, 1e-6))
	assert.False(t, r.Contains(21, 1e-6))
	assert.True(t, Range{}.Contains(1e9, 0))
	assert.False(t, Range{}.IsSet())
}
