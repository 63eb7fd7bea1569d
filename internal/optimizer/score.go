package optimizer

import "fuelstack/internal/menu"

// Score weights.
const (
	BasePrimary   = 1000.0
	BaseSecondary = 500.0
	BaseFallback  = 1.0

	ProteinWeight      = 15.0
	CarbohydrateWeight = 0.5
	CalorieWeight      = 0.2
)

// Score returns the static desirability of one unit of item.
func Score(item menu.CandidateItem) float64 {
	base := BaseFallback
	switch item.Tier {
	case menu.TierPrimary:
		base = BasePrimary
	case menu.TierSecondary:
		base = BaseSecondary
	}
	return base +
		ProteinWeight*item.ProteinG -
		CarbohydrateWeight*item.TotalCarbohydrate -
		CalorieWeight*item.CaloriesKcal
}
