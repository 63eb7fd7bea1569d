package optimizer

import "fuelstack/internal/menu"

// Selection maps an item id to its chosen quantity. Missing ids are 0.
type Selection map[int64]int

// Distance counts the items whose quantity differs between s and o.
func (s Selection) Distance(o Selection) int {
	d := 0
	for id, q := range s {
		if o[id] != q {
			d++
		}
	}
	for id, q := range o {
		if _, ok := s[id]; !ok && q != 0 {
			d++
		}
	}
	return d
}

// PlanItem is one selected item and how many units of it.
type PlanItem struct {
	menu.CandidateItem
	Quantity int `json:"quantity"`
}

// MealPlan is one accepted combination, items in catalog order.
type MealPlan struct {
	Items  []PlanItem     `json:"options"`
	Totals menu.Nutrients `json:"totals"`
	Score  float64        `json:"score"`
}

// Selection returns the plan as an id → quantity map.
func (p MealPlan) Selection() Selection {
	s := make(Selection, len(p.Items))
	for _, it := range p.Items {
		s[it.ID] = it.Quantity
	}
	return s
}

// StopReason says why enumeration ended.
type StopReason string

const (
	StopCountReached StopReason = "count_reached"
	StopExhausted    StopReason = "exhausted"
	StopBudget       StopReason = "budget"
)

// PlanSet is the result of one run, plans in discovery order.
type PlanSet struct {
	RunID      string     `json:"run_id"`
	Plans      []MealPlan `json:"plans"`
	StopReason StopReason `json:"stop_reason"`
	Solves     int        `json:"solves"`
}
