package optimizer

import (
	"fmt"
	"math"

	"fuelstack/internal/menu"
	"fuelstack/internal/mip"
)

// Selection limits.
const (
	MaxQuantity = 2
	MinMains    = 1
	MaxMains    = 3
	MaxSides    = 3
)

// Formulation is the integer program for one run together with the handles
// the rest of the loop needs.
type Formulation struct {
	Model    *mip.Model
	Items    []menu.CandidateItem
	Quantity []mip.VarID
	// Indicators[i][q] is 1 exactly when item i is taken q times.
	Indicators [][MaxQuantity + 1]mip.VarID
	Scores     []float64
	cuts       int
}

// Build validates the catalog and bounds and formulates the base model:
// quantity variables, their indicator triples, count constraints and
// nutrient constraints. The objective is set separately by ApplyObjective.
func Build(items []menu.CandidateItem, bounds menu.NutrientBounds) (*Formulation, error) {
	if len(items) == 0 {
		return nil, configErr(nil, "candidate catalog is empty")
	}
	if err := bounds.Validate(); err != nil {
		return nil, configErr(err, "nutrient bounds rejected")
	}

	seen := make(map[int64]bool, len(items))
	mains := 0
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, configErr(err, "candidate catalog rejected")
		}
		if seen[it.ID] {
			return nil, configErr(nil, "duplicate item id %d", it.ID)
		}
		seen[it.ID] = true
		if it.IsMain() {
			mains++
		}
	}
	if mains == 0 {
		return nil, configErr(nil, "catalog has no primary item")
	}

	f := &Formulation{
		Model:      mip.NewModel("meal-plan"),
		Items:      append([]menu.CandidateItem(nil), items...),
		Quantity:   make([]mip.VarID, len(items)),
		Indicators: make([][MaxQuantity + 1]mip.VarID, len(items)),
		Scores:     make([]float64, len(items)),
	}
	m := f.Model

	for i, it := range f.Items {
		f.Scores[i] = Score(it)
		q := m.AddInteger(fmt.Sprintf("qty_%d", it.ID), 0, MaxQuantity)
		f.Quantity[i] = q

		one := make([]mip.Term, 0, MaxQuantity+1)
		link := []mip.Term{{Var: q, Coef: 1}}
		for v := 0; v <= MaxQuantity; v++ {
			z := m.AddBinary(fmt.Sprintf("is_%d_%d", it.ID, v))
			f.Indicators[i][v] = z
			one = append(one, mip.Term{Var: z, Coef: 1})
			if v > 0 {
				link = append(link, mip.Term{Var: z, Coef: -float64(v)})
			}
		}
		m.AddConstraint(fmt.Sprintf("one_value_%d", it.ID), one, mip.Equal, 1)
		m.AddConstraint(fmt.Sprintf("link_%d", it.ID), link, mip.Equal, 0)
	}

	f.addCountConstraints()
	f.addNutrientConstraints(bounds)
	return f, nil
}

// addCountConstraints bounds the number of distinct mains and sides taken.
// An item is taken when its zero indicator is off, so with M mains
// "taken >= 1" is Σ zero <= M-1 and "taken <= 3" is Σ zero >= M-3.
func (f *Formulation) addCountConstraints() {
	var mains, sides []mip.Term
	for i, it := range f.Items {
		t := mip.Term{Var: f.Indicators[i][0], Coef: 1}
		if it.IsMain() {
			mains = append(mains, t)
		} else {
			sides = append(sides, t)
		}
	}

	m := f.Model
	m.AddConstraint("mains_min", mains, mip.LessEq, float64(len(mains)-MinMains))
	if len(mains) > MaxMains {
		m.AddConstraint("mains_max", mains, mip.GreaterEq, float64(len(mains)-MaxMains))
	}
	if len(sides) > MaxSides {
		m.AddConstraint("sides_max", sides, mip.GreaterEq, float64(len(sides)-MaxSides))
	}
}

func (f *Formulation) addNutrientConstraints(bounds menu.NutrientBounds) {
	for _, n := range menu.AllNutrients {
		r := bounds.Range(n)
		if !r.IsSet() {
			continue
		}
		terms := make([]mip.Term, 0, len(f.Items))
		for i, it := range f.Items {
			if amount := it.Get(n); amount != 0 {
				terms = append(terms, mip.Term{Var: f.Quantity[i], Coef: amount})
			}
		}
		if r.Min != nil {
			f.Model.AddConstraint(string(n)+"_min", terms, mip.GreaterEq, *r.Min)
		}
		if r.Max != nil {
			f.Model.AddConstraint(string(n)+"_max", terms, mip.LessEq, *r.Max)
		}
	}
}

// Plan reads the accepted plan out of an engine solution.
func (f *Formulation) Plan(sol mip.Solution) MealPlan {
	var plan MealPlan
	for i, it := range f.Items {
		qty := int(math.Round(sol.Value(f.Quantity[i])))
		if qty <= 0 {
			continue
		}
		plan.Items = append(plan.Items, PlanItem{CandidateItem: it, Quantity: qty})
		plan.Totals = plan.Totals.Add(it.Nutrients, float64(qty))
		plan.Score += float64(qty) * f.Scores[i]
	}
	return plan
}
