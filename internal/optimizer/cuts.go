package optimizer

import (
	"fmt"

	"fuelstack/internal/mip"
)

// MinPlanDistance is the least number of items whose quantity must differ
// between any two plans of a run.
const MinPlanDistance = 3

// AddUniquenessCut forbids every selection within MinPlanDistance of prev:
// at most n − MinPlanDistance items may keep the quantity they had in prev.
// prev must come from an accepted plan; a quantity outside [0, MaxQuantity]
// or an id outside the catalog panics.
func AddUniquenessCut(f *Formulation, prev Selection, iteration int) {
	known := make(map[int64]bool, len(f.Items))
	terms := make([]mip.Term, len(f.Items))
	for i, it := range f.Items {
		known[it.ID] = true
		q := prev[it.ID]
		if q < 0 || q > MaxQuantity {
			panic(fmt.Sprintf("optimizer: item %d has quantity %d outside [0, %d]", it.ID, q, MaxQuantity))
		}
		terms[i] = mip.Term{Var: f.Indicators[i][q], Coef: 1}
	}
	for id, q := range prev {
		if !known[id] && q != 0 {
			panic(fmt.Sprintf("optimizer: item %d is not in the catalog", id))
		}
	}
	rhs := float64(len(f.Items) - MinPlanDistance)
	f.Model.AddConstraint(fmt.Sprintf("unique_%d", iteration), terms, mip.LessEq, rhs)
	f.cuts++
}

// Cuts returns the number of uniqueness cuts added so far.
func (f *Formulation) Cuts() int { return f.cuts }
