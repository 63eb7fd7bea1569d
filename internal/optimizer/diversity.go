package optimizer

import "fuelstack/internal/mip"

// DefaultReusePenalty is the objective cost of reusing an item once.
const DefaultReusePenalty = 300.0

// ReuseCounters maps an item id to the number of accepted plans using it.
type ReuseCounters map[int64]int

// DiversityTracker counts item reuse within a single run.
type DiversityTracker struct {
	lambda float64
	counts ReuseCounters
}

// NewDiversityTracker returns a tracker with all counters at zero.
func NewDiversityTracker(lambda float64) *DiversityTracker {
	return &DiversityTracker{lambda: lambda, counts: make(ReuseCounters)}
}

// Penalty returns the per-unit objective penalty for item id.
func (d *DiversityTracker) Penalty(id int64) float64 {
	return d.lambda * float64(d.counts[id])
}

// Record increments the counter of every item in plan.
func (d *DiversityTracker) Record(plan MealPlan) {
	for _, it := range plan.Items {
		if it.Quantity > 0 {
			d.counts[it.ID]++
		}
	}
}

// Counters returns a snapshot of the current counters.
func (d *DiversityTracker) Counters() ReuseCounters {
	out := make(ReuseCounters, len(d.counts))
	for id, n := range d.counts {
		out[id] = n
	}
	return out
}

// ApplyObjective replaces the objective of f with
// Σ qty_i·(score_i − lambda·counters[id_i]).
func ApplyObjective(f *Formulation, counters ReuseCounters, lambda float64) {
	terms := make([]mip.Term, len(f.Items))
	for i, it := range f.Items {
		terms[i] = mip.Term{
			Var:  f.Quantity[i],
			Coef: f.Scores[i] - lambda*float64(counters[it.ID]),
		}
	}
	f.Model.SetObjective(terms, true)
}
