package mip

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivotTol   = 1e-9
	dualTol    = 1e-9
	blandAfter = 50
)

// tableau is a bounded-variable LP in the form
//
//	minimize  cost·x
//	s.t.      A·x + s = rhs,  lo <= (x, s) <= hi
//
// held as the explicit product B⁻¹[A I]. Every structural column is boxed,
// so placing each nonbasic column at the bound its cost prefers makes the
// all-slack basis dual feasible and the dual simplex alone reaches the
// optimum. Branching only tightens bounds, which keeps a parent's optimal
// basis dual feasible for its children.
type tableau struct {
	rows, cols int
	t          *mat.Dense
	d          []float64 // reduced costs
	lo, hi     []float64
	x          []float64
	atUpper    []bool
	basis      []int // basis[r] is the column basic in row r
	row        []int // row[j] is the row of basic column j, or -1
}

// newTableau builds the root relaxation of m for the (minimized) cost
// vector over structural bounds lo and hi.
func newTableau(m *Model, cost, lo, hi []float64) *tableau {
	n, r := len(m.vars), len(m.constraints)
	cols := n + r
	tb := &tableau{
		rows:    r,
		cols:    cols,
		t:       mat.NewDense(max(r, 1), cols, nil),
		d:       make([]float64, cols),
		lo:      make([]float64, cols),
		hi:      make([]float64, cols),
		x:       make([]float64, cols),
		atUpper: make([]bool, cols),
		basis:   make([]int, r),
		row:     make([]int, cols),
	}
	copy(tb.d, cost)
	copy(tb.lo, lo)
	copy(tb.hi, hi)
	for j := 0; j < n; j++ {
		tb.row[j] = -1
		if tb.d[j] < 0 {
			tb.x[j], tb.atUpper[j] = hi[j], true
		} else {
			tb.x[j] = lo[j]
		}
	}

	for i, c := range m.constraints {
		s := n + i
		switch c.Sense {
		case LessEq:
			tb.lo[s], tb.hi[s] = 0, math.Inf(1)
		case GreaterEq:
			tb.lo[s], tb.hi[s] = math.Inf(-1), 0
		case Equal:
			tb.lo[s], tb.hi[s] = 0, 0
		}
		row := tb.t.RawRowView(i)
		v := c.RHS
		for _, term := range c.Terms {
			row[term.Var] += term.Coef
			v -= term.Coef * tb.x[term.Var]
		}
		row[s] = 1
		tb.x[s] = v
		tb.basis[i] = s
		tb.row[s] = i
	}
	return tb
}

func (tb *tableau) clone() *tableau {
	return &tableau{
		rows:    tb.rows,
		cols:    tb.cols,
		t:       mat.DenseCopyOf(tb.t),
		d:       append([]float64(nil), tb.d...),
		lo:      append([]float64(nil), tb.lo...),
		hi:      append([]float64(nil), tb.hi...),
		x:       append([]float64(nil), tb.x...),
		atUpper: append([]bool(nil), tb.atUpper...),
		basis:   append([]int(nil), tb.basis...),
		row:     append([]int(nil), tb.row...),
	}
}

// setBounds tightens column j to [lo, hi]. A nonbasic column moves with its
// bound; a basic one is left for the dual simplex to repair.
func (tb *tableau) setBounds(j int, lo, hi float64) {
	tb.lo[j], tb.hi[j] = lo, hi
	if tb.row[j] >= 0 {
		return
	}
	v := lo
	if tb.atUpper[j] {
		v = hi
	}
	tb.shift(j, v-tb.x[j])
}

// shift moves nonbasic column j by delta and updates the basic values.
func (tb *tableau) shift(j int, delta float64) {
	if delta == 0 {
		return
	}
	for i := 0; i < tb.rows; i++ {
		if a := tb.t.At(i, j); a != 0 {
			tb.x[tb.basis[i]] -= a * delta
		}
	}
	tb.x[j] += delta
}

// violation returns how far basic column j lies outside its bounds,
// negative below and positive above.
func (tb *tableau) violation(j int) float64 {
	switch x := tb.x[j]; {
	case x < tb.lo[j]-feasTol*(1+math.Abs(tb.lo[j])):
		return x - tb.lo[j]
	case x > tb.hi[j]+feasTol*(1+math.Abs(tb.hi[j])):
		return x - tb.hi[j]
	}
	return 0
}

// leaving picks the row whose basic column is most out of bounds, or with
// bland set, the out-of-bounds basic column of lowest index.
func (tb *tableau) leaving(bland bool) (int, float64) {
	r, viol := -1, 0.0
	for i := 0; i < tb.rows; i++ {
		v := tb.violation(tb.basis[i])
		if v == 0 {
			continue
		}
		if bland {
			if r < 0 || tb.basis[i] < tb.basis[r] {
				r, viol = i, v
			}
		} else if math.Abs(v) > math.Abs(viol) {
			r, viol = i, v
		}
	}
	return r, viol
}

// entering runs the dual ratio test on row r. It returns -1 when no column
// can restore the row, which proves the LP infeasible.
func (tb *tableau) entering(r int, below, bland bool) (int, float64) {
	row := tb.t.RawRowView(r)
	q, best, bestAbs := -1, math.Inf(1), 0.0
	for j, a := range row {
		if tb.row[j] >= 0 || tb.lo[j] == tb.hi[j] || math.Abs(a) < pivotTol {
			continue
		}
		// The basic value moves by -a per unit of increase in column j.
		increases := !tb.atUpper[j]
		if below != (increases == (a < 0)) {
			continue
		}
		ratio := math.Abs(tb.d[j]) / math.Abs(a)
		switch {
		case ratio < best-dualTol:
			q, best, bestAbs = j, ratio, math.Abs(a)
		case ratio <= best+dualTol && !bland && math.Abs(a) > bestAbs:
			q, best, bestAbs = j, math.Min(ratio, best), math.Abs(a)
		}
	}
	return q, best
}

// pivot brings column q into the basis at row r. The leaving column is
// parked at target.
func (tb *tableau) pivot(r, q int, target float64, toUpper bool) {
	p := tb.basis[r]
	a := tb.t.At(r, q)
	tb.shift(q, (tb.x[p]-target)/a)
	tb.x[p] = target
	tb.atUpper[p] = toUpper

	pr := tb.t.RawRowView(r)
	floats.Scale(1/a, pr)
	for i := 0; i < tb.rows; i++ {
		if i == r {
			continue
		}
		ri := tb.t.RawRowView(i)
		if f := ri[q]; f != 0 {
			floats.AddScaled(ri, -f, pr)
			ri[q] = 0
		}
	}
	if f := tb.d[q]; f != 0 {
		floats.AddScaled(tb.d, -f, pr)
	}
	tb.d[q] = 0
	pr[q] = 1

	tb.basis[r] = q
	tb.row[q] = r
	tb.row[p] = -1
}

// solve runs the dual simplex until the basis is primal feasible. It reports
// false when the LP is infeasible. ctx is checked before every pivot and
// more than limit pivots is an engine failure.
func (tb *tableau) solve(ctx context.Context, limit int) (bool, error) {
	bland := false
	degenerate := 0
	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		r, viol := tb.leaving(bland)
		if r < 0 {
			return true, nil
		}
		if iter >= limit {
			return false, fmt.Errorf("%w: simplex did not converge within %d pivots", ErrEngine, limit)
		}
		below := viol < 0
		q, ratio := tb.entering(r, below, bland)
		if q < 0 {
			return false, nil
		}

		p := tb.basis[r]
		if below {
			tb.pivot(r, q, tb.lo[p], false)
		} else {
			tb.pivot(r, q, tb.hi[p], true)
		}

		if ratio <= dualTol {
			degenerate++
			if degenerate >= blandAfter {
				bland = true
			}
		} else {
			degenerate = 0
		}
	}
}

// values returns the structural part of the current assignment, clamped
// into bounds.
func (tb *tableau) values(n int) []float64 {
	out := make([]float64, n)
	for j := 0; j < n; j++ {
		out[j] = math.Min(tb.hi[j], math.Max(tb.lo[j], tb.x[j]))
	}
	return out
}
