package mip

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	defaultIntTol = 1e-6
	feasTol       = 1e-8
	pruneTol      = 1e-9
	// Pivot allowance per LP is pivotsPerDim·(rows+columns) unless set.
	pivotsPerDim = 50
)

// BranchAndBound is a depth-first branch-and-bound Engine. Each node solves
// its LP relaxation with a bounded dual simplex warm-started from the
// parent's optimal basis and branches on the first fractional integer
// variable.
type BranchAndBound struct {
	maxNodes int
	maxIter  int
	intTol   float64
}

// Option configures a BranchAndBound.
type Option func(*BranchAndBound)

// WithMaxNodes caps the number of explored nodes. Zero means no cap.
func WithMaxNodes(n int) Option {
	return func(b *BranchAndBound) { b.maxNodes = n }
}

// WithMaxIterations caps the simplex pivots spent on a single relaxation.
// Exceeding it fails the solve with ErrEngine. Zero picks a cap from the
// model size.
func WithMaxIterations(n int) Option {
	return func(b *BranchAndBound) { b.maxIter = n }
}

// WithIntegralityTolerance sets how far from an integer a value may be and
// still count as integral.
func WithIntegralityTolerance(tol float64) Option {
	return func(b *BranchAndBound) { b.intTol = tol }
}

// NewBranchAndBound returns an engine with the given options applied.
func NewBranchAndBound(opts ...Option) *BranchAndBound {
	b := &BranchAndBound{intTol: defaultIntTol}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// node is an open subproblem: the parent's solved tableau plus one bound
// change. The parent is shared by both children and never mutated.
type node struct {
	parent *tableau
	bound  float64 // parent relaxation value
	col    int
	lo, hi float64
}

// Solve implements Engine. The search order is fixed, so identical models
// always yield identical solutions. ctx is honoured between simplex pivots.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (Solution, error) {
	if err := m.validate(); err != nil {
		return Solution{}, err
	}

	n := len(m.vars)
	lo, hi := make([]float64, n), make([]float64, n)
	for i, v := range m.vars {
		l, h := v.Lower, v.Upper
		if v.Integer {
			l, h = math.Ceil(l-b.intTol), math.Floor(h+b.intTol)
		}
		if l > h {
			return Solution{Status: StatusInfeasible}, nil
		}
		lo[i], hi[i] = l, h
	}

	sign := -1.0
	if m.maximize {
		sign = 1.0
	}
	obj := make([]float64, n)
	cost := make([]float64, n)
	for _, t := range m.objective {
		obj[t.Var] += sign * t.Coef
	}
	for i, c := range obj {
		cost[i] = -c
	}

	root := newTableau(m, cost, lo, hi)
	limit := b.maxIter
	if limit <= 0 {
		limit = pivotsPerDim * (root.rows + root.cols)
	}

	var (
		best      float64
		incumbent []float64
		nodes     int
		stack     = []node{{col: -1}}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Solution{}, err
		}
		if b.maxNodes > 0 && nodes >= b.maxNodes {
			return b.result(m, StatusNodeLimit, incumbent, nodes), nil
		}

		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if incumbent != nil && cur.parent != nil && cur.bound <= best+pruneTol {
			continue
		}
		nodes++

		tb := root
		if cur.parent != nil {
			tb = cur.parent.clone()
			tb.setBounds(cur.col, cur.lo, cur.hi)
		}
		ok, err := tb.solve(ctx, limit)
		if err != nil {
			return Solution{Nodes: nodes}, err
		}
		if !ok {
			continue
		}
		x := tb.values(n)
		val := floats.Dot(obj, x)
		if incumbent != nil && val <= best+pruneTol {
			continue
		}

		j := b.fractional(m, x)
		if j < 0 {
			for i, v := range m.vars {
				if v.Integer {
					x[i] = math.Round(x[i])
				}
			}
			best, incumbent = floats.Dot(obj, x), x
			continue
		}

		f := x[j]
		down := node{parent: tb, bound: val, col: j, lo: tb.lo[j], hi: math.Floor(f)}
		up := node{parent: tb, bound: val, col: j, lo: math.Ceil(f), hi: tb.hi[j]}
		// Last pushed is explored first.
		if f-math.Floor(f) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	if incumbent == nil {
		return Solution{Status: StatusInfeasible, Nodes: nodes}, nil
	}
	return b.result(m, StatusOptimal, incumbent, nodes), nil
}

func (b *BranchAndBound) result(m *Model, status Status, values []float64, nodes int) Solution {
	sol := Solution{Status: status, Values: values, Nodes: nodes}
	if values != nil {
		sol.Objective = m.Evaluate(values)
	}
	return sol
}

func (b *BranchAndBound) fractional(m *Model, x []float64) int {
	for i, v := range m.vars {
		if v.Integer && math.Abs(x[i]-math.Round(x[i])) > b.intTol {
			return i
		}
	}
	return -1
}
