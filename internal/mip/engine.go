package mip

import (
	"context"
	"errors"
)

// ErrEngine wraps failures of the underlying LP routine that are neither
// infeasibility nor a cancelled context.
var ErrEngine = errors.New("mip: engine failure")

// Status is the outcome of a solve.
type Status int

const (
	// StatusOptimal means Values is a proven optimum.
	StatusOptimal Status = iota
	// StatusInfeasible means no integer assignment satisfies the model.
	StatusInfeasible
	// StatusNodeLimit means the search stopped early. Values may hold the
	// best assignment found so far, but it is not proven optimal.
	StatusNodeLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusNodeLimit:
		return "node_limit"
	default:
		return "unknown"
	}
}

// Solution is what an Engine reports back.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Value returns the solved value of v, or 0 when no assignment is present.
func (s Solution) Value(v VarID) float64 {
	if int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Engine solves a Model to integer optimality.
type Engine interface {
	Solve(ctx context.Context, m *Model) (Solution, error)
}
