// Package mip describes small mixed-integer linear programs and solves them
// with a branch-and-bound search over LP relaxations.
//
// A Model is built incrementally: variables first, then constraints, then an
// objective that may be replaced between solves. Variables must carry finite
// bounds, which lets every relaxation start from a dual feasible basis.
package mip

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidModel is returned when a model cannot be handed to an engine.
var ErrInvalidModel = errors.New("mip: invalid model")

// VarID identifies a variable inside the Model that created it.
type VarID int

// Var is a decision variable.
type Var struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Term is one coefficient·variable product of a linear expression.
type Term struct {
	Var  VarID
	Coef float64
}

// Sense is the comparison operator of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Constraint is a linear row: Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a linear program over integer and continuous variables.
type Model struct {
	name        string
	vars        []Var
	constraints []Constraint
	objective   []Term
	maximize    bool
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{name: name}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// AddVar adds a variable with the given bounds.
func (m *Model) AddVar(name string, lower, upper float64, integer bool) VarID {
	m.vars = append(m.vars, Var{Name: name, Lower: lower, Upper: upper, Integer: integer})
	return VarID(len(m.vars) - 1)
}

// AddInteger adds an integer variable in [lower, upper].
func (m *Model) AddInteger(name string, lower, upper int) VarID {
	return m.AddVar(name, float64(lower), float64(upper), true)
}

// AddBinary adds a 0/1 variable.
func (m *Model) AddBinary(name string) VarID {
	return m.AddVar(name, 0, 1, true)
}

// AddConstraint appends a linear constraint. The terms slice is copied.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.constraints = append(m.constraints, Constraint{
		Name:  name,
		Terms: append([]Term(nil), terms...),
		Sense: sense,
		RHS:   rhs,
	})
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(terms []Term, maximize bool) {
	m.objective = append([]Term(nil), terms...)
	m.maximize = maximize
}

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Var returns the variable with the given id.
func (m *Model) Var(id VarID) Var { return m.vars[id] }

// Constraint returns the i-th constraint.
func (m *Model) Constraint(i int) Constraint { return m.constraints[i] }

// Objective returns a copy of the objective terms and its direction.
func (m *Model) Objective() ([]Term, bool) {
	return append([]Term(nil), m.objective...), m.maximize
}

// Evaluate returns the objective value of an assignment.
func (m *Model) Evaluate(values []float64) float64 {
	var v float64
	for _, t := range m.objective {
		v += t.Coef * values[t.Var]
	}
	return v
}

// Feasible reports whether values satisfy every bound, integrality
// requirement and constraint of m within tol.
func (m *Model) Feasible(values []float64, tol float64) bool {
	if len(values) != len(m.vars) {
		return false
	}
	for i, v := range m.vars {
		x := values[i]
		if x < v.Lower-tol || x > v.Upper+tol {
			return false
		}
		if v.Integer && math.Abs(x-math.Round(x)) > tol {
			return false
		}
	}
	for _, c := range m.constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		switch c.Sense {
		case LessEq:
			if lhs > c.RHS+tol {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-tol {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}

// validate checks the structural soundness the engine relies on.
func (m *Model) validate() error {
	if len(m.vars) == 0 {
		return fmt.Errorf("%w: model has no variables", ErrInvalidModel)
	}
	for _, v := range m.vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 0) || math.IsInf(v.Upper, 0) {
			return fmt.Errorf("%w: variable %q needs finite bounds", ErrInvalidModel, v.Name)
		}
		if v.Lower > v.Upper {
			return fmt.Errorf("%w: variable %q has lower bound %g above upper bound %g", ErrInvalidModel, v.Name, v.Lower, v.Upper)
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if int(t.Var) < 0 || int(t.Var) >= len(m.vars) {
				return fmt.Errorf("%w: %s references unknown variable %d", ErrInvalidModel, where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%w: %s has a non-finite coefficient", ErrInvalidModel, where)
			}
		}
		return nil
	}
	for _, c := range m.constraints {
		if err := check(fmt.Sprintf("constraint %q", c.Name), c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("%w: constraint %q has a non-finite right-hand side", ErrInvalidModel, c.Name)
		}
	}
	return check("objective", m.objective)
}
