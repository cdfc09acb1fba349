package milp

import (
	"context"
	"math"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	// StatusOther covers limits (time, nodes), cancellation and anything else
	// that ended the search without a proof.
	StatusOther Status = iota
	StatusOptimal
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "other"
	}
}

// Solution is what a backend returns. Values is populated (one entry per
// model variable) only when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Elapsed   time.Duration
	Reason    string
	// StartUsed is set when the backend verified Options.Start and took it
	// as its first incumbent.
	StartUsed bool
}

// Value reads one variable from an optimal solution.
func (s Solution) Value(v Var) float64 {
	if v < 0 || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Options bound a solve. Zero values mean "backend default".
type Options struct {
	TimeLimit time.Duration
	NodeLimit int
	// Start is an optional full assignment offered as a first incumbent.
	// Backends verify it and ignore it when infeasible.
	Start []float64
	// Bound, when Bounded is set, is a proven lower bound on the optimal
	// objective; +Inf means the model has no feasible assignment. A backend
	// may stop as soon as its incumbent reaches it.
	Bound   float64
	Bounded bool
}

// boundTol is the slack allowed between an incumbent and a proven bound.
func boundTol(bound float64) float64 { return 1e-6 * (1 + math.Abs(bound)) }

// MeetsBound reports whether obj proves optimality against the bound in o.
func (o Options) MeetsBound(obj float64) bool {
	if !o.Bounded || math.IsInf(o.Bound, 0) || math.IsNaN(obj) {
		return false
	}
	return obj <= o.Bound+boundTol(o.Bound)
}

// ProvedInfeasible reports whether o carries an infeasibility proof.
func (o Options) ProvedInfeasible() bool { return o.Bounded && math.IsInf(o.Bound, 1) }

// Solver is a mixed-integer backend. Search outcomes (optimal, infeasible,
// limit) are reported through Solution.Status; the error is reserved for
// execution failures.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model, opts Options) (Solution, error)
}
