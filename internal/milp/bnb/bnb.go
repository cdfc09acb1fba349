// Package bnb is an in-process branch-and-bound MILP solver. It is meant for
// the small models this service produces (a few hundred variables); larger
// instances should go through an external backend such as cbc.
package bnb

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"time"

	"carevrp/internal/milp"
)

const intTol = 1e-6

// Solver explores the tree best bound first. After each branching it plunges
// into the child nearest the fractional value, so incumbents show up early.
type Solver struct {
	// Defaults used when Options leaves the corresponding field zero.
	TimeLimit time.Duration
	NodeLimit int
}

// New returns a solver with conservative limits.
func New() *Solver {
	return &Solver{TimeLimit: 60 * time.Second, NodeLimit: 500000}
}

func (s *Solver) Name() string { return "bnb" }

type node struct {
	lo, hi []float64
	// bound is the parent's relaxation objective
	bound float64
}

// openNodes is a min-heap on node bound.
type openNodes []*node

func (h openNodes) Len() int           { return len(h) }
func (h openNodes) Less(i, j int) bool { return h[i].bound < h[j].bound }
func (h openNodes) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *openNodes) Push(x any)        { *h = append(*h, x.(*node)) }
func (h *openNodes) Pop() any {
	old := *h
	nd := old[len(old)-1]
	*h = old[:len(old)-1]
	return nd
}

func (s *Solver) Solve(ctx context.Context, m *milp.Model, opts milp.Options) (milp.Solution, error) {
	start := time.Now()
	p, err := newProblem(m)
	if err != nil {
		return milp.Solution{}, err
	}
	limit := opts.TimeLimit
	if limit <= 0 {
		limit = s.TimeLimit
	}
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	nodeLimit := opts.NodeLimit
	if nodeLimit <= 0 {
		nodeLimit = s.NodeLimit
	}

	var best []float64
	bestObj := math.Inf(1)
	startUsed := false
	if len(opts.Start) == m.NumVars() && len(m.Violations(opts.Start, intTol)) == 0 {
		best = p.snap(opts.Start)
		bestObj = m.Objective().Eval(best)
		startUsed = true
	}
	nodes := 0
	stop := func(reason string) milp.Solution {
		return milp.Solution{Status: milp.StatusOther, Nodes: nodes, Elapsed: time.Since(start), Reason: reason, StartUsed: startUsed}
	}
	optimal := func() milp.Solution {
		return milp.Solution{
			Status:    milp.StatusOptimal,
			Values:    best,
			Objective: bestObj,
			Nodes:     nodes,
			Elapsed:   time.Since(start),
			StartUsed: startUsed,
		}
	}
	switch {
	case best != nil && opts.MeetsBound(bestObj):
		return optimal(), nil
	case best == nil && opts.ProvedInfeasible():
		return milp.Solution{Status: milp.StatusInfeasible, Elapsed: time.Since(start)}, nil
	}
	if p.cells() > maxCells {
		return stop("model too large for the dense simplex"), nil
	}
	floor := math.Inf(-1)
	if opts.Bounded && !math.IsInf(opts.Bound, 0) {
		floor = opts.Bound
	}

	prune := func(bound float64) bool {
		return bound >= bestObj-1e-9*(1+math.Abs(bestObj))
	}
	open := &openNodes{}
	cur := &node{lo: append([]float64(nil), p.lower...), hi: append([]float64(nil), p.upper...), bound: floor}
	for {
		if cur == nil {
			if open.Len() == 0 {
				break
			}
			cur = heap.Pop(open).(*node)
			if prune(cur.bound) {
				// every open node is at least this bad
				break
			}
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return stop("time limit"), nil
			}
			return stop("canceled"), nil
		}
		if nodeLimit > 0 && nodes >= nodeLimit {
			return stop("node limit"), nil
		}
		nd := cur
		cur = nil
		nodes++

		res := p.relax(ctx, nd.lo, nd.hi)
		switch res.status {
		case lpInfeasible:
			continue
		case lpUnbounded:
			return stop("unbounded relaxation"), nil
		case lpIterLimit:
			return stop("simplex iteration limit"), nil
		case lpAborted:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return stop("time limit"), nil
			}
			return stop("canceled"), nil
		}
		if prune(res.obj) {
			continue
		}
		v := p.branchVar(res.x)
		if v < 0 {
			best = p.snap(res.x)
			bestObj = res.obj
			if opts.MeetsBound(bestObj) {
				return optimal(), nil
			}
			continue
		}
		val := res.x[v]
		down := &node{lo: nd.lo, hi: with(nd.hi, v, math.Floor(val)), bound: res.obj}
		up := &node{lo: with(nd.lo, v, math.Ceil(val)), hi: nd.hi, bound: res.obj}
		if val-math.Floor(val) >= 0.5 {
			cur = up
			heap.Push(open, down)
		} else {
			cur = down
			heap.Push(open, up)
		}
	}

	if best == nil {
		return milp.Solution{Status: milp.StatusInfeasible, Nodes: nodes, Elapsed: time.Since(start)}, nil
	}
	return optimal(), nil
}

// branchVar picks the most fractional integer variable, or -1 when x is
// integral.
func (p *problem) branchVar(x []float64) int {
	pick, worst := -1, 0.0
	for v := 0; v < p.n; v++ {
		if !p.integer[v] {
			continue
		}
		f := x[v] - math.Floor(x[v])
		d := math.Min(f, 1-f)
		if d > intTol && d > worst+1e-12 {
			pick, worst = v, d
		}
	}
	return pick
}

func (p *problem) snap(x []float64) []float64 {
	out := make([]float64, len(x))
	for v, val := range x {
		if p.integer[v] {
			val = math.Round(val)
		}
		out[v] = val
	}
	return out
}

func with(b []float64, v int, val float64) []float64 {
	out := append([]float64(nil), b...)
	out[v] = val
	return out
}
