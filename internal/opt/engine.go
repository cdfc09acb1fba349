// Package opt turns a routing instance into an arc-flow MILP, hands it to a
// milp.Solver and decodes the answer into per-agent tours.
package opt

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"carevrp/internal/milp"
	"carevrp/internal/vrp"
)

// Stage is a step of one solve. Empty and Done are terminal.
type Stage string

const (
	StageBuilding   Stage = "building"
	StageSolving    Stage = "solving"
	StageExtracting Stage = "extracting"
	StageEmpty      Stage = "empty"
	StageDone       Stage = "done"
)

// Status explains a result. Only StatusOptimal carries routes.
type Status string

const (
	StatusOptimal         Status = "optimal"
	StatusInfeasible      Status = "infeasible"
	StatusSkillsUncovered Status = "skills_uncovered"
	StatusLimit           Status = "limit"
	StatusSolverError     Status = "solver_error"
	StatusInvalidSolution Status = "invalid_solution"
)

// Stats describes the model and the search behind a result. Seed names
// where the offered start came from ("exact" or "greedy"); Bound is the
// proven lower bound handed to the backend, 0 when none. WarmStart reports
// whether the backend accepted the start.
type Stats struct {
	Backend     string
	Variables   int
	Constraints int
	Integers    int
	BigM        float64
	WarmStart   bool
	Seed        string
	Bound       float64
	Nodes       int
	Objective   float64
	SolveTime   time.Duration
}

// Result maps agent id to route. It is built once per solve and not
// modified afterwards.
type Result struct {
	Status    Status
	Routes    map[int]AgentRoute
	Uncovered []string
	Reason    string
	Stats     Stats
}

// Empty reports whether no agent has a route.
func (r Result) Empty() bool { return len(r.Routes) == 0 }

// Distance is the fleet total of the reported routes.
func (r Result) Distance() float64 {
	total := 0.0
	for _, ar := range r.Routes {
		total += ar.TotalDistance
	}
	return total
}

// Engine runs BUILDING -> SOLVING -> EXTRACTING/EMPTY -> DONE for one
// instance at a time. It holds no per-solve state, so one Engine may serve
// concurrent callers as long as its Solver does.
type Engine struct {
	Solver milp.Solver
	Config Config
	Logger *log.Logger
	// Observe, when set, is called on every stage transition.
	Observe func(Stage)
}

func NewEngine(s milp.Solver, cfg Config) *Engine {
	return &Engine{Solver: s, Config: cfg}
}

func (e *Engine) logf(format string, args ...any) {
	l := e.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

func (e *Engine) stage(s Stage) {
	if e.Observe != nil {
		e.Observe(s)
	}
}

// Solve validates in and solves it. The error is non-nil only for invalid
// or oversized instances; every other outcome is a Result whose Status says
// what happened.
func (e *Engine) Solve(ctx context.Context, in *vrp.Instance) (Result, error) {
	cfg := e.Config
	if err := in.Validate(cfg.Limits); err != nil {
		return Result{}, err
	}
	cat, err := vrp.NewCatalog(in)
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	e.stage(StageBuilding)

	if missing := vrp.UncoveredSkills(in, cat); len(missing) > 0 {
		e.logf("engine: skills not covered by any agent: %s", strings.Join(missing, ", "))
		return e.empty(Result{Status: StatusSkillsUncovered, Uncovered: missing}), nil
	}

	dm := vrp.NewDistanceMatrix(in.Nodes())
	am, err := BuildModel(in, dm, cfg)
	if err != nil {
		e.logf("engine: build model: %v", err)
		return e.empty(Result{Status: StatusSolverError, Reason: err.Error()}), nil
	}
	res := Result{Stats: Stats{
		Backend:     e.Solver.Name(),
		Variables:   am.Model.NumVars(),
		Constraints: am.Model.NumConstraints(),
		Integers:    am.Model.NumIntegers(),
		BigM:        am.BigM,
	}}
	opts := milp.Options{TimeLimit: cfg.TimeLimit, NodeLimit: cfg.NodeLimit}
	if cfg.WarmStart || cfg.ExactTasks > 0 {
		seed := NewSeed(am, cfg)
		if seed.Proven {
			opts.Bound, opts.Bounded = seed.Bound, true
			if !math.IsInf(seed.Bound, 1) {
				res.Stats.Bound = seed.Bound
			}
		}
		if cfg.WarmStart && seed.Values != nil {
			opts.Start = seed.Values
			res.Stats.Seed = seed.Source
		}
	}

	e.stage(StageSolving)
	sol, err := runSolver(ctx, e.Solver, am.Model, opts)
	res.Stats.WarmStart = sol.StartUsed
	res.Stats.Nodes = sol.Nodes
	res.Stats.SolveTime = sol.Elapsed
	if err != nil {
		e.logf("engine: %s failed: %v", e.Solver.Name(), err)
		res.Status, res.Reason = StatusSolverError, err.Error()
		return e.empty(res), nil
	}
	switch sol.Status {
	case milp.StatusInfeasible:
		res.Status = StatusInfeasible
		e.logf("engine: infeasible tasks=%d agents=%d elapsed=%s", len(in.Tasks), len(in.Agents), time.Since(start))
		return e.empty(res), nil
	case milp.StatusOptimal:
	default:
		res.Status, res.Reason = StatusLimit, sol.Reason
		e.logf("engine: no proof of optimality (%s) after %d nodes", sol.Reason, sol.Nodes)
		return e.empty(res), nil
	}
	if len(sol.Values) != am.Model.NumVars() {
		res.Status = StatusSolverError
		res.Reason = fmt.Sprintf("solver returned %d values for %d variables", len(sol.Values), am.Model.NumVars())
		e.logf("engine: %s", res.Reason)
		return e.empty(res), nil
	}

	e.stage(StageExtracting)
	routes := ExtractRoutes(am, sol.Values)
	if bad := ValidateRoutes(in, cfg, routes); len(bad) > 0 {
		e.logf("engine: decoded routes rejected: %s", strings.Join(bad, "; "))
		res.Status, res.Reason = StatusInvalidSolution, bad[0]
		return e.empty(res), nil
	}
	res.Status = StatusOptimal
	res.Stats.Objective = sol.Objective
	res.Routes = AssembleRoutes(in, routes)
	e.stage(StageDone)
	e.logf("engine: optimal tasks=%d agents=%d distance=%.3f nodes=%d elapsed=%s",
		len(in.Tasks), len(in.Agents), res.Distance(), sol.Nodes, time.Since(start))
	return res, nil
}

func (e *Engine) empty(r Result) Result {
	r.Routes = map[int]AgentRoute{}
	e.stage(StageEmpty)
	return r
}

// runSolver turns a backend panic into an error.
func runSolver(ctx context.Context, s milp.Solver, m *milp.Model, opts milp.Options) (sol milp.Solution, err error) {
	defer func() {
		if r := recover(); r != nil {
			sol, err = milp.Solution{}, fmt.Errorf("solver panic: %v", r)
		}
	}()
	return s.Solve(ctx, m, opts)
}
