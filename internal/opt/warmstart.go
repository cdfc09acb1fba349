package opt

import "math"

// plan is one agent's partial tour during greedy construction, in node
// positions.
type plan struct {
	order  []int
	arrive []float64 // arrival time per entry of order
}

func (p plan) last() int {
	if len(p.order) == 0 {
		return 0
	}
	return p.order[len(p.order)-1]
}

func (p plan) clock() float64 {
	if len(p.order) == 0 {
		return 0
	}
	return p.arrive[len(p.arrive)-1]
}

// greedyPlans builds tours by letting agents take turns appending their
// nearest feasible unassigned task. It returns nil when some task could not
// be placed.
func greedyPlans(am *ArcModel, cfg Config) []plan {
	in, dm := am.Instance, am.Dist
	feasible := func(p plan, k, j int) (float64, bool) {
		a := in.Agents[k]
		if !am.Elig.Eligible(j-1, k) || len(p.order) >= cfg.maxTasks(a, len(in.Tasks)) {
			return 0, false
		}
		from := p.last()
		t := p.clock() + cfg.arcStep(am.service(from), dm.At(from, j))
		if cfg.Horizon > 0 && t > cfg.Horizon {
			return 0, false
		}
		if tw := in.Tasks[j-1].TimeWindowEnd; cfg.EnforceTimeWindows && tw > 0 && t > tw {
			return 0, false
		}
		if t+am.service(j)+dm.At(j, 0) > cfg.shift(a) {
			return 0, false
		}
		return t, true
	}

	plans := make([]plan, am.m)
	used := make([]bool, am.n)
	for assigned := 0; assigned < am.n-1; {
		progress := false
		for k := range plans {
			bestIdx, bestDelta, bestT := -1, math.MaxFloat64, 0.0
			for j := 1; j < am.n; j++ {
				if used[j] {
					continue
				}
				t, ok := feasible(plans[k], k, j)
				if !ok {
					continue
				}
				if d := dm.At(plans[k].last(), j); d < bestDelta {
					bestIdx, bestDelta, bestT = j, d, t
				}
			}
			if bestIdx >= 0 {
				plans[k].order = append(plans[k].order, bestIdx)
				plans[k].arrive = append(plans[k].arrive, bestT)
				used[bestIdx] = true
				assigned++
				progress = true
				if assigned == am.n-1 {
					break
				}
			}
		}
		if !progress {
			return nil
		}
	}
	return plans
}

// twoOptRounds bounds the improvement passes per agent tour.
const twoOptRounds = 20

// WarmStart encodes the greedy tours, shortened by 2-opt, as a full
// assignment of am's variables, or returns nil when the greedy pass leaves a
// task unplaced.
func WarmStart(am *ArcModel, cfg Config) []float64 {
	plans := greedyPlans(am, cfg)
	if plans == nil {
		return nil
	}
	for k := range plans {
		plans[k] = improvePlan(am, cfg, k, plans[k], twoOptRounds)
	}
	return encodePlans(am, plans)
}

// Seed is what the engine offers a backend before the search.
type Seed struct {
	// Values is a full assignment, nil when no tours could be built.
	Values []float64
	Source string // "exact" or "greedy"
	// Bound is a proven lower bound on the objective when Proven is set;
	// +Inf means no assignment of tours exists.
	Bound  float64
	Proven bool
}

// maxExactTasks caps ExactTasks: the split pass costs 3^n per agent.
const maxExactTasks = 16

// NewSeed enumerates tours exactly when the instance is small enough,
// falling back to the greedy tours for the start values.
func NewSeed(am *ArcModel, cfg Config) Seed {
	tasks := am.n - 1
	var s Seed
	if cfg.ExactTasks > 0 && tasks <= cfg.ExactTasks && tasks <= maxExactTasks && cfg.MinArcStep > 0 {
		orders, dist, ok := exactTours(am, cfg)
		if !ok {
			return Seed{Bound: math.Inf(1), Proven: true}
		}
		s.Bound, s.Proven = dist, true
		if plans, ok := schedulePlans(am, cfg, orders); ok {
			s.Values, s.Source = encodePlans(am, plans), "exact"
			return s
		}
	}
	if s.Values = WarmStart(am, cfg); s.Values != nil {
		s.Source = "greedy"
	}
	return s
}

// schedulePlans times each agent's order under the model's own clock.
func schedulePlans(am *ArcModel, cfg Config, orders [][]int) ([]plan, bool) {
	plans := make([]plan, am.m)
	for k, order := range orders {
		if len(order) == 0 {
			continue
		}
		arrive, ok := schedule(am, cfg, k, order)
		if !ok {
			return nil, false
		}
		plans[k] = plan{order: order, arrive: arrive}
	}
	return plans, true
}

func encodePlans(am *ArcModel, plans []plan) []float64 {
	values := make([]float64, am.Model.NumVars())
	for k, p := range plans {
		if len(p.order) == 0 {
			continue
		}
		prev := 0
		for idx, j := range p.order {
			values[am.X(prev, j, k)] = 1
			values[am.T(j, k)] = p.arrive[idx]
			prev = j
		}
		values[am.X(prev, 0, k)] = 1
		values[am.Return(k)] = p.clock() + am.service(prev) + am.Dist.At(prev, 0)
	}
	return values
}
