package opt

import (
	"fmt"
	"math"

	"carevrp/internal/milp"
	"carevrp/internal/vrp"
)

// ArcModel is the routing MILP together with the flat variable index used to
// read a solution back. Node position 0 is the depot, position j+1 is
// Instance.Tasks[j]; agent position k is Instance.Agents[k]. Variable names
// carry node ids and agent positions, e.g. x_0_101_1.
type ArcModel struct {
	Model    *milp.Model
	Instance *vrp.Instance
	Dist     *vrp.DistanceMatrix
	Catalog  *vrp.Catalog
	Elig     *vrp.Eligibility
	BigM     float64

	n, m int
	x    []milp.Var // (i*n+j)*m+k; NoVar when i == j
	t    []milp.Var // i*m+k
	ret  []milp.Var // k
}

// Nodes is the node count (depot plus tasks).
func (a *ArcModel) Nodes() int { return a.n }

// Agents is the agent count.
func (a *ArcModel) Agents() int { return a.m }

// X is the arc variable "agent k drives from node i to node j", or NoVar for
// self loops and out-of-range positions.
func (a *ArcModel) X(i, j, k int) milp.Var {
	if i < 0 || i >= a.n || j < 0 || j >= a.n || k < 0 || k >= a.m {
		return milp.NoVar
	}
	return a.x[(i*a.n+j)*a.m+k]
}

// T is agent k's arrival time at node i.
func (a *ArcModel) T(i, k int) milp.Var {
	if i < 0 || i >= a.n || k < 0 || k >= a.m {
		return milp.NoVar
	}
	return a.t[i*a.m+k]
}

// Return is the time agent k is back at the depot.
func (a *ArcModel) Return(k int) milp.Var {
	if k < 0 || k >= a.m {
		return milp.NoVar
	}
	return a.ret[k]
}

var inf = math.Inf(1)

type builder struct {
	am  *ArcModel
	err error
}

func (b *builder) add(name string, e milp.Expr, s milp.Sense, rhs float64) {
	if b.err != nil {
		return
	}
	b.err = b.am.Model.AddConstraint(name, e, s, rhs)
}

// BuildModel emits the arc-flow formulation of in: assignment over eligible
// agents, per-agent flow conservation and depot balance, MTZ time
// propagation, horizon, capacity and shift limits; minimizing total travel.
// Depot-link and two-cycle rows tighten the relaxation without removing any
// depot tour. dm must be built from in.Nodes().
func BuildModel(in *vrp.Instance, dm *vrp.DistanceMatrix, cfg Config) (*ArcModel, error) {
	n, m := len(in.Tasks)+1, len(in.Agents)
	if dm.Len() != n {
		return nil, fmt.Errorf("opt: distance matrix has %d nodes, instance has %d", dm.Len(), n)
	}
	cat, err := vrp.NewCatalog(in)
	if err != nil {
		return nil, err
	}
	am := &ArcModel{
		Model:    milp.NewModel("carevrp"),
		Instance: in,
		Dist:     dm,
		Catalog:  cat,
		Elig:     vrp.NewEligibility(in, cat),
		BigM:     cfg.deriveBigM(in, dm),
		n:        n,
		m:        m,
		x:        make([]milp.Var, n*n*m),
		t:        make([]milp.Var, n*m),
		ret:      make([]milp.Var, m),
	}
	mdl := am.Model
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < m; k++ {
				idx := (i*n+j)*m + k
				if i == j {
					am.x[idx] = milp.NoVar
					continue
				}
				am.x[idx] = mdl.AddBinary(fmt.Sprintf("x_%d_%d_%d", dm.ID(i), dm.ID(j), k))
			}
		}
	}
	for i := 0; i < n; i++ {
		for k := 0; k < m; k++ {
			am.t[i*m+k] = mdl.AddContinuous(fmt.Sprintf("t_%d_%d", dm.ID(i), k), 0, inf)
		}
	}
	for k := range in.Agents {
		am.ret[k] = mdl.AddContinuous(fmt.Sprintf("r_%d", k), 0, inf)
	}

	b := &builder{am: am}
	// with a positive clock step every cycle must pass the depot, which the
	// link and pair rows rely on
	cutsValid := cfg.MinArcStep > 0
	service := func(i int) float64 {
		if i == 0 {
			return 0
		}
		return in.Tasks[i-1].Duration
	}

	for j := 1; j < n; j++ {
		task := in.Tasks[j-1]
		var assign milp.Expr
		for k := 0; k < m; k++ {
			var inflow milp.Expr
			for i := 0; i < n; i++ {
				if i != j {
					inflow.Add(am.X(i, j, k), 1)
				}
			}
			if am.Elig.Eligible(j-1, k) {
				assign.Terms = append(assign.Terms, inflow.Terms...)
				continue
			}
			b.add(fmt.Sprintf("inelig_%d_%d", task.ID, k), inflow, milp.Equal, 0)
		}
		// empty when nobody is eligible: 0 == 1 keeps the model infeasible
		b.add(fmt.Sprintf("assign_%d", task.ID), assign, milp.Equal, 1)
	}

	for k, a := range in.Agents {
		for j := 1; j < n; j++ {
			var flow milp.Expr
			for i := 0; i < n; i++ {
				if i != j {
					flow.Add(am.X(i, j, k), 1).Add(am.X(j, i, k), -1)
				}
			}
			b.add(fmt.Sprintf("flow_%d_%d", dm.ID(j), k), flow, milp.Equal, 0)
		}

		var depot, leave milp.Expr
		for j := 1; j < n; j++ {
			depot.Add(am.X(0, j, k), 1).Add(am.X(j, 0, k), -1)
			leave.Add(am.X(0, j, k), 1)
		}
		b.add(fmt.Sprintf("depot_%d", k), depot, milp.Equal, 0)
		b.add(fmt.Sprintf("one_tour_%d", k), leave, milp.LessEq, 1)
		if cutsValid {
			// serving j means leaving the depot
			for j := 1; j < n; j++ {
				if !am.Elig.Eligible(j-1, k) {
					continue
				}
				var link milp.Expr
				for i := 0; i < n; i++ {
					if i != j {
						link.Add(am.X(i, j, k), 1)
					}
				}
				for l := 1; l < n; l++ {
					link.Add(am.X(0, l, k), -1)
				}
				b.add(fmt.Sprintf("link_%d_%d", dm.ID(j), k), link, milp.LessEq, 0)
			}
		}

		M := am.BigM
		for i := 0; i < n; i++ {
			for j := 1; j < n; j++ {
				if i == j {
					continue
				}
				// t_j >= t_i + step - M(1 - x)
				var e milp.Expr
				e.Add(am.T(j, k), 1).Add(am.T(i, k), -1).Add(am.X(i, j, k), -M)
				b.add(fmt.Sprintf("mtz_%d_%d_%d", dm.ID(i), dm.ID(j), k), e, milp.GreaterEq, cfg.arcStep(service(i), dm.At(i, j))-M)
			}
		}
		for i := 1; i < n; i++ {
			var e milp.Expr
			e.Add(am.Return(k), 1).Add(am.T(i, k), -1).Add(am.X(i, 0, k), -M)
			b.add(fmt.Sprintf("back_%d_%d", dm.ID(i), k), e, milp.GreaterEq, service(i)+dm.At(i, 0)-M)
		}

		b.add(fmt.Sprintf("depart_%d", k), milp.Sum(am.T(0, k)), milp.Equal, 0)
		for j := 1; j < n; j++ {
			if cfg.Horizon > 0 {
				b.add(fmt.Sprintf("horizon_%d_%d", dm.ID(j), k), milp.Sum(am.T(j, k)), milp.LessEq, cfg.Horizon)
			}
			if tw := in.Tasks[j-1].TimeWindowEnd; cfg.EnforceTimeWindows && tw > 0 {
				b.add(fmt.Sprintf("window_%d_%d", dm.ID(j), k), milp.Sum(am.T(j, k)), milp.LessEq, tw)
			}
		}

		var visits milp.Expr
		for i := 0; i < n; i++ {
			for j := 1; j < n; j++ {
				if i != j {
					visits.Add(am.X(i, j, k), 1)
				}
			}
		}
		b.add(fmt.Sprintf("capacity_%d", k), visits, milp.LessEq, float64(cfg.maxTasks(a, len(in.Tasks))))
		b.add(fmt.Sprintf("shift_%d", k), milp.Sum(am.Return(k)), milp.LessEq, cfg.shift(a))
	}
	if cutsValid {
		// no fleet-wide 2-cycle between two tasks
		for i := 1; i < n; i++ {
			for j := i + 1; j < n; j++ {
				var pair milp.Expr
				for k := 0; k < m; k++ {
					if am.Elig.Eligible(i-1, k) && am.Elig.Eligible(j-1, k) {
						pair.Add(am.X(i, j, k), 1).Add(am.X(j, i, k), 1)
					}
				}
				if len(pair.Terms) > 0 {
					b.add(fmt.Sprintf("pair_%d_%d", dm.ID(i), dm.ID(j)), pair, milp.LessEq, 1)
				}
			}
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	var obj milp.Expr
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			for k := 0; k < m; k++ {
				obj.Add(am.X(i, j, k), dm.At(i, j))
			}
		}
	}
	if err := mdl.Minimize(obj); err != nil {
		return nil, err
	}
	return am, nil
}
