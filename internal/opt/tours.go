package opt

import (
	"math"
	"math/bits"
)

// tourTable holds, for one agent profile, the cheapest closed tour over
// every subset of tasks (bit j is Instance.Tasks[j]). The clock runs on
// service plus distance without the MinArcStep floor, so every schedule the
// model admits is admitted here too.
type tourTable struct {
	cost []float64 // +Inf when the subset cannot be toured
	last []int8    // final task of the cheapest tour
	path []float64 // path[s*n+j]: shortest depot..j path covering s, ending at j
	prev []int8    // predecessor of j on that path, -1 from the depot
	n    int
}

type agentProfile struct {
	eligible uint32
	capacity int
	shift    float64
}

// buildTours runs the Held-Karp recursion over the subsets of p.eligible.
// Arrival at j after covering s and ending at i is path + svc(s) + d(i,j),
// so for a fixed (s, i) the shortest path is also the earliest arrival.
func buildTours(am *ArcModel, cfg Config, p agentProfile) *tourTable {
	n := am.n - 1
	size := 1 << n
	tt := &tourTable{
		cost: make([]float64, size),
		last: make([]int8, size),
		path: make([]float64, size*n),
		prev: make([]int8, size*n),
		n:    n,
	}
	inf := math.Inf(1)
	for i := range tt.path {
		tt.path[i] = inf
	}
	deadline := make([]float64, n)
	for j := 0; j < n; j++ {
		deadline[j] = inf
		if cfg.Horizon > 0 {
			deadline[j] = cfg.Horizon
		}
		if tw := am.Instance.Tasks[j].TimeWindowEnd; cfg.EnforceTimeWindows && tw > 0 && tw < deadline[j] {
			deadline[j] = tw
		}
	}
	svc := make([]float64, size)
	for s := 1; s < size; s++ {
		low := bits.TrailingZeros32(uint32(s))
		svc[s] = svc[s&(s-1)] + am.service(low+1)
	}
	d := am.Dist
	for j := 0; j < n; j++ {
		if p.eligible&(1<<j) == 0 {
			continue
		}
		if at := d.At(0, j+1); at <= deadline[j] {
			tt.path[(1<<j)*n+j] = at
			tt.prev[(1<<j)*n+j] = -1
		}
	}
	for s := 1; s < size; s++ {
		tt.cost[s] = inf
		if uint32(s)&^p.eligible != 0 || bits.OnesCount32(uint32(s)) > p.capacity {
			continue
		}
		for i := 0; i < n; i++ {
			pi := tt.path[s*n+i]
			if math.IsInf(pi, 1) {
				continue
			}
			if back := pi + d.At(i+1, 0); back+svc[s] <= p.shift && back < tt.cost[s] {
				tt.cost[s], tt.last[s] = back, int8(i)
			}
			for j := 0; j < n; j++ {
				bit := 1 << j
				if s&bit != 0 || p.eligible&uint32(bit) == 0 {
					continue
				}
				step := pi + d.At(i+1, j+1)
				if step+svc[s] > deadline[j] {
					continue
				}
				if k := (s|bit)*n + j; step < tt.path[k] {
					tt.path[k], tt.prev[k] = step, int8(i)
				}
			}
		}
	}
	return tt
}

// order rebuilds the cheapest tour over s as node positions.
func (tt *tourTable) order(s int) []int {
	out := make([]int, bits.OnesCount32(uint32(s)))
	j := int(tt.last[s])
	for pos := len(out) - 1; pos >= 0; pos-- {
		out[pos] = j + 1
		p := int(tt.prev[s*tt.n+j])
		s &^= 1 << j
		j = p
	}
	return out
}

// exactTours splits the tasks among agents at least total distance. It
// returns the per-agent orders and the optimal distance, or ok=false when
// no split exists. The distance is a lower bound on the model's optimum
// because the clock here never runs ahead of the model's.
func exactTours(am *ArcModel, cfg Config) (orders [][]int, distance float64, ok bool) {
	in := am.Instance
	n := am.n - 1
	full := 1<<n - 1
	tables := map[agentProfile]*tourTable{}
	agentTables := make([]*tourTable, am.m)
	for k, a := range in.Agents {
		var p agentProfile
		for j := 0; j < n; j++ {
			if am.Elig.Eligible(j, k) {
				p.eligible |= 1 << j
			}
		}
		p.capacity = cfg.maxTasks(a, n)
		p.shift = cfg.shift(a)
		tt, seen := tables[p]
		if !seen {
			tt = buildTours(am, cfg, p)
			tables[p] = tt
		}
		agentTables[k] = tt
	}

	inf := math.Inf(1)
	best := make([]float64, full+1)
	for s := range best {
		best[s] = inf
	}
	best[0] = 0
	choice := make([][]int32, am.m)
	for k := 0; k < am.m; k++ {
		cost := agentTables[k].cost
		next := make([]float64, full+1)
		pick := make([]int32, full+1)
		for s := 0; s <= full; s++ {
			next[s], pick[s] = best[s], 0
			for t := s; t > 0; t = (t - 1) & s {
				c := cost[t]
				if math.IsInf(c, 1) {
					continue
				}
				if v := best[s^t] + c; v < next[s] {
					next[s], pick[s] = v, int32(t)
				}
			}
		}
		best, choice[k] = next, pick
	}
	if math.IsInf(best[full], 1) {
		return nil, 0, false
	}
	orders = make([][]int, am.m)
	s := full
	for k := am.m - 1; k >= 0; k-- {
		t := int(choice[k][s])
		if t != 0 {
			orders[k] = agentTables[k].order(t)
		}
		s ^= t
	}
	return orders, best[full], true
}
