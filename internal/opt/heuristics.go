package opt

// service is the visit duration at node position i; the depot has none.
func (a *ArcModel) service(i int) float64 {
	if i <= 0 {
		return 0
	}
	return a.Instance.Tasks[i-1].Duration
}

// schedule computes arrival times for agent k visiting order (node
// positions, depot excluded) and reports whether the tour meets the
// horizon, enforced time windows and the agent's shift.
func schedule(am *ArcModel, cfg Config, k int, order []int) ([]float64, bool) {
	arrive := make([]float64, len(order))
	clock, from := 0.0, 0
	for idx, j := range order {
		clock += cfg.arcStep(am.service(from), am.Dist.At(from, j))
		if cfg.Horizon > 0 && clock > cfg.Horizon {
			return nil, false
		}
		if tw := am.Instance.Tasks[j-1].TimeWindowEnd; cfg.EnforceTimeWindows && tw > 0 && clock > tw {
			return nil, false
		}
		arrive[idx] = clock
		from = j
	}
	if clock+am.service(from)+am.Dist.At(from, 0) > cfg.shift(am.Instance.Agents[k]) {
		return nil, false
	}
	return arrive, true
}

// improvePlan applies 2-opt moves to one agent's closed tour, keeping only
// reversals that shorten it and stay schedulable.
func improvePlan(am *ArcModel, cfg Config, k int, p plan, iterations int) plan {
	if len(p.order) < 2 {
		return p
	}
	if iterations <= 0 {
		iterations = 1
	}
	best := p
	bestDist := tourDistance(am, best.order)
	n := len(best.order)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				cand := twoOptSwap(best.order, i, j)
				d := tourDistance(am, cand)
				if d+1e-9 >= bestDist {
					continue
				}
				arrive, ok := schedule(am, cfg, k, cand)
				if !ok {
					continue
				}
				best, bestDist, improved = plan{order: cand, arrive: arrive}, d, true
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// tourDistance is the depot-to-depot length of order.
func tourDistance(am *ArcModel, order []int) float64 {
	total, from := 0.0, 0
	for _, j := range order {
		total += am.Dist.At(from, j)
		from = j
	}
	return total + am.Dist.At(from, 0)
}
