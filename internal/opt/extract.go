package opt

import (
	"fmt"

	"carevrp/internal/vrp"
)

// arcThreshold reads a binary as selected despite solver tolerance.
const arcThreshold = 0.5

// ExtractRoutes decodes one route per agent position from a solution vector.
// Each walk starts at the depot, follows the first unvisited task with a
// selected arc, and stops when none is left or every task is on the route.
// The depot is appended at the end even when the walk stopped early.
func ExtractRoutes(am *ArcModel, values []float64) [][]int {
	value := func(i, j, k int) float64 {
		v := am.X(i, j, k)
		if v < 0 || int(v) >= len(values) {
			return 0
		}
		return values[v]
	}
	routes := make([][]int, am.m)
	for k := 0; k < am.m; k++ {
		route := []int{vrp.DepotID}
		visited := make([]bool, am.n)
		cur := 0
		for count := 0; count < am.n-1; count++ {
			next := -1
			for j := 1; j < am.n; j++ {
				if j != cur && !visited[j] && value(cur, j, k) > arcThreshold {
					next = j
					break
				}
			}
			if next < 0 {
				break
			}
			visited[next] = true
			route = append(route, am.Dist.ID(next))
			cur = next
		}
		routes[k] = append(route, vrp.DepotID)
	}
	return routes
}

// ValidateRoutes checks decoded routes against the instance: closed at the
// depot, every task exactly once across the fleet, skills and task limits
// respected. routes is indexed by agent position.
func ValidateRoutes(in *vrp.Instance, cfg Config, routes [][]int) []string {
	var out []string
	if len(routes) != len(in.Agents) {
		return []string{fmt.Sprintf("%d routes for %d agents", len(routes), len(in.Agents))}
	}
	cat, err := vrp.NewCatalog(in)
	if err != nil {
		return []string{err.Error()}
	}
	pos := make(map[int]int, len(in.Tasks))
	for j, t := range in.Tasks {
		pos[t.ID] = j
	}
	elig := vrp.NewEligibility(in, cat)
	owner := map[int]int{}
	for k, r := range routes {
		a := in.Agents[k]
		if len(r) < 2 || r[0] != vrp.DepotID || r[len(r)-1] != vrp.DepotID {
			out = append(out, fmt.Sprintf("agent %d: route %v is not closed at the depot", a.ID, r))
			continue
		}
		visits := 0
		for _, id := range r[1 : len(r)-1] {
			j, ok := pos[id]
			if !ok {
				out = append(out, fmt.Sprintf("agent %d: unknown node %d", a.ID, id))
				continue
			}
			visits++
			if prev, dup := owner[id]; dup {
				out = append(out, fmt.Sprintf("task %d visited by agents %d and %d", id, in.Agents[prev].ID, a.ID))
				continue
			}
			owner[id] = k
			if !elig.Eligible(j, k) {
				out = append(out, fmt.Sprintf("agent %d lacks skill %q for task %d", a.ID, in.Tasks[j].Skill, id))
			}
		}
		if limit := cfg.maxTasks(a, len(in.Tasks)); visits > limit {
			out = append(out, fmt.Sprintf("agent %d: %d visits above limit %d", a.ID, visits, limit))
		}
	}
	for _, t := range in.Tasks {
		if _, ok := owner[t.ID]; !ok {
			out = append(out, fmt.Sprintf("task %d is not on any route", t.ID))
		}
	}
	return out
}
