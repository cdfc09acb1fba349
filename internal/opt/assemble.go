package opt

import "carevrp/internal/vrp"

// AgentRoute is one agent's share of a result.
type AgentRoute struct {
	Route         []int
	VisitedTasks  []int
	TotalDistance float64
}

// RouteLength sums straight-line legs between consecutive nodes of route.
// Unknown ids contribute nothing.
func RouteLength(route []int, coords map[int]vrp.Point) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		a, okA := coords[route[i-1]]
		b, okB := coords[route[i]]
		if okA && okB {
			total += vrp.Euclidean(a, b)
		}
	}
	return total
}

// AssembleRoutes keys routes (indexed by agent position) by agent id and
// recomputes distances from the instance coordinates.
func AssembleRoutes(in *vrp.Instance, routes [][]int) map[int]AgentRoute {
	coords := in.Coordinates()
	out := make(map[int]AgentRoute, len(routes))
	for k, r := range routes {
		route := append([]int(nil), r...)
		visited := make([]int, 0, len(route))
		for _, id := range route {
			if id != vrp.DepotID {
				visited = append(visited, id)
			}
		}
		out[in.Agents[k].ID] = AgentRoute{
			Route:         route,
			VisitedTasks:  visited,
			TotalDistance: RouteLength(route, coords),
		}
	}
	return out
}
