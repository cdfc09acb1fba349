package opt

import (
	"time"

	"carevrp/internal/vrp"
)

// Config carries the engine knobs. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	// BigM > 0 fixes the MTZ constant; otherwise it is derived per instance.
	BigM float64
	// Horizon bounds every task arrival time.
	Horizon float64
	// DefaultShift applies to agents without a shift duration.
	DefaultShift float64
	// DefaultMaxTasks applies to agents without a task limit. 0 means the
	// instance's task count.
	DefaultMaxTasks int
	// EnforceTimeWindows bounds t[j,k] by the task's time_window_end.
	EnforceTimeWindows bool
	// MinArcStep is the least time an arc advances the clock.
	MinArcStep float64
	Limits     vrp.Limits

	TimeLimit time.Duration
	NodeLimit int
	WarmStart bool
	// ExactTasks enables exact tour enumeration for instances with at most
	// this many tasks (capped at 16). Its optimum is handed to the backend
	// as a proven bound. 0 disables it.
	ExactTasks int
}

func DefaultConfig() Config {
	return Config{
		Horizon:      300,
		DefaultShift: 300,
		MinArcStep:   0.001,
		Limits:       vrp.DefaultLimits(),
		TimeLimit:    30 * time.Second,
		NodeLimit:    200000,
		WarmStart:    true,
		ExactTasks:   14,
	}
}

func (c Config) shift(a vrp.Agent) float64 {
	if a.ShiftDuration > 0 {
		return a.ShiftDuration
	}
	return c.DefaultShift
}

func (c Config) maxTasks(a vrp.Agent, tasks int) int {
	switch {
	case a.MaxTasks > 0:
		return a.MaxTasks
	case c.DefaultMaxTasks > 0:
		return c.DefaultMaxTasks
	default:
		return tasks
	}
}

// arcStep is the clock advance MTZ enforces along arc i->j.
func (c Config) arcStep(service, dist float64) float64 {
	if s := service + dist; s > c.MinArcStep {
		return s
	}
	return c.MinArcStep
}

// deriveBigM bounds any route's elapsed time plus one arc, so the relaxed
// MTZ and return rows never bind on unselected arcs.
func (c Config) deriveBigM(in *vrp.Instance, dm *vrp.DistanceMatrix) float64 {
	if c.BigM > 0 {
		return c.BigM
	}
	var sumService, maxService, sumFar float64
	for _, t := range in.Tasks {
		sumService += t.Duration
		if t.Duration > maxService {
			maxService = t.Duration
		}
	}
	for i := 0; i < dm.Len(); i++ {
		sumFar += dm.MaxFrom(i)
	}
	route := sumService + sumFar + float64(dm.Len())*c.MinArcStep
	if c.Horizon > 0 && c.Horizon < route {
		route = c.Horizon
	}
	return route + maxService + dm.Max() + c.MinArcStep
}
