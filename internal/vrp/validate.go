package vrp

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInstance is matched by every ValidationError.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrTooLarge is matched by validation errors raised for size limits.
	ErrTooLarge = errors.New("instance exceeds size limits")
	// ErrUnknownTask is returned by edits naming a task that does not exist.
	ErrUnknownTask = errors.New("unknown task")
)

// ValidationError describes one malformed or oversized field.
type ValidationError struct {
	Field    string
	Reason   string
	TooLarge bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid instance: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInstance || (e.TooLarge && target == ErrTooLarge)
}

// Limits bounds the instance size accepted before any model is built.
// A non-positive limit disables that check.
type Limits struct {
	MaxTasks  int
	MaxAgents int
}

// DefaultLimits matches the reference deployment.
func DefaultLimits() Limits { return Limits{MaxTasks: 10, MaxAgents: 10} }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks ids, labels, numeric ranges and size limits.
func (in *Instance) Validate(lim Limits) error {
	if lim.MaxTasks > 0 && len(in.Tasks) > lim.MaxTasks {
		return &ValidationError{Field: "tasks", Reason: fmt.Sprintf("%d tasks, limit is %d", len(in.Tasks), lim.MaxTasks), TooLarge: true}
	}
	if lim.MaxAgents > 0 && len(in.Agents) > lim.MaxAgents {
		return &ValidationError{Field: "agents", Reason: fmt.Sprintf("%d agents, limit is %d", len(in.Agents), lim.MaxAgents), TooLarge: true}
	}
	if in.Depot.ID != DepotID {
		return invalid("depot.id", "must be %d, got %d", DepotID, in.Depot.ID)
	}
	if !finite(in.Depot.Loc.Lat) || !finite(in.Depot.Loc.Lon) {
		return invalid("depot", "coordinates must be finite")
	}
	if len(in.Agents) == 0 {
		return invalid("agents", "at least one agent is required")
	}
	seen := map[int]struct{}{}
	for i, t := range in.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.ID <= 0 {
			return invalid(field+".id", "must be positive, got %d", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return invalid(field+".id", "duplicate id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Skill == "" {
			return invalid(field+".required_skill", "must not be empty")
		}
		if !finite(t.Loc.Lat) || !finite(t.Loc.Lon) {
			return invalid(field, "coordinates must be finite")
		}
		if !finite(t.Duration) || t.Duration < 0 {
			return invalid(field+".duration", "must be a non-negative number")
		}
		if !finite(t.TimeWindowEnd) || t.TimeWindowEnd < 0 {
			return invalid(field+".time_window_end", "must be a non-negative number")
		}
	}
	agents := map[int]struct{}{}
	for i, a := range in.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if _, dup := agents[a.ID]; dup {
			return invalid(field+".id", "duplicate id %d", a.ID)
		}
		agents[a.ID] = struct{}{}
		if a.MaxTasks < 0 {
			return invalid(field+".max_tasks", "must not be negative")
		}
		if !finite(a.ShiftDuration) || a.ShiftDuration < 0 {
			return invalid(field+".shift_duration", "must be a non-negative number")
		}
		if a.Home != nil && (!finite(a.Home.Lat) || !finite(a.Home.Lon)) {
			return invalid(field, "home coordinates must be finite")
		}
	}
	return nil
}
