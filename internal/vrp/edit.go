package vrp

import "fmt"

// Edits mutate the instance in place and bump Revision; any solution
// computed for an earlier revision no longer describes the instance.

func (in *Instance) editTask(id int, fn func(t *Task)) error {
	t, ok := in.Task(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	fn(t)
	in.Revision++
	return nil
}

// MoveTask changes a task's coordinate.
func (in *Instance) MoveTask(id int, p Point) error {
	return in.editTask(id, func(t *Task) { t.Loc = p })
}

// SetTaskSkill changes the skill a task requires.
func (in *Instance) SetTaskSkill(id int, skill string) error {
	if skill == "" {
		return invalid("required_skill", "must not be empty")
	}
	return in.editTask(id, func(t *Task) { t.Skill = skill })
}

// SetTaskDuration changes a task's service duration.
func (in *Instance) SetTaskDuration(id int, d float64) error {
	if !finite(d) || d < 0 {
		return invalid("duration", "must be a non-negative number")
	}
	return in.editTask(id, func(t *Task) { t.Duration = d })
}

// SetTaskTimeWindowEnd changes a task's window upper bound; 0 clears it.
func (in *Instance) SetTaskTimeWindowEnd(id int, end float64) error {
	if !finite(end) || end < 0 {
		return invalid("time_window_end", "must be a non-negative number")
	}
	return in.editTask(id, func(t *Task) { t.TimeWindowEnd = end })
}

// MoveDepot changes the depot coordinate.
func (in *Instance) MoveDepot(p Point) {
	in.Depot.Loc = p
	in.Revision++
}
