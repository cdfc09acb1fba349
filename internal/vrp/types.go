// Package vrp holds the home-care routing domain: the depot, patient visits
// (tasks), nurses (agents) and the pure functions computed over them.
package vrp

import (
	"sort"
	"strings"
)

// DepotID is the node id reserved for the depot.
const DepotID = 0

// Point is a planar coordinate. Lat/Lon are treated as x/y; distances are
// straight-line, not geodesic.
type Point struct {
	Lat float64
	Lon float64
}

type Depot struct {
	ID  int
	Loc Point
}

// Task is one patient visit.
type Task struct {
	ID            int
	Skill         string
	Loc           Point
	Duration      float64
	TimeWindowEnd float64 // 0 when the visit has no window
}

// Agent is one nurse. Zero MaxTasks / ShiftDuration mean "use the engine default".
type Agent struct {
	ID            int
	Name          string
	Skills        []string
	MaxTasks      int
	ShiftDuration float64
	Home          *Point // nil: the depot
}

// HomePoint returns the agent's home coordinate, defaulting to the depot.
func (a Agent) HomePoint(d Depot) Point {
	if a.Home != nil {
		return *a.Home
	}
	return d.Loc
}

// HasSkill reports whether the agent lists the label.
func (a Agent) HasSkill(label string) bool {
	for _, s := range a.Skills {
		if s == label {
			return true
		}
	}
	return false
}

// Instance is one routing problem. Revision is bumped by every edit so
// stored solutions can be recognised as stale.
type Instance struct {
	Depot    Depot
	Tasks    []Task
	Agents   []Agent
	Revision int
}

// Node is a routable location: the depot (index 0) or a task.
type Node struct {
	ID      int
	Loc     Point
	Service float64
}

// Nodes lists the depot followed by the tasks in instance order.
func (in *Instance) Nodes() []Node {
	out := make([]Node, 0, len(in.Tasks)+1)
	out = append(out, Node{ID: in.Depot.ID, Loc: in.Depot.Loc})
	for _, t := range in.Tasks {
		out = append(out, Node{ID: t.ID, Loc: t.Loc, Service: t.Duration})
	}
	return out
}

// Coordinates maps every node id to its location.
func (in *Instance) Coordinates() map[int]Point {
	out := make(map[int]Point, len(in.Tasks)+1)
	out[in.Depot.ID] = in.Depot.Loc
	for _, t := range in.Tasks {
		out[t.ID] = t.Loc
	}
	return out
}

// Task looks a task up by id.
func (in *Instance) Task(id int) (*Task, bool) {
	for i := range in.Tasks {
		if in.Tasks[i].ID == id {
			return &in.Tasks[i], true
		}
	}
	return nil, false
}

// Agent looks an agent up by id.
func (in *Instance) Agent(id int) (*Agent, bool) {
	for i := range in.Agents {
		if in.Agents[i].ID == id {
			return &in.Agents[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (in *Instance) Clone() *Instance {
	out := &Instance{Depot: in.Depot, Revision: in.Revision}
	out.Tasks = append([]Task(nil), in.Tasks...)
	out.Agents = make([]Agent, len(in.Agents))
	for i, a := range in.Agents {
		a.Skills = append([]string(nil), a.Skills...)
		if a.Home != nil {
			h := *a.Home
			a.Home = &h
		}
		out.Agents[i] = a
	}
	return out
}

// Normalize trims skill labels and makes every agent's skill list sorted and
// duplicate free.
func (in *Instance) Normalize() {
	for i := range in.Tasks {
		in.Tasks[i].Skill = strings.TrimSpace(in.Tasks[i].Skill)
	}
	for i := range in.Agents {
		in.Agents[i].Skills = NormalizeSkills(in.Agents[i].Skills)
	}
}

// NormalizeSkills trims, drops empty labels, sorts and dedupes.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
