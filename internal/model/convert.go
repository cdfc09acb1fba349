package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"carevrp/internal/opt"
	"carevrp/internal/vrp"
)

// IsYAML reports whether a content type or file name names YAML.
func IsYAML(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "yaml") || strings.HasSuffix(s, ".yml")
}

// DecodeInstance reads one instance document. Unknown keys are rejected in
// both formats.
func DecodeInstance(r io.Reader, yamlDoc bool) (Instance, error) {
	var doc Instance
	if yamlDoc {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return Instance{}, fmt.Errorf("decode yaml instance: %w", err)
		}
		return doc, nil
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Instance{}, fmt.Errorf("decode json instance: %w", err)
	}
	return doc, nil
}

// EncodeInstance writes doc as YAML or indented JSON.
func EncodeInstance(w io.Writer, doc Instance, yamlDoc bool) error {
	if yamlDoc {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// ToVRP converts a document into the domain type, normalizing skills.
func (doc Instance) ToVRP() *vrp.Instance {
	in := &vrp.Instance{
		Depot:  vrp.Depot{ID: doc.Depot.ID, Loc: vrp.Point{Lat: doc.Depot.Lat, Lon: doc.Depot.Lon}},
		Tasks:  make([]vrp.Task, 0, len(doc.Tasks)),
		Agents: make([]vrp.Agent, 0, len(doc.Agents)),
	}
	for _, t := range doc.Tasks {
		in.Tasks = append(in.Tasks, vrp.Task{
			ID:            t.ID,
			Skill:         t.RequiredSkill,
			Loc:           vrp.Point{Lat: t.Lat, Lon: t.Lon},
			Duration:      t.Duration,
			TimeWindowEnd: t.TimeWindowEnd,
		})
	}
	for _, a := range doc.Agents {
		va := vrp.Agent{
			ID:            a.ID,
			Name:          a.Name,
			Skills:        append([]string(nil), a.Skills...),
			MaxTasks:      a.MaxTasks,
			ShiftDuration: a.ShiftDuration,
		}
		if a.Home != nil {
			va.Home = &vrp.Point{Lat: a.Home.Lat, Lon: a.Home.Lon}
		}
		in.Agents = append(in.Agents, va)
	}
	in.Normalize()
	return in
}

// FromVRP converts a domain instance back to its document form.
func FromVRP(in *vrp.Instance) Instance {
	doc := Instance{
		Depot:  Depot{ID: in.Depot.ID, Lat: in.Depot.Loc.Lat, Lon: in.Depot.Loc.Lon},
		Tasks:  make([]Task, 0, len(in.Tasks)),
		Agents: make([]Agent, 0, len(in.Agents)),
	}
	for _, t := range in.Tasks {
		doc.Tasks = append(doc.Tasks, Task{
			ID:            t.ID,
			RequiredSkill: t.Skill,
			Lat:           t.Loc.Lat,
			Lon:           t.Loc.Lon,
			Duration:      t.Duration,
			TimeWindowEnd: t.TimeWindowEnd,
		})
	}
	for _, a := range in.Agents {
		da := Agent{
			ID:            a.ID,
			Name:          a.Name,
			Skills:        append([]string(nil), a.Skills...),
			MaxTasks:      a.MaxTasks,
			ShiftDuration: a.ShiftDuration,
		}
		if a.Home != nil {
			da.Home = &Point{Lat: a.Home.Lat, Lon: a.Home.Lon}
		}
		doc.Agents = append(doc.Agents, da)
	}
	return doc
}

// FromResult converts an engine result for the wire.
func FromResult(r opt.Result) Result {
	out := Result{
		Status:        string(r.Status),
		Routes:        make(map[int]AgentRoute, len(r.Routes)),
		TotalDistance: r.Distance(),
		Uncovered:     r.Uncovered,
		Reason:        r.Reason,
		Stats: SolveStats{
			Backend:     r.Stats.Backend,
			Variables:   r.Stats.Variables,
			Constraints: r.Stats.Constraints,
			Integers:    r.Stats.Integers,
			BigM:        r.Stats.BigM,
			WarmStart:   r.Stats.WarmStart,
			Seed:        r.Stats.Seed,
			Bound:       r.Stats.Bound,
			Nodes:       r.Stats.Nodes,
			Objective:   r.Stats.Objective,
			SolveMs:     r.Stats.SolveTime.Milliseconds(),
		},
	}
	for id, ar := range r.Routes {
		out.Routes[id] = AgentRoute{Route: ar.Route, VisitedTasks: ar.VisitedTasks, TotalDistance: ar.TotalDistance}
	}
	return out
}

// Apply edits the task with id through the vrp edit operations, which bump
// the instance revision.
func (p TaskPatch) Apply(in *vrp.Instance, id int) error {
	t, ok := in.Task(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, vrp.ErrUnknownTask)
	}
	if p.Lat != nil || p.Lon != nil {
		loc := t.Loc
		if p.Lat != nil {
			loc.Lat = *p.Lat
		}
		if p.Lon != nil {
			loc.Lon = *p.Lon
		}
		if err := in.MoveTask(id, loc); err != nil {
			return err
		}
	}
	if p.RequiredSkill != nil {
		if err := in.SetTaskSkill(id, *p.RequiredSkill); err != nil {
			return err
		}
	}
	if p.Duration != nil {
		if err := in.SetTaskDuration(id, *p.Duration); err != nil {
			return err
		}
	}
	if p.TimeWindowEnd != nil {
		if err := in.SetTaskTimeWindowEnd(id, *p.TimeWindowEnd); err != nil {
			return err
		}
	}
	return nil
}
