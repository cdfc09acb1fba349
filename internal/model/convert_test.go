package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"carevrp/internal/opt"
	"carevrp/internal/vrp"
)

const instanceYAML = `
depot: {id: 0, lat: 0, lon: 0}
agents:
  - id: 1
    name: Alice
    skills: [WoundCare, " WoundCare", Nursing]
    max_tasks: 3
    shift_duration: 240
tasks:
  - {id: 101, required_skill: WoundCare, lat: 1, lon: 2, duration: 10}
  - {id: 102, required_skill: Nursing, lat: 3, lon: 4, duration: 15, time_window_end: 120}
`

func TestDecodeYAMLAndConvert(t *testing.T) {
	doc, err := DecodeInstance(strings.NewReader(instanceYAML), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	in := doc.ToVRP()
	if err := in.Validate(vrp.DefaultLimits()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	a := in.Agents[0]
	if len(a.Skills) != 2 || a.Skills[0] != "Nursing" || a.Skills[1] != "WoundCare" {
		t.Fatalf("skills not normalized: %v", a.Skills)
	}
	if a.MaxTasks != 3 || a.ShiftDuration != 240 || a.Home != nil {
		t.Fatalf("agent %+v", a)
	}
	if task, _ := in.Task(102); task.TimeWindowEnd != 120 || task.Loc.Lon != 4 {
		t.Fatalf("task %+v", task)
	}
	back := FromVRP(in)
	if back.Tasks[0].RequiredSkill != "WoundCare" || back.Agents[0].Name != "Alice" {
		t.Fatalf("round trip %+v", back)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	if _, err := DecodeInstance(strings.NewReader(`{"depot":{"id":0},"agents":[],"tasks":[],"extra":1}`), false); err == nil {
		t.Fatal("json: expected unknown field error")
	}
	if _, err := DecodeInstance(strings.NewReader("depot: {id: 0}\nnurses: []\n"), true); err == nil {
		t.Fatal("yaml: expected unknown field error")
	}
}

func TestEncodeInstanceJSON(t *testing.T) {
	doc, _ := DecodeInstance(strings.NewReader(instanceYAML), true)
	var sb strings.Builder
	if err := EncodeInstance(&sb, doc, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"required_skill": "WoundCare"`, `"max_tasks": 3`, `"time_window_end": 120`} {
		if !strings.Contains(sb.String(), want) {
			t.Fatalf("missing %s in %s", want, sb.String())
		}
	}
	again, err := DecodeInstance(strings.NewReader(sb.String()), false)
	if err != nil || len(again.Tasks) != 2 {
		t.Fatalf("re-decode: %v %+v", err, again)
	}
}

func TestFromResult(t *testing.T) {
	r := opt.Result{
		Status: opt.StatusOptimal,
		Routes: map[int]opt.AgentRoute{
			1: {Route: []int{0, 101, 0}, VisitedTasks: []int{101}, TotalDistance: 4},
			2: {Route: []int{0, 0}, VisitedTasks: []int{}},
		},
		Stats: opt.Stats{Backend: "bnb", SolveTime: 1500 * time.Millisecond},
	}
	out := FromResult(r)
	if out.Status != "optimal" || out.TotalDistance != 4 || out.Stats.SolveMs != 1500 {
		t.Fatalf("got %+v", out)
	}
	if len(out.Routes) != 2 || out.Routes[1].VisitedTasks[0] != 101 {
		t.Fatalf("routes %+v", out.Routes)
	}
}

func TestTaskPatchBumpsRevision(t *testing.T) {
	doc, _ := DecodeInstance(strings.NewReader(instanceYAML), true)
	in := doc.ToVRP()
	lat, skill := 9.0, "Nursing"
	if err := (TaskPatch{Lat: &lat, RequiredSkill: &skill}).Apply(in, 101); err != nil {
		t.Fatalf("apply: %v", err)
	}
	task, _ := in.Task(101)
	if task.Loc.Lat != 9 || task.Loc.Lon != 2 || task.Skill != "Nursing" {
		t.Fatalf("task %+v", task)
	}
	if in.Revision == 0 {
		t.Fatal("revision not bumped")
	}
	if err := (TaskPatch{Lat: &lat}).Apply(in, 999); !errors.Is(err, vrp.ErrUnknownTask) {
		t.Fatalf("err = %v", err)
	}
	empty := ""
	if err := (TaskPatch{RequiredSkill: &empty}).Apply(in, 101); !errors.Is(err, vrp.ErrInvalidInstance) {
		t.Fatalf("err = %v", err)
	}
}
