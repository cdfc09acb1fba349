package opt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"testing"
	"time"

	"carevrp/internal/milp"
	"carevrp/internal/milp/bnb"
	"carevrp/internal/milp/cbc"
	"carevrp/internal/vrp"
)

func quietEngine(s milp.Solver, cfg Config) *Engine {
	e := NewEngine(s, cfg)
	e.Logger = log.New(io.Discard, "", 0)
	return e
}

// twoNurses is the co-located depot scenario: task 101 sits on the depot.
func twoNurses() *vrp.Instance {
	return &vrp.Instance{
		Agents: []vrp.Agent{
			{ID: 1, Name: "A", Skills: []string{"WoundCare"}},
			{ID: 2, Name: "B", Skills: []string{"Pediatrics"}},
		},
		Tasks: []vrp.Task{
			{ID: 101, Skill: "WoundCare", Duration: 10},
			{ID: 102, Skill: "Pediatrics", Loc: vrp.Point{Lat: 1, Lon: 1}, Duration: 10},
		},
	}
}

func threeVisits() *vrp.Instance {
	return &vrp.Instance{
		Agents: []vrp.Agent{
			{ID: 1, Skills: []string{"Nursing"}},
			{ID: 2, Skills: []string{"Nursing", "WoundCare"}},
		},
		Tasks: []vrp.Task{
			{ID: 1, Skill: "Nursing", Loc: vrp.Point{Lat: 2, Lon: 5}, Duration: 20},
			{ID: 2, Skill: "Nursing", Loc: vrp.Point{Lat: 5, Lon: 2}, Duration: 30},
			{ID: 3, Skill: "WoundCare", Loc: vrp.Point{Lat: 6, Lon: 6}, Duration: 15},
		},
	}
}

// checkResult asserts the properties every non-empty result must have.
func checkResult(t *testing.T, in *vrp.Instance, res Result) {
	t.Helper()
	coords := in.Coordinates()
	seen := map[int]int{}
	for agentID, ar := range res.Routes {
		a, ok := in.Agent(agentID)
		if !ok {
			t.Fatalf("route for unknown agent %d", agentID)
		}
		r := ar.Route
		if len(r) < 2 || r[0] != vrp.DepotID || r[len(r)-1] != vrp.DepotID {
			t.Fatalf("agent %d: route %v not closed at depot", agentID, r)
		}
		for _, id := range ar.VisitedTasks {
			if other, dup := seen[id]; dup {
				t.Fatalf("task %d visited by %d and %d", id, other, agentID)
			}
			seen[id] = agentID
			task, ok := in.Task(id)
			if !ok {
				t.Fatalf("unknown task %d", id)
			}
			if !a.HasSkill(task.Skill) {
				t.Fatalf("agent %d lacks %s for task %d", agentID, task.Skill, id)
			}
		}
		want := 0.0
		for i := 1; i < len(r); i++ {
			want += vrp.Euclidean(coords[r[i-1]], coords[r[i]])
		}
		if math.Abs(want-ar.TotalDistance) > 1e-9 {
			t.Fatalf("agent %d: distance %v, recomputed %v", agentID, ar.TotalDistance, want)
		}
	}
}

func TestBuildModelCounts(t *testing.T) {
	in := twoNurses()
	dm := vrp.NewDistanceMatrix(in.Nodes())
	am, err := BuildModel(in, dm, DefaultConfig())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := am.Model.NumVars(); got != 20 {
		t.Fatalf("vars = %d, want 20", got)
	}
	// 34 base rows plus one depot link per eligible pair; no task pair
	// shares an agent
	if got := am.Model.NumConstraints(); got != 36 {
		t.Fatalf("constraints = %d, want 36", got)
	}
	if am.X(1, 1, 0) != milp.NoVar || am.X(0, 3, 0) != milp.NoVar || am.T(0, 2) != milp.NoVar {
		t.Fatal("out-of-range accessors must return NoVar")
	}
	if v, ok := am.Model.Lookup("x_0_102_1"); !ok || v != am.X(0, 2, 1) {
		t.Fatalf("lookup x_0_102_1 = %v %v", v, ok)
	}
	if am.BigM <= dm.Max() {
		t.Fatalf("derived M %v too small", am.BigM)
	}

	cfg := DefaultConfig()
	cfg.BigM = 1000
	cfg.EnforceTimeWindows = true
	in.Tasks[0].TimeWindowEnd = 50
	am, err = BuildModel(in, dm, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if am.BigM != 1000 {
		t.Fatalf("configured M ignored: %v", am.BigM)
	}
	if got := am.Model.NumConstraints(); got != 38 {
		t.Fatalf("constraints with windows = %d, want 38", got)
	}
}

func TestBuildModelEncodesUncoverableTask(t *testing.T) {
	in := &vrp.Instance{
		Agents: []vrp.Agent{{ID: 1, Skills: []string{"WoundCare"}}},
		Tasks:  []vrp.Task{{ID: 7, Skill: "Pediatrics", Loc: vrp.Point{Lat: 3, Lon: 4}}},
	}
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range am.Model.Constraints() {
		if c.Name == "assign_7" {
			found = true
			if len(c.Expr.Terms) != 0 || c.RHS != 1 {
				t.Fatalf("assign_7 = %+v", c)
			}
		}
	}
	if !found {
		t.Fatal("assignment row missing")
	}
	sol, err := bnb.New().Solve(context.Background(), am.Model, milp.Options{})
	if err != nil || sol.Status != milp.StatusInfeasible {
		t.Fatalf("got %v err=%v", sol.Status, err)
	}
}

func TestSkillsUncoveredIsEmpty(t *testing.T) {
	in := &vrp.Instance{
		Agents: []vrp.Agent{{ID: 1, Skills: []string{"WoundCare"}}},
		Tasks:  []vrp.Task{{ID: 1, Skill: "Pediatrics", Loc: vrp.Point{Lat: 1, Lon: 1}, Duration: 5}},
	}
	var stages []Stage
	e := quietEngine(bnb.New(), DefaultConfig())
	e.Observe = func(s Stage) { stages = append(stages, s) }
	res, err := e.Solve(context.Background(), in)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusSkillsUncovered || !res.Empty() {
		t.Fatalf("got %+v", res)
	}
	if len(res.Uncovered) != 1 || res.Uncovered[0] != "Pediatrics" {
		t.Fatalf("uncovered %v", res.Uncovered)
	}
	if len(stages) != 2 || stages[0] != StageBuilding || stages[1] != StageEmpty {
		t.Fatalf("stages %v", stages)
	}
}

func TestCoLocatedTaskGoesToEligibleAgent(t *testing.T) {
	in := twoNurses()
	var stages []Stage
	e := quietEngine(bnb.New(), DefaultConfig())
	e.Observe = func(s Stage) { stages = append(stages, s) }
	res, err := e.Solve(context.Background(), in)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("status %s (%s)", res.Status, res.Reason)
	}
	checkResult(t, in, res)
	a, b := res.Routes[1], res.Routes[2]
	if len(a.VisitedTasks) != 1 || a.VisitedTasks[0] != 101 {
		t.Fatalf("agent A visited %v", a.VisitedTasks)
	}
	if len(b.VisitedTasks) != 1 || b.VisitedTasks[0] != 102 {
		t.Fatalf("agent B visited %v", b.VisitedTasks)
	}
	if math.Abs(res.Distance()-2*math.Sqrt2) > 1e-6 {
		t.Fatalf("distance %v", res.Distance())
	}
	want := []Stage{StageBuilding, StageSolving, StageExtracting, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stages %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages %v", stages)
		}
	}
}

// bestByEnumeration tries every eligible assignment and visiting order.
func bestByEnumeration(in *vrp.Instance) float64 {
	coords := in.Coordinates()
	n := len(in.Tasks)
	best := math.Inf(1)
	owner := make([]int, n)
	tourCost := func(ids []int) float64 {
		if len(ids) == 0 {
			return 0
		}
		shortest := math.Inf(1)
		permute(ids, 0, func(p []int) {
			r := append([]int{vrp.DepotID}, p...)
			r = append(r, vrp.DepotID)
			if c := RouteLength(r, coords); c < shortest {
				shortest = c
			}
		})
		return shortest
	}
	var assign func(j int)
	assign = func(j int) {
		if j == n {
			total := 0.0
			for k := range in.Agents {
				var ids []int
				for t, o := range owner {
					if o == k {
						ids = append(ids, in.Tasks[t].ID)
					}
				}
				total += tourCost(ids)
			}
			if total < best {
				best = total
			}
			return
		}
		for k, a := range in.Agents {
			if a.HasSkill(in.Tasks[j].Skill) {
				owner[j] = k
				assign(j + 1)
			}
		}
	}
	assign(0)
	return best
}

func permute(a []int, i int, fn func([]int)) {
	if i == len(a) {
		fn(a)
		return
	}
	for j := i; j < len(a); j++ {
		a[i], a[j] = a[j], a[i]
		permute(a, i+1, fn)
		a[i], a[j] = a[j], a[i]
	}
}

func TestSmallInstanceMatchesEnumeration(t *testing.T) {
	in := threeVisits()
	res, err := quietEngine(bnb.New(), DefaultConfig()).Solve(context.Background(), in)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("status %s (%s)", res.Status, res.Reason)
	}
	checkResult(t, in, res)
	if !res.Stats.WarmStart {
		t.Fatal("a seed start should exist for this instance")
	}
	if want := bestByEnumeration(in); math.Abs(res.Distance()-want) > 1e-6 {
		t.Fatalf("distance %v, enumeration %v", res.Distance(), want)
	}
	if math.Abs(res.Stats.Objective-res.Distance()) > 1e-6 {
		t.Fatalf("objective %v disagrees with routes %v", res.Stats.Objective, res.Distance())
	}
}

func TestWarmStartIsFeasible(t *testing.T) {
	in := threeVisits()
	cfg := DefaultConfig()
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if err != nil {
		t.Fatal(err)
	}
	start := WarmStart(am, cfg)
	if start == nil {
		t.Fatal("no warm start")
	}
	if v := am.Model.Violations(start, 1e-6); len(v) != 0 {
		t.Fatalf("warm start violates %v", v)
	}
	// one agent with room for a single visit cannot place three
	in.Agents = in.Agents[1:]
	in.Agents[0].MaxTasks = 1
	am, _ = BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if WarmStart(am, cfg) != nil {
		t.Fatal("expected no warm start")
	}
}

func TestLimitsMakeModelInfeasible(t *testing.T) {
	base := func() *vrp.Instance {
		return &vrp.Instance{
			Agents: []vrp.Agent{{ID: 1, Skills: []string{"Nursing"}}},
			Tasks: []vrp.Task{
				{ID: 1, Skill: "Nursing", Loc: vrp.Point{Lat: 3, Lon: 4}, Duration: 10},
				{ID: 2, Skill: "Nursing", Loc: vrp.Point{Lat: -3, Lon: 4}, Duration: 10},
			},
		}
	}
	cases := []struct {
		name   string
		mutate func(in *vrp.Instance, cfg *Config)
		want   Status
	}{
		{"unconstrained", func(*vrp.Instance, *Config) {}, StatusOptimal},
		{"capacity", func(in *vrp.Instance, _ *Config) { in.Agents[0].MaxTasks = 1 }, StatusInfeasible},
		{"shift", func(in *vrp.Instance, _ *Config) { in.Agents[0].ShiftDuration = 25 }, StatusInfeasible},
		{"horizon", func(_ *vrp.Instance, c *Config) { c.Horizon = 4 }, StatusInfeasible},
		{"window ignored", func(in *vrp.Instance, _ *Config) { in.Tasks[0].TimeWindowEnd = 2 }, StatusOptimal},
		{"window enforced", func(in *vrp.Instance, c *Config) {
			in.Tasks[0].TimeWindowEnd = 2
			c.EnforceTimeWindows = true
		}, StatusInfeasible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, cfg := base(), DefaultConfig()
			tc.mutate(in, &cfg)
			res, err := quietEngine(bnb.New(), cfg).Solve(context.Background(), in)
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if res.Status != tc.want {
				t.Fatalf("status %s (%s), want %s", res.Status, res.Reason, tc.want)
			}
			if tc.want != StatusOptimal && !res.Empty() {
				t.Fatalf("expected empty result, got %v", res.Routes)
			}
			checkResult(t, in, res)
		})
	}
}

func largeInstance(tasks, agents int) *vrp.Instance {
	skills := []string{"Nursing", "WoundCare", "Pediatrics"}
	in := &vrp.Instance{}
	for k := 0; k < agents; k++ {
		in.Agents = append(in.Agents, vrp.Agent{ID: k + 1, Skills: []string{skills[k%3], skills[(k+1)%3]}, MaxTasks: 8})
	}
	for j := 0; j < tasks; j++ {
		in.Tasks = append(in.Tasks, vrp.Task{
			ID:       100 + j,
			Skill:    skills[j%3],
			Loc:      vrp.Point{Lat: float64((j * 7) % 10), Lon: float64((j * 3) % 10)},
			Duration: 5,
		})
	}
	return in
}

func TestOversizedInstanceRejectedBeforeBuilding(t *testing.T) {
	calls := 0
	e := quietEngine(&fakeSolver{solve: func(*milp.Model) (milp.Solution, error) {
		calls++
		return milp.Solution{}, nil
	}}, DefaultConfig())
	var stages []Stage
	e.Observe = func(s Stage) { stages = append(stages, s) }
	start := time.Now()
	_, err := e.Solve(context.Background(), largeInstance(20, 8))
	if !errors.Is(err, vrp.ErrTooLarge) || !errors.Is(err, vrp.ErrInvalidInstance) {
		t.Fatalf("err = %v", err)
	}
	if calls != 0 || len(stages) != 0 {
		t.Fatalf("solver calls=%d stages=%v", calls, stages)
	}
	if time.Since(start) > time.Second {
		t.Fatal("rejection took too long")
	}
}

func busyAgents(res Result) int {
	busy := 0
	for _, ar := range res.Routes {
		if len(ar.VisitedTasks) > 0 {
			busy++
		}
	}
	return busy
}

func TestMediumInstancesInProcess(t *testing.T) {
	cases := []struct{ tasks, agents int }{{8, 4}, {10, 3}, {10, 10}, {12, 5}}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.tasks, tc.agents), func(t *testing.T) {
			in := largeInstance(tc.tasks, tc.agents)
			cfg := DefaultConfig()
			cfg.Limits = vrp.Limits{}
			start := time.Now()
			res, err := quietEngine(bnb.New(), cfg).Solve(context.Background(), in)
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if res.Status != StatusOptimal {
				t.Fatalf("status %s (%s) after %s", res.Status, res.Reason, time.Since(start))
			}
			checkResult(t, in, res)
			if busyAgents(res) == 0 {
				t.Fatal("no agent visits anything")
			}
			visited := 0
			for _, ar := range res.Routes {
				visited += len(ar.VisitedTasks)
			}
			if visited != tc.tasks {
				t.Fatalf("visited %d of %d tasks", visited, tc.tasks)
			}
			if res.Stats.Seed != "exact" || !res.Stats.WarmStart {
				t.Fatalf("seed=%q warmStart=%v", res.Stats.Seed, res.Stats.WarmStart)
			}
			if math.Abs(res.Distance()-res.Stats.Bound) > 1e-6 {
				t.Fatalf("distance %v above proven bound %v", res.Distance(), res.Stats.Bound)
			}
			if time.Since(start) > 10*time.Second {
				t.Fatalf("took %s", time.Since(start))
			}
		})
	}
}

func TestExactSeed(t *testing.T) {
	in := threeVisits()
	cfg := DefaultConfig()
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if err != nil {
		t.Fatal(err)
	}
	seed := NewSeed(am, cfg)
	if !seed.Proven || seed.Source != "exact" {
		t.Fatalf("seed %+v", seed)
	}
	if want := bestByEnumeration(in); math.Abs(seed.Bound-want) > 1e-9 {
		t.Fatalf("bound %v, enumeration %v", seed.Bound, want)
	}
	if v := am.Model.Violations(seed.Values, 1e-6); len(v) != 0 {
		t.Fatalf("exact seed violates %v", v)
	}
	if obj := am.Model.Objective().Eval(seed.Values); math.Abs(obj-seed.Bound) > 1e-9 {
		t.Fatalf("seed objective %v, bound %v", obj, seed.Bound)
	}

	off := cfg
	off.ExactTasks = 0
	if s := NewSeed(am, off); s.Proven || s.Source != "greedy" {
		t.Fatalf("disabled enumeration: %+v", s)
	}

	in.Agents = in.Agents[1:]
	in.Agents[0].MaxTasks = 2
	am, _ = BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if s := NewSeed(am, cfg); !s.Proven || !math.IsInf(s.Bound, 1) || s.Values != nil {
		t.Fatalf("three visits for a two-visit agent: %+v", s)
	}
}

func TestSearchKeepsTimeLimit(t *testing.T) {
	in := largeInstance(14, 6)
	cfg := DefaultConfig()
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if err != nil {
		t.Fatal(err)
	}
	limit := time.Second
	start := time.Now()
	sol, err := bnb.New().Solve(context.Background(), am.Model, milp.Options{TimeLimit: limit})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed > limit+time.Second {
		t.Fatalf("search ran %s with a %s limit", elapsed, limit)
	}
	if sol.Status == milp.StatusOther && sol.Reason != "time limit" {
		t.Fatalf("reason %q", sol.Reason)
	}
}

func TestLargeInstanceReturnsWithinBudget(t *testing.T) {
	in := largeInstance(20, 8)
	cfg := DefaultConfig()
	cfg.Limits = vrp.Limits{}
	cfg.TimeLimit = 5 * time.Second
	start := time.Now()
	res, err := quietEngine(bnb.New(), cfg).Solve(context.Background(), in)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if time.Since(start) > cfg.TimeLimit+time.Second {
		t.Fatalf("took %s", time.Since(start))
	}
	if res.Status != StatusOptimal && !res.Empty() {
		t.Fatalf("%s result carries routes", res.Status)
	}
}

func TestTwelveTasksWithCBC(t *testing.T) {
	if _, err := exec.LookPath("cbc"); err != nil {
		t.Skip("cbc not on PATH")
	}
	in := largeInstance(12, 5)
	cfg := DefaultConfig()
	cfg.Limits = vrp.Limits{}
	cfg.TimeLimit = 60 * time.Second
	res, err := quietEngine(cbc.New(""), cfg).Solve(context.Background(), in)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	checkResult(t, in, res)
	if res.Status == StatusOptimal && busyAgents(res) == 0 {
		t.Fatal("no agent visits anything")
	}
}

type fakeSolver struct {
	solve func(m *milp.Model) (milp.Solution, error)
}

func (f *fakeSolver) Name() string { return "fake" }
func (f *fakeSolver) Solve(_ context.Context, m *milp.Model, _ milp.Options) (milp.Solution, error) {
	return f.solve(m)
}

func TestSolverOutcomesBecomeEmptyResults(t *testing.T) {
	cases := []struct {
		name  string
		solve func(m *milp.Model) (milp.Solution, error)
		want  Status
	}{
		{"limit", func(*milp.Model) (milp.Solution, error) {
			return milp.Solution{Status: milp.StatusOther, Reason: "time limit"}, nil
		}, StatusLimit},
		{"error", func(*milp.Model) (milp.Solution, error) {
			return milp.Solution{}, errors.New("out of memory")
		}, StatusSolverError},
		{"panic", func(*milp.Model) (milp.Solution, error) {
			panic("boom")
		}, StatusSolverError},
		{"short vector", func(*milp.Model) (milp.Solution, error) {
			return milp.Solution{Status: milp.StatusOptimal, Values: []float64{1}}, nil
		}, StatusSolverError},
		{"all zero", func(m *milp.Model) (milp.Solution, error) {
			return milp.Solution{Status: milp.StatusOptimal, Values: make([]float64, m.NumVars())}, nil
		}, StatusInvalidSolution},
		{"ineligible agent", func(m *milp.Model) (milp.Solution, error) {
			v := make([]float64, m.NumVars())
			for _, name := range []string{"x_0_101_1", "x_101_102_1", "x_102_0_1"} {
				id, _ := m.Lookup(name)
				v[id] = 1
			}
			return milp.Solution{Status: milp.StatusOptimal, Values: v}, nil
		}, StatusInvalidSolution},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var last Stage
			e := quietEngine(&fakeSolver{solve: tc.solve}, DefaultConfig())
			e.Observe = func(s Stage) { last = s }
			res, err := e.Solve(context.Background(), twoNurses())
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if res.Status != tc.want || !res.Empty() {
				t.Fatalf("got %s routes=%v", res.Status, res.Routes)
			}
			if last != StageEmpty {
				t.Fatalf("last stage %s", last)
			}
		})
	}
}

func TestExtractRoutesClosesTruncatedWalks(t *testing.T) {
	in := threeVisits()
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	v := make([]float64, am.Model.NumVars())
	// agent 0: 0 -> 1 -> 2 with no arc home
	v[am.X(0, 1, 0)] = 1
	v[am.X(1, 2, 0)] = 0.9999
	// agent 1: 0 -> 3 -> 3's successor points back at a visited node
	v[am.X(0, 3, 1)] = 1
	v[am.X(3, 0, 1)] = 0.2
	routes := ExtractRoutes(am, v)
	if got := routes[0]; len(got) != 4 || got[1] != 1 || got[2] != 2 || got[3] != vrp.DepotID {
		t.Fatalf("agent 0 route %v", got)
	}
	if got := routes[1]; len(got) != 3 || got[1] != 3 || got[2] != vrp.DepotID {
		t.Fatalf("agent 1 route %v", got)
	}
	if bad := ValidateRoutes(in, DefaultConfig(), routes); len(bad) != 0 {
		t.Fatalf("unexpected violations %v", bad)
	}

	// a cycle among tasks ends the walk once every successor is visited
	v = make([]float64, am.Model.NumVars())
	v[am.X(0, 1, 0)] = 1
	v[am.X(1, 2, 0)] = 1
	v[am.X(2, 1, 0)] = 1
	routes = ExtractRoutes(am, v)
	if got := routes[0]; len(got) != 4 || got[3] != vrp.DepotID {
		t.Fatalf("cycle route %v", got)
	}
	if got := routes[1]; len(got) != 2 {
		t.Fatalf("unused agent route %v", got)
	}
	if bad := ValidateRoutes(in, DefaultConfig(), routes); len(bad) != 1 {
		t.Fatalf("want task 3 reported missing, got %v", bad)
	}
}

func TestAssembleRoutes(t *testing.T) {
	in := threeVisits()
	out := AssembleRoutes(in, [][]int{{0, 1, 2, 0}, {0, 3, 0}})
	a := out[1]
	if len(a.VisitedTasks) != 2 || a.VisitedTasks[0] != 1 || a.VisitedTasks[1] != 2 {
		t.Fatalf("visited %v", a.VisitedTasks)
	}
	want := math.Hypot(2, 5) + math.Hypot(3, 3) + math.Hypot(5, 2)
	if math.Abs(a.TotalDistance-want) > 1e-9 {
		t.Fatalf("distance %v want %v", a.TotalDistance, want)
	}
	if b := out[2]; math.Abs(b.TotalDistance-2*math.Hypot(6, 6)) > 1e-9 {
		t.Fatalf("agent 2 distance %v", b.TotalDistance)
	}
}

func TestImprovePlanUncrossesTour(t *testing.T) {
	in := &vrp.Instance{
		Agents: []vrp.Agent{{ID: 1, Skills: []string{"Nursing"}}},
		Tasks: []vrp.Task{
			{ID: 1, Skill: "Nursing", Loc: vrp.Point{Lat: 0, Lon: 2}},
			{ID: 2, Skill: "Nursing", Loc: vrp.Point{Lat: 2, Lon: 2}},
			{ID: 3, Skill: "Nursing", Loc: vrp.Point{Lat: 2, Lon: 0}},
		},
	}
	cfg := DefaultConfig()
	am, err := BuildModel(in, vrp.NewDistanceMatrix(in.Nodes()), cfg)
	if err != nil {
		t.Fatal(err)
	}
	crossed := plan{order: []int{2, 1, 3}}
	if d := tourDistance(am, crossed.order); math.Abs(d-(4+4*math.Sqrt2)) > 1e-9 {
		t.Fatalf("crossed length %v", d)
	}
	got := improvePlan(am, cfg, 0, crossed, 5)
	if d := tourDistance(am, got.order); math.Abs(d-8) > 1e-9 {
		t.Fatalf("improved %v has length %v", got.order, d)
	}
	if len(got.arrive) != 3 || got.arrive[0] <= 0 {
		t.Fatalf("arrivals %v", got.arrive)
	}

	// a shift too short for the detour keeps no candidate
	in.Agents[0].ShiftDuration = 7
	if _, ok := schedule(am, cfg, 0, []int{1, 2, 3}); ok {
		t.Fatal("tour of length 8 fits a shift of 7")
	}
}
