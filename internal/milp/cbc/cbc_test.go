package cbc

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"carevrp/internal/milp"
)

func smallModel() *milp.Model {
	m := milp.NewModel("small")
	a := m.AddBinary("a")
	b := m.AddBinary("b")
	c := m.AddContinuous("c", 0, 10)
	_ = m.AddConstraint("pick", milp.Sum(a, b), milp.Equal, 1)
	e := milp.Expr{}
	e.Add(c, 1).Add(a, -4)
	_ = m.AddConstraint("link", e, milp.GreaterEq, 0)
	obj := milp.Expr{}
	obj.Add(a, 1).Add(b, 3).Add(c, 1)
	_ = m.Minimize(obj)
	return m
}

func TestParseOptimal(t *testing.T) {
	m := smallModel()
	in := "Optimal - objective value 3.00000000\n" +
		"      1 b                    1                       3\n" +
		"**    2 c                    0.5                     1\n"
	sol, err := parseSolution(strings.NewReader(in), m)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sol.Status != milp.StatusOptimal {
		t.Fatalf("status %v", sol.Status)
	}
	if sol.Values[0] != 0 || sol.Values[1] != 1 || sol.Values[2] != 0.5 {
		t.Fatalf("values %v", sol.Values)
	}
	if math.Abs(sol.Objective-3.5) > 1e-9 {
		t.Fatalf("objective %v", sol.Objective)
	}
}

func TestParseStatuses(t *testing.T) {
	m := smallModel()
	cases := []struct {
		in   string
		want milp.Status
	}{
		{"Infeasible - objective value 0.00000000\n", milp.StatusInfeasible},
		{"Integer infeasible - objective value 0.00000000\n", milp.StatusInfeasible},
		{"Stopped on time - objective value 4.00000000\n", milp.StatusOther},
		{"Stopped on iterations - objective value 1e+50\n", milp.StatusOther},
		{"Unbounded - objective value 0.00000000\n", milp.StatusOther},
	}
	for _, tc := range cases {
		sol, err := parseSolution(strings.NewReader(tc.in), m)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if sol.Status != tc.want {
			t.Fatalf("%q: got %v want %v", tc.in, sol.Status, tc.want)
		}
		if sol.Values != nil {
			t.Fatalf("%q: values should be empty", tc.in)
		}
	}
}

func TestParseErrors(t *testing.T) {
	m := smallModel()
	if _, err := parseSolution(strings.NewReader(""), m); err == nil {
		t.Fatal("expected error for empty file")
	}
	in := "Optimal - objective value 1\n 0 nope 1 0\n"
	if _, err := parseSolution(strings.NewReader(in), m); err == nil {
		t.Fatal("expected error for unknown variable")
	}
}

func TestMissingBinary(t *testing.T) {
	s := New("definitely-not-a-cbc-binary")
	if s.Available() {
		t.Skip("unexpected binary on PATH")
	}
	if _, err := s.Solve(context.Background(), smallModel(), milp.Options{}); err == nil {
		t.Fatal("expected ErrNotInstalled")
	}
}

func TestSolveWithCBC(t *testing.T) {
	s := New("")
	if !s.Available() {
		t.Skip("cbc not on PATH")
	}
	sol, err := s.Solve(context.Background(), smallModel(), milp.Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != milp.StatusOptimal || math.Abs(sol.Objective-3) > 1e-6 {
		t.Fatalf("got %v obj=%v", sol.Status, sol.Objective)
	}
	if sol.StartUsed {
		t.Fatal("no start was offered")
	}
	sol, err = s.Solve(context.Background(), smallModel(), milp.Options{Start: []float64{1, 0, 4}})
	if err != nil {
		t.Fatalf("solve with start: %v", err)
	}
	if sol.Status != milp.StatusOptimal || !sol.StartUsed || math.Abs(sol.Objective-3) > 1e-6 {
		t.Fatalf("with start: %v used=%v obj=%v", sol.Status, sol.StartUsed, sol.Objective)
	}
}

func TestArgs(t *testing.T) {
	s := New("")
	s.Threads = 2
	got := strings.Join(s.args("m.lp", "start.sol", "out.txt", 1500*time.Millisecond, 100), " ")
	want := "m.lp mips start.sol sec 2 maxNodes 100 threads 2 solve solu out.txt"
	if got != want {
		t.Fatalf("args = %q\nwant   %q", got, want)
	}
	s.Threads = 0
	got = strings.Join(s.args("m.lp", "", "out.txt", 0, 0), " ")
	if got != "m.lp solve solu out.txt" {
		t.Fatalf("args without start = %q", got)
	}
}

func TestWriteStart(t *testing.T) {
	m := smallModel()
	start := []float64{1, 0, 4}
	if !verifiedStart(m, start) {
		t.Fatalf("start rejected: %v", m.Violations(start, startTol))
	}
	var buf bytes.Buffer
	if err := writeStart(&buf, m, start); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "Feasible - objective value 5") {
		t.Fatalf("start file:\n%s", buf.String())
	}
	for i, name := range []string{"a", "b", "c"} {
		f := strings.Fields(lines[i+1])
		if len(f) != 3 || f[0] != strconv.Itoa(i) || f[1] != name {
			t.Fatalf("line %q", lines[i+1])
		}
		if v, _ := strconv.ParseFloat(f[2], 64); v != start[i] {
			t.Fatalf("%s = %v, want %v", name, v, start[i])
		}
	}

	// b=1 with a=1 breaks "pick"; a short start is not a full assignment
	if verifiedStart(m, []float64{1, 1, 4}) || verifiedStart(m, []float64{1, 0}) {
		t.Fatal("infeasible or partial start accepted")
	}
}
