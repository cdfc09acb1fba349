package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carevrp/internal/model"
)

const instanceYAML = `depot: {id: 0, lat: 0, lon: 0}
agents:
  - {id: 1, name: A, skills: [WoundCare]}
  - {id: 2, name: B, skills: [Pediatrics]}
tasks:
  - {id: 101, required_skill: WoundCare, lat: 0, lon: 0, duration: 10}
  - {id: 102, required_skill: Pediatrics, lat: 1, lon: 1, duration: 10}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// run executes the CLI with fresh flag state.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CAREVRP_CONFIG", "")
	flagConfig, flagFile, flagBackend, flagOutput = "", "", "", ""
	flagTimeLimit, flagJSON = 0, false
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSolveText(t *testing.T) {
	f := writeFile(t, "inst.yaml", instanceYAML)
	out, err := run(t, "solve", "-f", f, "--time-limit", "10s")
	if err != nil {
		t.Fatalf("solve: %v\n%s", err, out)
	}
	for _, want := range []string{"status: optimal", "agent 1 A: 0 -> 101 -> 0", "agent 2 B: 0 -> 102 -> 0", "total distance: 2.828"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSolveJSON(t *testing.T) {
	f := writeFile(t, "inst.yaml", instanceYAML)
	out, err := run(t, "solve", "-f", f, "--json")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	var res model.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Status != "optimal" || len(res.Routes) != 2 {
		t.Fatalf("result %+v", res)
	}
}

func TestSolveUncoveredSkill(t *testing.T) {
	f := writeFile(t, "inst.yaml", strings.Replace(instanceYAML, "skills: [Pediatrics]", "skills: [Nursing]", 1))
	out, err := run(t, "solve", "-f", f)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !strings.Contains(out, "status: skills_uncovered") || !strings.Contains(out, "Pediatrics") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestValidate(t *testing.T) {
	f := writeFile(t, "inst.yaml", instanceYAML)
	out, err := run(t, "validate", "-f", f)
	if err != nil || !strings.Contains(out, "ok: 2 tasks, 2 agents, 2 skills") {
		t.Fatalf("validate: %v %s", err, out)
	}
	bad := writeFile(t, "bad.json", `{"agents":[{"id":1,"skills":["A"]}],"tasks":[{"id":0,"required_skill":"A","lat":0,"lon":0,"duration":1}]}`)
	if _, err := run(t, "validate", "-f", bad); err == nil || !strings.Contains(err.Error(), "tasks[0].id") {
		t.Fatalf("want id error, got %v", err)
	}
	if _, err := run(t, "validate"); err == nil {
		t.Fatal("missing -f must fail")
	}
}

func TestExportLP(t *testing.T) {
	f := writeFile(t, "inst.yaml", instanceYAML)
	dst := filepath.Join(t.TempDir(), "model.lp")
	if _, err := run(t, "export-lp", "-f", f, "-o", dst); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	lp := string(b)
	for _, want := range []string{"Minimize", "Subject To", "assign_101", "Binaries", "End"} {
		if !strings.Contains(lp, want) {
			t.Errorf("lp missing %q", want)
		}
	}
}

func TestBackendFlagValidation(t *testing.T) {
	f := writeFile(t, "inst.yaml", instanceYAML)
	if _, err := run(t, "solve", "-f", f, "--backend", "gurobi"); err == nil {
		t.Fatal("unknown backend must fail")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || !strings.HasPrefix(out, "carevrp dev") {
		t.Fatalf("version: %v %q", err, out)
	}
}
