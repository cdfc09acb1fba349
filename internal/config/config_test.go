package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carevrp.yaml")
	body := `
engine:
  bigM: 1000
  maxTasks: 12
  enforceTimeWindows: true
solver:
  timeLimit: 5s
server:
  workerInterval: 2s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_BURST", "7")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Engine.BigM != 1000 || c.Engine.MaxTasks != 12 || !c.Engine.EnforceTimeWindows {
		t.Fatalf("engine %+v", c.Engine)
	}
	if c.Engine.Horizon != 300 || c.Engine.MaxAgents != 10 {
		t.Fatalf("defaults lost: %+v", c.Engine)
	}
	if c.Solver.TimeLimit != 5*time.Second || c.Server.WorkerInterval != 2*time.Second {
		t.Fatalf("durations %v %v", c.Solver.TimeLimit, c.Server.WorkerInterval)
	}
	if c.Server.Addr != ":9090" || c.Server.RateBurst != 7 {
		t.Fatalf("env overlay %+v", c.Server)
	}
	ec := c.EngineConfig()
	if ec.Limits.MaxTasks != 12 || ec.BigM != 1000 || ec.TimeLimit != 5*time.Second {
		t.Fatalf("engine config %+v", ec)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("explicit missing file should fail")
	}
	t.Setenv(EnvFile, filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(""); err != nil {
		t.Fatalf("missing env file should fall back to defaults: %v", err)
	}
	t.Setenv("RATE_RPS", "fast")
	if _, err := Load(""); err == nil {
		t.Fatal("bad RATE_RPS should fail")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Solver.Backend = "gurobi"
	if err := c.Validate(); err == nil {
		t.Fatal("unknown backend accepted")
	}
	c = Default()
	c.Engine.MinArcStep = 0
	if err := c.Validate(); err == nil {
		t.Fatal("zero minArcStep accepted")
	}
	c = Default()
	c.Engine.ExactTasks = 17
	if err := c.Validate(); err == nil {
		t.Fatal("exactTasks above 16 accepted")
	}
	if got := Default().EngineConfig().ExactTasks; got != 14 {
		t.Fatalf("exactTasks = %d, want 14", got)
	}
	if _, err := Default().NewSolver(); err != nil {
		t.Fatalf("bnb solver: %v", err)
	}
}

func TestRedacted(t *testing.T) {
	c := Default()
	c.DatabaseURL = "postgres://user:pw@db/carevrp"
	r := c.Redacted()
	if r.DatabaseURL != "[redacted]" || r.RedisURL != "" {
		t.Fatalf("got %+v", r)
	}
	if c.DatabaseURL == r.DatabaseURL {
		t.Fatal("Redacted must not modify the receiver")
	}
}
