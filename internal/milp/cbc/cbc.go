// Package cbc runs models through the COIN-OR CBC command-line solver.
package cbc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"carevrp/internal/milp"
)

// ErrNotInstalled is returned when the cbc binary cannot be found.
var ErrNotInstalled = errors.New("cbc: binary not found")

// Solver shells out to cbc with an LP file and parses its solution file.
type Solver struct {
	Bin       string // path to cbc binary (default: "cbc")
	TimeLimit time.Duration
	// Threads is passed as "threads N" when > 0.
	Threads int
}

// New returns a solver using bin, or "cbc" from PATH when empty.
func New(bin string) *Solver {
	if bin == "" {
		bin = "cbc"
	}
	return &Solver{Bin: bin, TimeLimit: 60 * time.Second}
}

func (s *Solver) Name() string { return "cbc" }

// Available reports whether the binary resolves.
func (s *Solver) Available() bool {
	_, err := exec.LookPath(s.Bin)
	return err == nil
}

func (s *Solver) Solve(ctx context.Context, m *milp.Model, opts milp.Options) (milp.Solution, error) {
	start := time.Now()
	bin, err := exec.LookPath(s.Bin)
	if err != nil {
		return milp.Solution{}, fmt.Errorf("%w: %s", ErrNotInstalled, s.Bin)
	}
	dir, err := os.MkdirTemp("", "carevrp-cbc-")
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "solution.txt")
	f, err := os.Create(lpPath)
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: create model: %w", err)
	}
	if err := milp.WriteLP(f, m); err != nil {
		f.Close()
		return milp.Solution{}, fmt.Errorf("cbc: write model: %w", err)
	}
	if err := f.Close(); err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: write model: %w", err)
	}

	startPath := ""
	if verifiedStart(m, opts.Start) {
		startPath = filepath.Join(dir, "start.sol")
		if err := writeStartFile(startPath, m, opts.Start); err != nil {
			return milp.Solution{}, err
		}
	}

	limit := opts.TimeLimit
	if limit <= 0 {
		limit = s.TimeLimit
	}
	if limit > 0 {
		// grace period for cbc to write its incumbent after its own timer fires
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit+10*time.Second)
		defer cancel()
	}
	args := s.args(lpPath, startPath, solPath, limit, opts.NodeLimit)

	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return milp.Solution{Status: milp.StatusOther, Elapsed: time.Since(start), Reason: ctx.Err().Error()}, nil
	}
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc %s: %w\n%s", strings.Join(args, " "), err, string(out))
	}

	sf, err := os.Open(solPath)
	if err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: no solution file: %w\n%s", err, string(out))
	}
	defer sf.Close()
	sol, err := parseSolution(sf, m)
	if err != nil {
		return milp.Solution{}, err
	}
	sol.Elapsed = time.Since(start)
	sol.StartUsed = startPath != ""
	return sol, nil
}

func (s *Solver) args(lpPath, startPath, solPath string, limit time.Duration, nodeLimit int) []string {
	args := []string{lpPath}
	if startPath != "" {
		args = append(args, "mips", startPath)
	}
	if limit > 0 {
		args = append(args, "sec", strconv.FormatFloat(math.Ceil(limit.Seconds()), 'f', 0, 64))
	}
	if nodeLimit > 0 {
		args = append(args, "maxNodes", strconv.Itoa(nodeLimit))
	}
	if s.Threads > 0 {
		args = append(args, "threads", strconv.Itoa(s.Threads))
	}
	return append(args, "solve", "solu", solPath)
}

// startTol matches the integrality tolerance of the in-process backend.
const startTol = 1e-6

func verifiedStart(m *milp.Model, start []float64) bool {
	return len(start) == m.NumVars() && len(m.Violations(start, startTol)) == 0
}

func writeStartFile(path string, m *milp.Model, start []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cbc: create start: %w", err)
	}
	if err := writeStart(f, m, start); err != nil {
		f.Close()
		return fmt.Errorf("cbc: write start: %w", err)
	}
	return f.Close()
}

// writeStart emits a MIP start in the layout of cbc's own solution files,
// which its mips command reads back: a status line, then "index name value".
func writeStart(w io.Writer, m *milp.Model, start []float64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Feasible - objective value %s\n", strconv.FormatFloat(m.Objective().Eval(start), 'g', -1, 64))
	for i, v := range m.Variables() {
		fmt.Fprintf(bw, "%7d %s %s\n", i, v.Name, strconv.FormatFloat(start[i], 'g', -1, 64))
	}
	return bw.Flush()
}

// parseSolution reads a cbc "solu" file. The first line carries the status;
// each further line is "index name value reducedCost", optionally prefixed by
// "**" when the value breaks a bound. Unlisted variables are zero.
func parseSolution(r io.Reader, m *milp.Model) (milp.Solution, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return milp.Solution{}, fmt.Errorf("cbc: read solution: %w", err)
		}
		return milp.Solution{}, errors.New("cbc: empty solution file")
	}
	header := strings.TrimSpace(sc.Text())
	sol := milp.Solution{Reason: header}
	lower := strings.ToLower(header)
	switch {
	case strings.HasPrefix(header, "Optimal"):
		sol.Status = milp.StatusOptimal
	case strings.Contains(lower, "infeasible"):
		sol.Status = milp.StatusInfeasible
		return sol, nil
	default:
		sol.Status = milp.StatusOther
		return sol, nil
	}

	values := make([]float64, m.NumVars())
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}
		v, ok := m.Lookup(fields[1])
		if !ok {
			return milp.Solution{}, fmt.Errorf("cbc: solution names unknown variable %q", fields[1])
		}
		val, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return milp.Solution{}, fmt.Errorf("cbc: value for %s: %w", fields[1], err)
		}
		values[v] = val
	}
	if err := sc.Err(); err != nil {
		return milp.Solution{}, fmt.Errorf("cbc: read solution: %w", err)
	}
	sol.Values = values
	sol.Objective = m.Objective().Eval(values)
	return sol, nil
}
