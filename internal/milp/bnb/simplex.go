package bnb

import (
	"context"
	"fmt"
	"math"

	"carevrp/internal/milp"
)

const (
	pivotTol = 1e-9
	costTol  = 1e-9
	feasTol  = 1e-7
	// consecutive degenerate pivots tolerated before switching to Bland's rule
	degenerateRun = 50
	// pivots between context checks
	checkEvery = 16
	// maxCells caps the dense tableau (rows x columns) one relaxation may
	// allocate.
	maxCells = 1 << 24
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpIterLimit
	lpAborted
)

type lpResult struct {
	status lpStatus
	obj    float64
	x      []float64
}

// row is one model constraint in sparse form.
type row struct {
	idx   []int
	coef  []float64
	sense milp.Sense
	rhs   float64
}

// problem is the solver's flattened copy of a milp.Model.
type problem struct {
	n        int
	cost     []float64
	constant float64
	rows     []row
	lower    []float64
	upper    []float64
	integer  []bool
}

func newProblem(m *milp.Model) (*problem, error) {
	vars := m.Variables()
	p := &problem{
		n:       len(vars),
		cost:    make([]float64, len(vars)),
		lower:   make([]float64, len(vars)),
		upper:   make([]float64, len(vars)),
		integer: make([]bool, len(vars)),
	}
	for i, v := range vars {
		if math.IsInf(v.Lower, -1) || math.IsNaN(v.Lower) {
			return nil, fmt.Errorf("bnb: variable %s needs a finite lower bound", v.Name)
		}
		if v.Upper < v.Lower {
			return nil, fmt.Errorf("bnb: variable %s has empty domain [%g,%g]", v.Name, v.Lower, v.Upper)
		}
		p.lower[i] = v.Lower
		p.upper[i] = v.Upper
		p.integer[i] = v.Kind != milp.Continuous
		if p.integer[i] {
			p.lower[i] = math.Ceil(v.Lower - feasTol)
			if !math.IsInf(v.Upper, 1) {
				p.upper[i] = math.Floor(v.Upper + feasTol)
			}
		}
	}
	obj := m.Objective()
	p.constant = obj.Constant
	for _, t := range obj.Terms {
		p.cost[t.Var] += t.Coef
	}
	for _, c := range m.Constraints() {
		r := row{sense: c.Sense, rhs: c.RHS, idx: make([]int, len(c.Expr.Terms)), coef: make([]float64, len(c.Expr.Terms))}
		for i, t := range c.Expr.Terms {
			r.idx[i] = int(t.Var)
			r.coef[i] = t.Coef
		}
		p.rows = append(p.rows, r)
	}
	return p, nil
}

// cells bounds the tableau size of a relaxation: every row may carry a
// slack and an artificial column.
func (p *problem) cells() int {
	r := len(p.rows)
	return r * (p.n + 2*r + 1)
}

// tableau is a dense bounded-variable simplex tableau in canonical form.
// Column n of each row holds the right-hand side; z holds reduced costs with
// z[n] = -objective. Every nonbasic column sits at zero: a variable resting
// at its upper bound is complemented (x = ub - x') and flagged in flip.
type tableau struct {
	m, n  int
	a     [][]float64
	z     []float64
	ub    []float64
	flip  []bool
	basis []int
	nz    []int
}

func (t *tableau) setCost(c []float64) {
	t.z = make([]float64, t.n+1)
	for j := 0; j < t.n; j++ {
		if t.flip[j] {
			t.z[j] = -c[j]
		} else {
			t.z[j] = c[j]
		}
	}
	for i := 0; i < t.m; i++ {
		cb := t.z[t.basis[i]]
		if cb == 0 {
			continue
		}
		r := t.a[i]
		for j := 0; j <= t.n; j++ {
			t.z[j] -= cb * r[j]
		}
	}
}

func (t *tableau) pivot(r, c int) {
	pr := t.a[r]
	inv := 1 / pr[c]
	t.nz = t.nz[:0]
	for j := range pr {
		if pr[j] != 0 {
			pr[j] *= inv
			t.nz = append(t.nz, j)
		}
	}
	pr[c] = 1
	for i := 0; i < t.m; i++ {
		if i == r {
			continue
		}
		ri := t.a[i]
		f := ri[c]
		if f == 0 {
			continue
		}
		for _, j := range t.nz {
			ri[j] -= f * pr[j]
		}
		ri[c] = 0
		if ri[t.n] < 0 && ri[t.n] > -feasTol {
			ri[t.n] = 0
		}
	}
	if f := t.z[c]; f != 0 {
		for _, j := range t.nz {
			t.z[j] -= f * pr[j]
		}
		t.z[c] = 0
	}
	t.basis[r] = c
}

// flipColumn moves nonbasic column j to its other bound.
func (t *tableau) flipColumn(j int) {
	u := t.ub[j]
	for i := 0; i < t.m; i++ {
		r := t.a[i]
		if a := r[j]; a != 0 {
			r[t.n] -= a * u
			r[j] = -a
		}
	}
	if c := t.z[j]; c != 0 {
		t.z[t.n] -= c * u
		t.z[j] = -c
	}
	t.flip[j] = !t.flip[j]
}

// flipBasic complements the basic variable of row i so that it leaves the
// basis at its upper bound.
func (t *tableau) flipBasic(i int) {
	b := t.basis[i]
	r := t.a[i]
	for j := 0; j < t.n; j++ {
		if j != b && r[j] != 0 {
			r[j] = -r[j]
		}
	}
	r[t.n] = t.ub[b] - r[t.n]
	if r[t.n] < 0 && r[t.n] > -feasTol {
		r[t.n] = 0
	}
	t.flip[b] = !t.flip[b]
}

func (t *tableau) dropRow(i int) {
	t.a = append(t.a[:i], t.a[i+1:]...)
	t.basis = append(t.basis[:i], t.basis[i+1:]...)
	t.m--
}

// values reads every column in its original orientation.
func (t *tableau) values() []float64 {
	x := make([]float64, t.n)
	for i := 0; i < t.m; i++ {
		x[t.basis[i]] = t.a[i][t.n]
	}
	for j := 0; j < t.n; j++ {
		if t.flip[j] {
			x[j] = t.ub[j] - x[j]
		}
	}
	return x
}

// run iterates primal simplex over entering columns [0, limit).
func (t *tableau) run(ctx context.Context, limit, maxIter int) lpStatus {
	bland := false
	degenerate := 0
	for it := 0; it < maxIter; it++ {
		if it%checkEvery == 0 && ctx.Err() != nil {
			return lpAborted
		}
		enter := -1
		best := -costTol
		for j := 0; j < limit; j++ {
			if t.z[j] < best {
				enter = j
				best = t.z[j]
				if bland {
					break
				}
			}
		}
		if enter < 0 {
			return lpOptimal
		}

		// the entering column may hit its own bound, drive a basic variable
		// to zero or push one up to its bound
		ratio := t.ub[enter]
		leave, toUpper := -1, false
		for i := 0; i < t.m; i++ {
			aij := t.a[i][enter]
			var q float64
			var up bool
			switch {
			case aij > pivotTol:
				q = t.a[i][t.n] / aij
			case aij < -pivotTol:
				u := t.ub[t.basis[i]]
				if math.IsInf(u, 1) {
					continue
				}
				q, up = (u-t.a[i][t.n])/-aij, true
			default:
				continue
			}
			if q < 0 {
				q = 0
			}
			if q < ratio-1e-12 || (q <= ratio+1e-12 && (leave < 0 || t.basis[i] < t.basis[leave])) {
				ratio, leave, toUpper = q, i, up
			}
		}
		if leave < 0 && math.IsInf(ratio, 1) {
			return lpUnbounded
		}
		if ratio <= 1e-12 {
			degenerate++
			if degenerate > degenerateRun {
				bland = true
			}
		} else {
			degenerate = 0
		}
		if leave < 0 {
			t.flipColumn(enter)
			continue
		}
		if toUpper {
			t.flipBasic(leave)
		}
		t.pivot(leave, enter)
	}
	return lpIterLimit
}

type stdRow struct {
	a     []float64
	sense milp.Sense
	rhs   float64
}

// relax solves the LP relaxation with per-variable bounds lo/hi. Variables
// with lo == hi are substituted out; the rest are shifted to start at zero
// and keep their widths as column bounds.
func (p *problem) relax(ctx context.Context, lo, hi []float64) lpResult {
	col := make([]int, p.n)
	var free []int
	for v := 0; v < p.n; v++ {
		if hi[v] < lo[v]-feasTol {
			return lpResult{status: lpInfeasible}
		}
		if hi[v]-lo[v] > feasTol {
			col[v] = len(free)
			free = append(free, v)
		} else {
			col[v] = -1
		}
	}
	nf := len(free)

	rows := make([]stdRow, 0, len(p.rows))
	for _, r := range p.rows {
		a := make([]float64, nf)
		rhs := r.rhs
		empty := true
		for t, v := range r.idx {
			c := r.coef[t]
			rhs -= c * lo[v]
			if col[v] >= 0 {
				a[col[v]] += c
				empty = false
			}
		}
		if empty {
			ok := true
			switch r.sense {
			case milp.LessEq:
				ok = rhs >= -feasTol
			case milp.GreaterEq:
				ok = rhs <= feasTol
			case milp.Equal:
				ok = math.Abs(rhs) <= feasTol
			}
			if !ok {
				return lpResult{status: lpInfeasible}
			}
			continue
		}
		rows = append(rows, stdRow{a: a, sense: r.sense, rhs: rhs})
	}

	nSlack, nArt := 0, 0
	for i := range rows {
		r := &rows[i]
		if r.rhs < 0 {
			for j := range r.a {
				r.a[j] = -r.a[j]
			}
			r.rhs = -r.rhs
			switch r.sense {
			case milp.LessEq:
				r.sense = milp.GreaterEq
			case milp.GreaterEq:
				r.sense = milp.LessEq
			}
		}
		switch r.sense {
		case milp.LessEq:
			nSlack++
		case milp.GreaterEq:
			nSlack++
			nArt++
		case milp.Equal:
			nArt++
		}
	}

	n := nf + nSlack + nArt
	t := &tableau{
		m:     len(rows),
		n:     n,
		a:     make([][]float64, len(rows)),
		ub:    make([]float64, n),
		flip:  make([]bool, n),
		basis: make([]int, len(rows)),
	}
	for j := range t.ub {
		t.ub[j] = math.Inf(1)
	}
	for _, v := range free {
		t.ub[col[v]] = hi[v] - lo[v]
	}
	slack, art := nf, nf+nSlack
	artStart := art
	for i, r := range rows {
		line := make([]float64, n+1)
		copy(line, r.a)
		line[n] = r.rhs
		switch r.sense {
		case milp.LessEq:
			line[slack] = 1
			t.basis[i] = slack
			slack++
		case milp.GreaterEq:
			line[slack] = -1
			slack++
			line[art] = 1
			t.basis[i] = art
			art++
		case milp.Equal:
			line[art] = 1
			t.basis[i] = art
			art++
		}
		t.a[i] = line
	}
	maxIter := 50*(t.m+n) + 1000

	if nArt > 0 {
		c1 := make([]float64, n)
		for j := artStart; j < n; j++ {
			c1[j] = 1
		}
		t.setCost(c1)
		switch t.run(ctx, n, maxIter) {
		case lpAborted:
			return lpResult{status: lpAborted}
		case lpIterLimit, lpUnbounded:
			// phase one is bounded below by zero; unbounded means numerical trouble
			return lpResult{status: lpIterLimit}
		}
		infeas := -t.z[n]
		if infeas > feasTol*math.Max(1, float64(nArt)) {
			return lpResult{status: lpInfeasible}
		}
		for i := 0; i < t.m; i++ {
			if t.basis[i] < artStart {
				continue
			}
			if i%checkEvery == 0 && ctx.Err() != nil {
				return lpResult{status: lpAborted}
			}
			enter := -1
			for j := 0; j < artStart; j++ {
				if math.Abs(t.a[i][j]) > 1e-7 {
					enter = j
					break
				}
			}
			if enter < 0 {
				t.dropRow(i)
				i--
				continue
			}
			t.pivot(i, enter)
		}
	}

	c2 := make([]float64, n)
	for _, v := range free {
		c2[col[v]] = p.cost[v]
	}
	t.setCost(c2)
	switch st := t.run(ctx, artStart, maxIter); st {
	case lpUnbounded, lpIterLimit, lpAborted:
		return lpResult{status: st}
	}

	vals := t.values()
	x := make([]float64, p.n)
	copy(x, lo)
	for _, v := range free {
		x[v] += vals[col[v]]
	}
	obj := p.constant
	for v := 0; v < p.n; v++ {
		obj += p.cost[v] * x[v]
	}
	return lpResult{status: lpOptimal, obj: obj, x: x}
}
