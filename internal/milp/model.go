// Package milp is the seam between model construction and a mixed-integer
// solving backend: variables with bounds, linear constraints, a linear
// objective to minimize, and a Solver that returns a status plus values.
package milp

import (
	"fmt"
	"math"
	"sort"
)

// Kind is a variable's integrality class.
type Kind int

const (
	Continuous Kind = iota
	Binary
	Integer
)

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Integer:
		return "integer"
	default:
		return "continuous"
	}
}

// Var is a handle to a model variable. The zero Var refers to the first
// variable; use NoVar for "absent".
type Var int

// NoVar marks a slot without a variable.
const NoVar Var = -1

// Variable describes one decision variable.
type Variable struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64 // math.Inf(1) when unbounded
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "<="
	}
}

// Term is coef * var.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression: sum of terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Add appends coef*v and returns the expression for chaining.
func (e *Expr) Add(v Var, coef float64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

// AddConst adds to the constant part.
func (e *Expr) AddConst(c float64) *Expr {
	e.Constant += c
	return e
}

// Sum builds an expression with unit coefficients.
func Sum(vs ...Var) Expr {
	e := Expr{Terms: make([]Term, 0, len(vs))}
	for _, v := range vs {
		e.Terms = append(e.Terms, Term{Var: v, Coef: 1})
	}
	return e
}

// Eval computes the expression for a value vector.
func (e Expr) Eval(values []float64) float64 {
	s := e.Constant
	for _, t := range e.Terms {
		s += t.Coef * values[t.Var]
	}
	return s
}

// normalized merges repeated variables and drops zero coefficients.
func (e Expr) normalized() Expr {
	if len(e.Terms) == 0 {
		return Expr{Constant: e.Constant}
	}
	acc := make(map[Var]float64, len(e.Terms))
	for _, t := range e.Terms {
		acc[t.Var] += t.Coef
	}
	out := Expr{Terms: make([]Term, 0, len(acc)), Constant: e.Constant}
	for v, c := range acc {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })
	return out
}

// Constraint is Expr (sense) RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Model is a minimization problem.
type Model struct {
	Name string

	vars      []Variable
	names     map[string]Var
	cons      []Constraint
	objective Expr
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, names: map[string]Var{}}
}

func (m *Model) addVar(v Variable) Var {
	if _, dup := m.names[v.Name]; dup || v.Name == "" {
		v.Name = fmt.Sprintf("v%d", len(m.vars))
	}
	id := Var(len(m.vars))
	m.vars = append(m.vars, v)
	m.names[v.Name] = id
	return id
}

// AddBinary adds a 0/1 variable.
func (m *Model) AddBinary(name string) Var {
	return m.addVar(Variable{Name: name, Kind: Binary, Lower: 0, Upper: 1})
}

// AddContinuous adds a real variable in [lower, upper].
func (m *Model) AddContinuous(name string, lower, upper float64) Var {
	return m.addVar(Variable{Name: name, Kind: Continuous, Lower: lower, Upper: upper})
}

// AddInteger adds an integer variable in [lower, upper].
func (m *Model) AddInteger(name string, lower, upper float64) Var {
	return m.addVar(Variable{Name: name, Kind: Integer, Lower: lower, Upper: upper})
}

// AddConstraint appends expr (sense) rhs. The expression's constant is moved
// to the right-hand side and repeated variables are merged.
func (m *Model) AddConstraint(name string, expr Expr, sense Sense, rhs float64) error {
	expr = expr.normalized()
	for _, t := range expr.Terms {
		if t.Var < 0 || int(t.Var) >= len(m.vars) {
			return fmt.Errorf("milp: constraint %s references unknown variable %d", name, t.Var)
		}
	}
	if name == "" {
		name = fmt.Sprintf("c%d", len(m.cons))
	}
	rhs -= expr.Constant
	expr.Constant = 0
	m.cons = append(m.cons, Constraint{Name: name, Expr: expr, Sense: sense, RHS: rhs})
	return nil
}

// Minimize sets the objective.
func (m *Model) Minimize(expr Expr) error {
	expr = expr.normalized()
	for _, t := range expr.Terms {
		if t.Var < 0 || int(t.Var) >= len(m.vars) {
			return fmt.Errorf("milp: objective references unknown variable %d", t.Var)
		}
	}
	m.objective = expr
	return nil
}

func (m *Model) NumVars() int              { return len(m.vars) }
func (m *Model) NumConstraints() int       { return len(m.cons) }
func (m *Model) Variable(v Var) Variable   { return m.vars[v] }
func (m *Model) Variables() []Variable     { return m.vars }
func (m *Model) Constraints() []Constraint { return m.cons }
func (m *Model) Objective() Expr           { return m.objective }

// Lookup finds a variable by name.
func (m *Model) Lookup(name string) (Var, bool) {
	v, ok := m.names[name]
	return v, ok
}

// NumIntegers counts binary and integer variables.
func (m *Model) NumIntegers() int {
	n := 0
	for _, v := range m.vars {
		if v.Kind != Continuous {
			n++
		}
	}
	return n
}

// Violations lists the bounds, integrality requirements and constraints a
// value vector breaks by more than tol. An empty result means feasible.
func (m *Model) Violations(values []float64, tol float64) []string {
	if len(values) != len(m.vars) {
		return []string{fmt.Sprintf("value vector has %d entries, model has %d variables", len(values), len(m.vars))}
	}
	var out []string
	for i, v := range m.vars {
		x := values[i]
		if math.IsNaN(x) || x < v.Lower-tol || x > v.Upper+tol {
			out = append(out, fmt.Sprintf("%s=%g outside [%g,%g]", v.Name, x, v.Lower, v.Upper))
			continue
		}
		if v.Kind != Continuous && math.Abs(x-math.Round(x)) > tol {
			out = append(out, fmt.Sprintf("%s=%g not integral", v.Name, x))
		}
	}
	for _, c := range m.cons {
		lhs := c.Expr.Eval(values)
		ok := true
		switch c.Sense {
		case LessEq:
			ok = lhs <= c.RHS+tol
		case GreaterEq:
			ok = lhs >= c.RHS-tol
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= tol
		}
		if !ok {
			out = append(out, fmt.Sprintf("%s: %g %s %g", c.Name, lhs, c.Sense, c.RHS))
		}
	}
	return out
}
