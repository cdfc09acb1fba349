package milp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// lineWidth keeps LP rows short enough for readers with line limits.
const lineWidth = 200

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type lpWriter struct {
	w   *bufio.Writer
	col int
	err error
}

func (l *lpWriter) put(s string) {
	if l.err != nil {
		return
	}
	if l.col+len(s) > lineWidth {
		_, l.err = l.w.WriteString("\n   ")
		l.col = 3
	}
	_, l.err = l.w.WriteString(s)
	l.col += len(s)
}

func (l *lpWriter) newline() {
	if l.err != nil {
		return
	}
	_, l.err = l.w.WriteString("\n")
	l.col = 0
}

func (l *lpWriter) expr(m *Model, e Expr) {
	if len(e.Terms) == 0 {
		// LP rows need at least one variable.
		l.put(" 0 " + m.vars[0].Name)
		return
	}
	for i, t := range e.Terms {
		sign := "+"
		c := t.Coef
		if c < 0 {
			sign = "-"
			c = -c
		}
		if i == 0 && sign == "+" {
			l.put(" " + formatNum(c) + " " + m.vars[t.Var].Name)
			continue
		}
		l.put(" " + sign + " " + formatNum(c) + " " + m.vars[t.Var].Name)
	}
}

// WriteLP writes the model in CPLEX LP format.
func WriteLP(w io.Writer, m *Model) error {
	if len(m.vars) == 0 {
		return fmt.Errorf("milp: model %s has no variables", m.Name)
	}
	l := &lpWriter{w: bufio.NewWriter(w)}
	l.put(`\ Model ` + m.Name)
	l.newline()
	l.put("Minimize")
	l.newline()
	l.put(" obj:")
	l.expr(m, m.objective)
	if m.objective.Constant != 0 {
		// LP has no objective constant; carry it as a comment for readers.
		l.newline()
		l.put(`\ objective constant ` + formatNum(m.objective.Constant))
	}
	l.newline()
	l.put("Subject To")
	l.newline()
	for _, c := range m.cons {
		l.put(" " + c.Name + ":")
		l.expr(m, c.Expr)
		l.put(" " + c.Sense.String() + " " + formatNum(c.RHS))
		l.newline()
	}
	l.put("Bounds")
	l.newline()
	var bins, ints []string
	for _, v := range m.vars {
		switch v.Kind {
		case Binary:
			bins = append(bins, v.Name)
			continue
		case Integer:
			ints = append(ints, v.Name)
		}
		lo, hi := v.Lower, v.Upper
		switch {
		case math.IsInf(lo, -1) && math.IsInf(hi, 1):
			l.put(" " + v.Name + " free")
		case math.IsInf(hi, 1):
			if lo != 0 {
				l.put(" " + v.Name + " >= " + formatNum(lo))
			}
		case lo == hi:
			l.put(" " + v.Name + " = " + formatNum(lo))
		default:
			if math.IsInf(lo, -1) {
				l.put(" -inf <= " + v.Name + " <= " + formatNum(hi))
			} else {
				l.put(" " + formatNum(lo) + " <= " + v.Name + " <= " + formatNum(hi))
			}
		}
		if l.col > 0 {
			l.newline()
		}
	}
	if len(bins) > 0 {
		l.put("Binaries")
		l.newline()
		for _, n := range bins {
			l.put(" " + n)
		}
		l.newline()
	}
	if len(ints) > 0 {
		l.put("Generals")
		l.newline()
		for _, n := range ints {
			l.put(" " + n)
		}
		l.newline()
	}
	l.put("End")
	l.newline()
	if l.err != nil {
		return l.err
	}
	return l.w.Flush()
}
