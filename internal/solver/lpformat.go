package solver

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const termsPerLine = 8

// WriteLP dumps p in CPLEX LP format. Names are reduced to the LP
// character set and suffixed with their index to stay unique.
func WriteLP(w io.Writer, p *Problem) error {
	if p.NumVars() == 0 {
		return fmt.Errorf("solver: cannot write a model without variables")
	}
	bw := bufio.NewWriter(w)
	vars := make([]string, p.NumVars())
	for v := range vars {
		vars[v] = lpName("x", p.names[v], v)
	}

	fmt.Fprintln(bw, "Maximize")
	bw.WriteString(" obj:")
	n := 0
	for v, c := range p.obj {
		if c == 0 {
			continue
		}
		writeTerm(bw, c, vars[v], n == 0, &n)
	}
	if n == 0 {
		bw.WriteString(" 0 " + vars[0])
	}
	bw.WriteString("\n")

	fmt.Fprintln(bw, "Subject To")
	for i, r := range p.rows {
		fmt.Fprintf(bw, " %s:", lpName("c", r.Name, i))
		n = 0
		for _, t := range r.Terms {
			writeTerm(bw, t.Coef, vars[t.Var], n == 0, &n)
		}
		if n == 0 {
			bw.WriteString(" 0 " + vars[0])
		}
		fmt.Fprintf(bw, " %s %s\n", r.Sense, formatFloat(r.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	for v, f := range p.fixed {
		if f != free {
			fmt.Fprintf(bw, " %s = %d\n", vars[v], f)
		}
	}

	fmt.Fprintln(bw, "Binaries")
	for v := range vars {
		bw.WriteString(" " + vars[v])
		if (v+1)%termsPerLine == 0 {
			bw.WriteString("\n")
		}
	}
	if len(vars)%termsPerLine != 0 {
		bw.WriteString("\n")
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func writeTerm(bw *bufio.Writer, coef float64, name string, first bool, n *int) {
	if *n > 0 && *n%termsPerLine == 0 {
		bw.WriteString("\n  ")
	}
	sign := "+"
	if coef < 0 {
		sign, coef = "-", -coef
	}
	if first && sign == "+" {
		sign = ""
	}
	if sign != "" {
		bw.WriteString(" " + sign)
	}
	if coef != 1 {
		bw.WriteString(" " + formatFloat(coef))
	}
	bw.WriteString(" " + name)
	*n++
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// lpName keeps letters, digits and the LP punctuation set.
func lpName(prefix, name string, i int) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,.;?@_`'{}|~", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteByte('#')
	b.WriteString(strconv.Itoa(i))
	return b.String()
}
