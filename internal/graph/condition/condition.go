// Package condition evaluates a single-clause boolean grammar: existence
// checks and one comparison operator. No boolean connectives in v1.
package condition

import (
	"strconv"
	"strings"

	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

// Eval always returns a bool, never an error, per Invariant 3 (condition
// totality): a malformed expression evaluates to false rather than
// panicking or propagating a parse error.
func Eval(expr string, env substitute.Environment) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if expr[0] != '$' {
		return false
	}

	lhsIdent, n := scanIdent(expr[1:])
	if n == 0 {
		return false
	}
	rest := strings.TrimSpace(expr[1+n:])

	if rest == "" {
		// existence := "$" IDENT
		v, _ := env.Lookup(lhsIdent)
		return v != ""
	}

	op, opLen := scanOp(rest)
	if opLen == 0 {
		return false
	}
	rhsRaw := strings.TrimSpace(rest[opLen:])

	lhs, _ := env.Lookup(lhsIdent)
	rhs, ok := literal(rhsRaw, env)
	if !ok {
		return false
	}

	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case ">", "<", ">=", "<=":
		lf, lerr := strconv.ParseFloat(lhs, 64)
		rf, rerr := strconv.ParseFloat(rhs, 64)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}
	return false
}

func scanIdent(s string) (string, int) {
	if len(s) == 0 {
		return "", 0
	}
	c := s[0]
	if !(c == '_' || (c >= 'A' && c <= 'Z')) {
		return "", 0
	}
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return s[:i], i
}

func scanOp(s string) (string, int) {
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if strings.HasPrefix(s, op) {
			return op, len(op)
		}
	}
	return "", 0
}

// literal resolves the right-hand side: a quoted string literal, a bare
// number, or another $IDENT reference.
func literal(s string, env substitute.Environment) (string, bool) {
	if s == "" {
		return "", false
	}
	if s[0] == '"' {
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return "", false
		}
		return s[1 : 1+end], true
	}
	if s[0] == '$' {
		ident, n := scanIdent(s[1:])
		if n == 0 {
			return "", false
		}
		v, ok := env.Lookup(ident)
		if !ok {
			return "", true // missing variable resolves to empty string
		}
		return v, true
	}
	// bare number token
	return s, true
}
