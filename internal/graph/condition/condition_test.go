package condition

import (
	"testing"

	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

func TestEval_Existence(t *testing.T) {
	env := substitute.MapEnv{"SCORE": "0.9"}

	if !Eval("$SCORE", env) {
		t.Fatal("expected existing variable to be truthy")
	}
	if Eval("$MISSING", env) {
		t.Fatal("expected missing variable to be falsy")
	}
}

func TestEval_StringComparison(t *testing.T) {
	env := substitute.MapEnv{"STATUS": "approved"}

	if !Eval(`$STATUS == "approved"`, env) {
		t.Fatal("expected equality match")
	}
	if Eval(`$STATUS != "approved"`, env) {
		t.Fatal("expected inequality to be false")
	}
	if !Eval(`$STATUS != "rejected"`, env) {
		t.Fatal("expected inequality match")
	}
}

func TestEval_NumericComparison(t *testing.T) {
	env := substitute.MapEnv{"SCORE": "0.9", "THRESHOLD": "0.5"}

	cases := []struct {
		expr string
		want bool
	}{
		{"$SCORE > $THRESHOLD", true},
		{"$SCORE < $THRESHOLD", false},
		{"$SCORE >= \"0.9\"", true},
		{"$SCORE <= \"0.5\"", false},
	}
	for _, c := range cases {
		if got := Eval(c.expr, env); got != c.want {
			t.Errorf("Eval(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestEval_NonNumericComparisonIsFalse(t *testing.T) {
	env := substitute.MapEnv{"STATUS": "approved"}
	if Eval(`$STATUS > "1"`, env) {
		t.Fatal("expected non-numeric > comparison to be false, not an error")
	}
}

func TestEval_MalformedExpressionIsFalse(t *testing.T) {
	env := substitute.MapEnv{}

	for _, expr := range []string{"", "   ", "no-dollar-sign", "$", "$1BAD"} {
		if Eval(expr, env) {
			t.Errorf("Eval(%q) = true, want false for malformed input", expr)
		}
	}
}
