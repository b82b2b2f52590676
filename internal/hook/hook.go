// Package hook implements sequential pre/post execution within a phase,
// with observe (fire-and-forget) and transform (blocking, replaces
// data) semantics.
package hook

import (
	"context"
	"log/slog"

	"github.com/rakunlabs/atgraph/internal/function"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/condition"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

// AbortError carries the cause of a transform+abort hook failure, which
// terminates the entire request.
type AbortError struct {
	Hook  string
	Cause error
}

func (e *AbortError) Error() string {
	return "hook " + e.Hook + " aborted the request: " + e.Cause.Error()
}
func (e *AbortError) Unwrap() error { return e.Cause }

// Run executes hooks sequentially in declaration order. data is the
// current pipeline value ($INPUT before the adapter call, $OUTPUT after);
// Run returns the (possibly replaced) value. env must already carry
// $INPUT/$OUTPUT bound appropriately by the caller for condition/hook
// evaluation; after each transform Run stores the new value in
// env[envKey] so subsequent hooks see it. secrets is chained behind env so
// an invoked function can resolve $secrets.name.var; a hook's condition
// reads only plain upper-case identifiers and cannot reference secrets.
func Run(ctx context.Context, hooks []graph.Hook, data string, env substitute.MapEnv, secrets substitute.Environment, functions map[string]graph.Function, envKey string) (string, error) {
	current := data
	lookup := substitute.Chain{env, secrets}

	for _, h := range hooks {
		if h.If != "" {
			if !condition.Eval(h.If, lookup) {
				continue
			}
		}

		fn, ok := functions[h.Function]
		if !ok {
			slog.Error("hook references undeclared function", "function", h.Function)
			continue
		}

		switch h.Mode {
		case graph.HookObserve:
			snapshot := substitute.Chain{cloneEnv(env), secrets}
			go func(fn graph.Function, lookup substitute.Environment) {
				res := function.Invoke(context.Background(), fn, lookup)
				if !res.Success {
					slog.Warn("observe hook failed", "function", fn.Name, "error", res.Err)
				}
			}(fn, snapshot)
			// proceeds immediately; no ordering constraint with the rest of the request

		case graph.HookTransform:
			res := function.Invoke(ctx, fn, lookup)
			if !res.Success {
				slog.Warn("transform hook failed", "function", fn.Name, "error", res.Err)
				if h.OnFailure == graph.FailureAbort {
					return current, &AbortError{Hook: h.Function, Cause: res.Err}
				}
				continue // on_failure=continue: keep original data
			}
			current = res.PayloadText
			env[envKey] = current

		default:
			slog.Error("hook has unknown mode", "mode", h.Mode)
		}
	}

	return current, nil
}

func cloneEnv(env substitute.MapEnv) substitute.MapEnv {
	out := make(substitute.MapEnv, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
