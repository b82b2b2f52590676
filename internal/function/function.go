// Package function implements the external function executor: invoking
// REST/Shell/WebSocket/gRPC external functions with substituted inputs.
package function

import (
	"context"
	"time"

	"github.com/xhit/go-str2duration/v2"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

const defaultTimeout = 30 * time.Second

// Result is the uniform outcome of invoking any Function kind.
type Result struct {
	Success     bool
	PayloadText string
	Err         error
}

// Invoke performs variable substitution across every string field of fn
// (including JSON body values), then dispatches per its Kind.
func Invoke(ctx context.Context, fn graph.Function, env substitute.Environment) Result {
	switch fn.Kind {
	case graph.FunctionREST:
		return invokeREST(ctx, fn.REST, env)
	case graph.FunctionShell:
		return invokeShell(ctx, fn.Shell, env)
	case graph.FunctionWebSocket:
		return invokeWebSocket(ctx, fn.WebSocket, env)
	case graph.FunctionGRPC:
		return invokeGRPC(ctx, fn.GRPC, env)
	default:
		return Result{Success: false, Err: &UnknownKindError{Kind: string(fn.Kind)}}
	}
}

type UnknownKindError struct{ Kind string }

func (e *UnknownKindError) Error() string { return "unknown function kind: " + e.Kind }

func parseTimeout(s string) time.Duration {
	if s == "" {
		return defaultTimeout
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return defaultTimeout
	}
	return d
}

func substString(s string, env substitute.Environment) string {
	out, err := substitute.String(s, env, false)
	if err != nil {
		return s
	}
	return out
}

func substStringMap(m map[string]string, env substitute.Environment) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = substString(v, env)
	}
	return out
}
