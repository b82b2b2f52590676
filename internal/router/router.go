// Package router implements candidate expansion, condition filtering with
// the dead-end fallback, router-prompt synthesis, response parsing, and
// fan-out to multiple targets.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/condition"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

// Chooser invokes a node's model with a synthesized prompt and returns the
// raw text response. Implemented by internal/adapter's chat-completion
// adapter; kept as an interface here so router has no dependency on the
// wire client.
type Chooser interface {
	Choose(ctx context.Context, node graph.Node, prompt string) (string, error)
}

// Resolve expands emitter's output-to targets into the chosen successor
// node(s). One entry is returned per outbound slot (fan-out): every
// resolved target receives a copy of the payload.
func Resolve(ctx context.Context, comp *graph.Composition, emitter graph.Node, content string, env substitute.Environment, chooser Chooser) ([]graph.Node, error) {
	var chosen []graph.Node

	for _, target := range emitter.OutputTo {
		if isLayer(target) {
			picked, err := resolveLayer(ctx, comp, emitter, target, content, env, chooser)
			if err != nil {
				return nil, err
			}
			if picked != nil {
				chosen = append(chosen, *picked)
			}
			continue
		}
		if n, ok := comp.NodeByName(target); ok {
			chosen = append(chosen, n)
		}
	}

	return chosen, nil
}

func isLayer(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func resolveLayer(ctx context.Context, comp *graph.Composition, emitter graph.Node, layerStr string, content string, env substitute.Environment, chooser Chooser) (*graph.Node, error) {
	layer := parseLayer(layerStr)
	candidates := comp.NodesAtLayer(layer)
	if len(candidates) == 0 {
		return nil, nil
	}

	eligible := filterEligible(candidates, env)

	if len(eligible) == 1 {
		return &eligible[0], nil
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	response, err := chooser.Choose(ctx, emitter, routingPrompt(content, eligible))
	if err != nil {
		return nil, fmt.Errorf("router prompt for node %s: %w", emitter.Name, err)
	}

	return &eligible[pickByName(eligible, response)], nil
}

// filterEligible keeps candidates that are eligible: no `if`, or an `if`
// that evaluates true. If every candidate has an `if` and none is true,
// the filter is bypassed entirely (dead-end fallback).
func filterEligible(candidates []graph.Node, env substitute.Environment) []graph.Node {
	var eligible []graph.Node
	allHaveIf := true

	for _, c := range candidates {
		if c.If == "" {
			allHaveIf = false
			eligible = append(eligible, c)
			continue
		}
		if condition.Eval(c.If, env) {
			eligible = append(eligible, c)
		}
	}

	if len(eligible) == 0 && allHaveIf {
		return candidates
	}
	return eligible
}

func routingPrompt(content string, candidates []graph.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is the user prompt: %q\n\n", content)
	b.WriteString("Based on the prompt, please choose from one of these models,\n")
	b.WriteString("outputting ONLY the model name to use:\n[\n")
	for i, c := range candidates {
		comma := ","
		if i == len(candidates)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "  {\"name\": %q, \"use-case\": %q}%s\n", c.Name, c.UseCase, comma)
	}
	b.WriteString("]\n")
	return b.String()
}

// pickByName matches the router's response against candidate names,
// case-insensitive and trimmed. On ambiguity or mismatch the first
// eligible candidate is the deterministic tie-breaker.
func pickByName(candidates []graph.Node, response string) int {
	resp := strings.ToLower(strings.TrimSpace(response))
	for i, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.Name)) == resp {
			return i
		}
	}
	return 0
}

func parseLayer(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
