package graph

import (
	"fmt"
	"strconv"
)

// validate checks every structural invariant a composition must satisfy
// and aggregates every violation rather than stopping at the first.
func validate(c *Composition) []ValidationError {
	var errs []ValidationError

	seen := map[string]int{}
	for _, n := range c.Architecture {
		if n.Name == "" {
			continue // already reported by buildNode
		}
		seen[n.Name]++
	}
	for name, count := range seen {
		if count > 1 {
			errs = append(errs, newErr("$.architecture", "name", "duplicate node name %q", name))
		}
	}

	outputCount := 0
	for i, n := range c.Architecture {
		path := fmt.Sprintf("$.architecture[%d:%s]", i, n.Name)

		switch n.Adapter {
		case AdapterOutput:
			outputCount++
			if n.Model != "" {
				errs = append(errs, newErr(path, "model", "output adapter must not reference a model"))
			}
			if len(n.OutputTo) != 0 {
				errs = append(errs, newErr(path, "output-to", "output adapter must have no successors"))
			}
		case AdapterWebSocket:
			if n.URL == "" {
				errs = append(errs, newErr(path, "url", "websocket adapter requires a url"))
			}
			if len(n.OutputTo) == 0 {
				errs = append(errs, newErr(path, "output-to", "non-output node requires at least one successor"))
			}
		case AdapterChatCompletion:
			if n.Model == "" {
				errs = append(errs, newErr(path, "model", "chat-completion adapter requires a model"))
			} else if _, ok := c.Models[n.Model]; !ok {
				errs = append(errs, newErr(path, "model", "model %q is not declared", n.Model))
			}
			if len(n.OutputTo) == 0 {
				errs = append(errs, newErr(path, "output-to", "non-output node requires at least one successor"))
			}
		default:
			errs = append(errs, newErr(path, "adapter", "unknown adapter %q", n.Adapter))
		}

		for _, h := range append(append([]Hook{}, n.HooksPre...), n.HooksPost...) {
			if _, ok := c.Functions[h.Function]; !ok {
				errs = append(errs, newErr(path, "hooks", "function %q is not declared", h.Function))
			}
			if h.Mode != HookObserve && h.Mode != HookTransform {
				errs = append(errs, newErr(path, "hooks.mode", "mode must be observe or transform, got %q", h.Mode))
			}
			if h.OnFailure != FailureContinue && h.OnFailure != FailureAbort {
				errs = append(errs, newErr(path, "hooks.on_failure", "on_failure must be continue or abort, got %q", h.OnFailure))
			}
		}

		for _, target := range n.OutputTo {
			if isLayerTarget(target) {
				layer, err := strconv.Atoi(target)
				if err != nil || len(c.NodesAtLayer(layer)) == 0 {
					errs = append(errs, newErr(path, "output-to", "target %q is neither a declared layer nor a node name", target))
				} else if layer <= n.Layer {
					errs = append(errs, newErr(path, "output-to", "layer target %q must be higher than the node's layer %d", target, n.Layer))
				}
			} else if _, ok := c.NodeByName(target); !ok {
				errs = append(errs, newErr(path, "output-to", "target %q is neither a declared layer nor a node name", target))
			}
		}
	}

	if outputCount == 0 {
		errs = append(errs, newErr("$.architecture", "adapter", "composition must declare at least one reachable output node"))
	}

	entryCount := 0
	for _, n := range c.Architecture {
		if n.Layer == 0 && n.Adapter == AdapterChatCompletion {
			entryCount++
		}
	}
	if entryCount == 0 {
		errs = append(errs, newErr("$.architecture", "layer", "composition must declare exactly one layer-0 chat-completion entry node"))
	} else if entryCount > 1 {
		errs = append(errs, newErr("$.architecture", "layer", "composition declares %d layer-0 chat-completion nodes, expected exactly one", entryCount))
	}

	for name, m := range c.Models {
		if m.Interface != "chat-completion" && m.Interface != "" {
			errs = append(errs, newErr("$.models."+name, "interface", "only chat-completion is supported, got %q", m.Interface))
		}
	}

	if cycleErrs := detectCycles(c); len(cycleErrs) > 0 {
		errs = append(errs, cycleErrs...)
	}

	return errs
}

func isLayerTarget(target string) bool {
	if target == "" {
		return false
	}
	for _, r := range target {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// detectCycles runs a DFS with gray/black marking over name-targeted
// edges. Layer-targeted edges are not followed here; validate requires
// each of them to point at a strictly higher layer.
func detectCycles(c *Composition) []ValidationError {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(c.Architecture))
	for _, n := range c.Architecture {
		color[n.Name] = white
	}

	var errs []ValidationError
	var visit func(name string, stack []string) bool
	visit = func(name string, stack []string) bool {
		color[name] = gray
		stack = append(stack, name)

		n, ok := c.NodeByName(name)
		if ok {
			for _, target := range n.OutputTo {
				if isLayerTarget(target) {
					continue
				}
				switch color[target] {
				case gray:
					errs = append(errs, newErr("$.architecture", "output-to", "cycle detected: %v -> %s", stack, target))
					return true
				case white:
					if visit(target, stack) {
						return true
					}
				}
			}
		}

		color[name] = black
		return false
	}

	for _, n := range c.Architecture {
		if color[n.Name] == white {
			if visit(n.Name, nil) {
				break
			}
		}
	}

	return errs
}
