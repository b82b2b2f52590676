// Package pipeline implements the per-request orchestration loop across
// layers, hop/trace bookkeeping, and the "first output wins" response
// gate, using a goroutine-per-branch fan-out model.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rakunlabs/atgraph/internal/adapter"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
	"github.com/rakunlabs/atgraph/internal/hook"
	"github.com/rakunlabs/atgraph/internal/router"
)

const (
	defaultHopCap         = 32
	defaultRequestTimeout = 30 * time.Second
)

// TraceEntry is one (node-name, layer, output) record.
type TraceEntry struct {
	Node   string
	Layer  int
	Output string
}

// Outcome is what the HTTP surface sees: the winning branch's output plus
// its trace.
type Outcome struct {
	Content string
	Trace   []TraceEntry
}

// Processor runs requests against one immutable Composition.
type Processor struct {
	comp    *graph.Composition
	secrets substitute.Environment
	chat    *adapter.ChatCompletion
	ws      *adapter.WebSocket
	out     adapter.Output

	hopCap         int
	requestTimeout time.Duration
}

type Option func(*Processor)

func WithHopCap(n int) Option                    { return func(p *Processor) { p.hopCap = n } }
func WithRequestTimeout(d time.Duration) Option  { return func(p *Processor) { p.requestTimeout = d } }

func New(comp *graph.Composition, secrets substitute.Environment, chat *adapter.ChatCompletion, ws *adapter.WebSocket, opts ...Option) *Processor {
	p := &Processor{
		comp:           comp,
		secrets:        secrets,
		chat:           chat,
		ws:             ws,
		hopCap:         defaultHopCap,
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// request carries the per-request mutable coordination state shared
// across every fan-out branch: the first-output gate and the error
// channel used to short-circuit on the first branch failure (hook abort,
// hop cap, adapter or router error). The timeout is observed through the
// request context instead.
type request struct {
	id           string
	initialInput string

	respondOnce sync.Once
	result      chan Outcome
	failure     chan error
}

// Handle runs one chat-completion ingress request against the
// composition's entry node.
func (p *Processor) Handle(ctx context.Context, content string, headers http.Header) (Outcome, error) {
	entry, ok := p.comp.EntryNode()
	if !ok {
		return Outcome{}, &PipelineTooDeepError{Cap: 0}
	}

	req := &request{
		id:           uuid.NewString(),
		initialInput: content,
		result:       make(chan Outcome, 1),
		failure:      make(chan error, 1),
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	env := substitute.MapEnv{
		"REQUEST_ID":    req.id,
		"INITIAL_INPUT": content,
		"TIMESTAMP":     strconv.FormatInt(time.Now().Unix(), 10),
		"PREV_NODE":     "",
	}
	for _, key := range entry.UseHeaderKeys() {
		if v := headers.Get(key); v != "" {
			env[key] = v
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go p.runBranch(ctx, req, &wg, entry, content, env, nil, 0)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case out := <-req.result:
		return out, nil
	case err := <-req.failure:
		return Outcome{}, err
	case <-ctx.Done():
		return Outcome{}, &PipelineTimeoutError{}
	case <-done:
		// every branch finished without reaching an output adapter
		select {
		case out := <-req.result:
			return out, nil
		case err := <-req.failure:
			return Outcome{}, err
		default:
			return Outcome{}, &PipelineTooDeepError{Cap: p.hopCap}
		}
	}
}

// runBranch executes one node and recurses into its chosen successors.
// Fan-out successors each run in their own goroutine, mirroring
// engine.go's runFanOutBranch/sync.WaitGroup pattern.
func (p *Processor) runBranch(ctx context.Context, req *request, wg *sync.WaitGroup, node graph.Node, content string, env substitute.MapEnv, trace []TraceEntry, hop int) {
	defer wg.Done()

	if hop > p.hopCap {
		req.failure <- &PipelineTooDeepError{Cap: p.hopCap}
		return
	}

	env["NODE"] = node.Name
	env["CURRENT_LAYER"] = strconv.Itoa(node.Layer)
	env["INPUT"] = content
	env["CURRENT_INPUT"] = content
	env["INPUT_LENGTH"] = strconv.Itoa(len(content))
	env["WORD_COUNT"] = strconv.Itoa(len(strings.Fields(content)))
	env["HOP_COUNT"] = strconv.Itoa(hop)

	fullEnv := substitute.Chain{env, p.secrets}

	preOut, err := hook.Run(ctx, node.HooksPre, content, env, p.secrets, p.comp.Functions, "INPUT")
	if err != nil {
		p.fail(req, err)
		return
	}
	content = preOut

	var output string
	switch node.Adapter {
	case graph.AdapterOutput:
		output = content
	case graph.AdapterWebSocket:
		if err := p.ws.Send(ctx, node, content); err != nil {
			slog.Warn("websocket adapter send failed", "node", node.Name, "error", err)
		}
		output = content
	case graph.AdapterChatCompletion:
		out, err := p.chat.Call(ctx, node, content)
		if err != nil {
			p.fail(req, err)
			return
		}
		output = out
	}

	env["OUTPUT"] = output
	postOut, err := hook.Run(ctx, node.HooksPost, output, env, p.secrets, p.comp.Functions, "OUTPUT")
	if err != nil {
		p.fail(req, err)
		return
	}
	output = postOut

	newTrace := append(append([]TraceEntry{}, trace...), TraceEntry{Node: node.Name, Layer: node.Layer, Output: output})

	env["PREV_NODE"] = node.Name
	env["PREV_LAYER"] = strconv.Itoa(node.Layer)
	env["ROUTE_DECISION"] = node.Name

	// Websocket adapters are pure sinks: they never satisfy "first
	// output" and have no successors to recurse into.
	if node.Adapter == graph.AdapterWebSocket {
		return
	}

	if node.Adapter == graph.AdapterOutput {
		req.respondOnce.Do(func() {
			req.result <- Outcome{Content: output, Trace: newTrace}
		})
		return
	}

	chooser := p.chat
	next, err := router.Resolve(ctx, p.comp, node, output, fullEnv, chooser)
	if err != nil {
		p.fail(req, err)
		return
	}

	for _, succ := range next {
		wg.Add(1)
		succEnv := cloneEnv(env)
		go p.runBranch(ctx, req, wg, succ, output, succEnv, newTrace, hop+1)
	}
}

func (p *Processor) fail(req *request, err error) {
	select {
	case req.failure <- err:
	default:
	}
}

func cloneEnv(env substitute.MapEnv) substitute.MapEnv {
	out := make(substitute.MapEnv, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
