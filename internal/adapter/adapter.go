// Package adapter implements the node adapters: the chat-completion
// client call, the websocket fire-and-forget sink, and the output
// terminator.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
	"github.com/rakunlabs/atgraph/internal/llm/openai"
)

// AdapterFailureError marks an upstream chat-endpoint error (HTTP 502).
type AdapterFailureError struct {
	Node string
	Err  error
}

func (e *AdapterFailureError) Error() string {
	return fmt.Sprintf("adapter failure on node %s: %v", e.Node, e.Err)
}
func (e *AdapterFailureError) Unwrap() error { return e.Err }

// ChatCompletion wraps one openai.Client per declared Model and performs
// the chat-completion call, including the routing-prompt variant used by
// internal/router's Chooser interface.
type ChatCompletion struct {
	clients map[string]*openai.Client
	models  map[string]graph.Model
}

func NewChatCompletion(comp *graph.Composition, secrets substitute.Environment) (*ChatCompletion, error) {
	cc := &ChatCompletion{
		clients: make(map[string]*openai.Client, len(comp.Models)),
		models:  comp.Models,
	}

	for name, m := range comp.Models {
		apiKey, err := substitute.String(m.APIKey, secrets, false)
		if err != nil {
			return nil, fmt.Errorf("model %s: resolve api-key: %w", name, err)
		}
		c, err := openai.New(m.URL, apiKey, "", nil, "", false)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		cc.clients[name] = c
	}

	return cc, nil
}

// Call issues the node's chat-completion request: system message is the
// node's context (if any), user message is the current content.
func (a *ChatCompletion) Call(ctx context.Context, node graph.Node, content string) (string, error) {
	return a.dispatch(ctx, node, node.Context, content)
}

// Choose implements router.Chooser: same dispatch, but the prompt passed
// in is the synthesized routing prompt, and any node-declared context is
// used as the system message.
func (a *ChatCompletion) Choose(ctx context.Context, node graph.Node, prompt string) (string, error) {
	system := node.Context
	return a.dispatch(ctx, node, system, prompt)
}

func (a *ChatCompletion) dispatch(ctx context.Context, node graph.Node, system, user string) (string, error) {
	client, ok := a.clients[node.Model]
	if !ok {
		return "", &AdapterFailureError{Node: node.Name, Err: fmt.Errorf("no client for model %q", node.Model)}
	}

	model := a.models[node.Model].Name
	if override, ok := node.ModelOverride(); ok {
		model = override
	}

	var messages []openai.Message
	if system != "" {
		messages = append(messages, openai.Message{Role: "system", Content: system})
	}
	messages = append(messages, openai.Message{Role: "user", Content: user})

	out, err := client.Chat(ctx, model, messages)
	if err != nil {
		return "", &AdapterFailureError{Node: node.Name, Err: err}
	}
	return out, nil
}

// WebSocket opens/reuses a connection per node url and delivers the
// current content as one text frame, fire-and-forget. It is a pure
// sink: it never satisfies "first output."
type WebSocket struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWebSocket() *WebSocket {
	return &WebSocket{conns: make(map[string]*websocket.Conn)}
}

func (w *WebSocket) Send(ctx context.Context, node graph.Node, content string) error {
	conn, err := w.connFor(ctx, node)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
		w.mu.Lock()
		delete(w.conns, node.Name)
		w.mu.Unlock()
		return fmt.Errorf("websocket adapter write for node %s: %w", node.Name, err)
	}
	return nil
}

func (w *WebSocket) connFor(ctx context.Context, node graph.Node) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.conns[node.Name]; ok {
		return c, nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, node.URL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("websocket adapter dial %s: %w", node.URL, err)
	}
	w.conns[node.Name] = conn
	return conn, nil
}

// Output is a pure sink: it returns the content to the HTTP response
// layer and produces no further state.
type Output struct{}

func (Output) Receive(content string) string { return content }
