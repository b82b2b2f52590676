package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rakunlabs/atgraph/internal/adapter"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

func echoModelServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + reply + `"}}]}`))
	}))
}

func TestHandle_SingleHopReachesOutput(t *testing.T) {
	srv := echoModelServer(t, "llm reply")
	defer srv.Close()

	comp := &graph.Composition{
		Models: map[string]graph.Model{"main": {URL: srv.URL}},
		Architecture: []graph.Node{
			{Name: "entry", Layer: 0, Model: "main", Adapter: graph.AdapterChatCompletion, OutputTo: []string{"sink"}},
			{Name: "sink", Layer: 1, Adapter: graph.AdapterOutput},
		},
	}

	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	p := New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket())

	out, err := p.Handle(context.Background(), "hi", http.Header{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Content != "llm reply" {
		t.Fatalf("Content = %q, want llm reply", out.Content)
	}
	if len(out.Trace) != 2 || out.Trace[0].Node != "entry" || out.Trace[1].Node != "sink" {
		t.Fatalf("Trace = %+v, want entry then sink", out.Trace)
	}
}

func TestHandle_FanOutFirstOutputWins(t *testing.T) {
	srv := echoModelServer(t, "first")
	defer srv.Close()

	comp := &graph.Composition{
		Models: map[string]graph.Model{"main": {URL: srv.URL}},
		Architecture: []graph.Node{
			{Name: "entry", Layer: 0, Model: "main", Adapter: graph.AdapterChatCompletion, OutputTo: []string{"a", "b"}},
			{Name: "a", Layer: 1, Adapter: graph.AdapterOutput},
			{Name: "b", Layer: 1, Adapter: graph.AdapterOutput},
		},
	}

	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	p := New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket())

	out, err := p.Handle(context.Background(), "hi", http.Header{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Content != "first" {
		t.Fatalf("Content = %q, want first", out.Content)
	}
}

func TestHandle_HopCapExceededFails(t *testing.T) {
	srv := echoModelServer(t, "reply")
	defer srv.Close()

	comp := &graph.Composition{
		Models: map[string]graph.Model{"main": {URL: srv.URL}},
		Architecture: []graph.Node{
			{Name: "entry", Layer: 0, Model: "main", Adapter: graph.AdapterChatCompletion, OutputTo: []string{"next"}},
			{Name: "next", Layer: 1, Adapter: graph.AdapterOutput},
		},
	}

	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	p := New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket(), WithHopCap(0))

	_, err = p.Handle(context.Background(), "hi", http.Header{})
	var tooDeep *PipelineTooDeepError
	if !errors.As(err, &tooDeep) {
		t.Fatalf("expected PipelineTooDeepError, got %v", err)
	}
}

func TestHandle_RequestTimeoutWhenNoBranchReachesOutput(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	comp := &graph.Composition{
		Models: map[string]graph.Model{"main": {URL: srv.URL}},
		Architecture: []graph.Node{
			{Name: "entry", Layer: 0, Model: "main", Adapter: graph.AdapterChatCompletion, OutputTo: []string{"sink"}},
			{Name: "sink", Layer: 1, Adapter: graph.AdapterOutput},
		},
	}

	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	p := New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket(), WithRequestTimeout(20*time.Millisecond))

	_, err = p.Handle(context.Background(), "hi", http.Header{})
	// the context deadline can fire either as the request's own
	// PipelineTimeoutError or, if the upstream call notices cancellation
	// first, as a wrapped adapter failure -- either way Handle must fail.
	if err == nil {
		t.Fatal("expected Handle to fail once the request timeout elapses")
	}
}

func TestHandle_NoEntryNodeFails(t *testing.T) {
	comp := &graph.Composition{}
	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	p := New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket())

	if _, err := p.Handle(context.Background(), "hi", http.Header{}); err == nil {
		t.Fatal("expected an error when the composition has no entry node")
	}
}
