package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rakunlabs/atgraph/internal/adapter"
	"github.com/rakunlabs/atgraph/internal/config"
	"github.com/rakunlabs/atgraph/internal/control"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
	"github.com/rakunlabs/atgraph/internal/pipeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"assistant reply"}}]}`))
	}))
	t.Cleanup(llm.Close)

	comp := &graph.Composition{
		Models: map[string]graph.Model{"main": {URL: llm.URL}},
		Architecture: []graph.Node{
			{Name: "entry", Layer: 0, Model: "main", Adapter: graph.AdapterChatCompletion, OutputTo: []string{"sink"}},
			{Name: "sink", Layer: 1, Adapter: graph.AdapterOutput},
		},
	}
	chat, err := adapter.NewChatCompletion(comp, substitute.MapEnv{})
	if err != nil {
		t.Fatalf("NewChatCompletion: %v", err)
	}
	proc := pipeline.New(comp, substitute.MapEnv{}, chat, adapter.NewWebSocket())

	return &Server{
		config:    config.Server{AdminToken: "admin-secret"},
		processor: proc,
		control:   control.New(),
	}
}

func TestChatCompletions_ReturnsAssistantReply(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(chatRequest{Model: "main", Messages: []chatMessage{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.ChatCompletions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "assistant reply" {
		t.Fatalf("choices = %+v", resp.Choices)
	}
}

func TestChatCompletions_InvalidBodyIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	s.ChatCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBearerAuthMiddleware_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	s.authTokens = []config.AuthTokenConfig{{Token: "good-token", Name: "ci"}}

	called := false
	handler := s.bearerAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Fatal("expected the protected handler not to run")
	}
}

func TestBearerAuthMiddleware_AcceptsValidToken(t *testing.T) {
	s := newTestServer(t)
	s.authTokens = []config.AuthTokenConfig{{Token: "good-token", Name: "ci"}}

	called := false
	handler := s.bearerAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected the protected handler to run, status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdminAuthMiddleware_RejectsWrongToken(t *testing.T) {
	s := newTestServer(t)

	handler := s.adminAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthMiddleware_NoTokenConfiguredIsForbidden(t *testing.T) {
	s := newTestServer(t)
	s.config.AdminToken = ""

	handler := s.adminAuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

const validCompositionJSON = `{
  "models": {"primary": {"url": "https://example.test/v1/chat/completions"}},
  "architecture": [
    {"name": "entry", "layer": 0, "adapter": "chat-completion", "model": "primary", "output-to": ["done"]},
    {"name": "done", "layer": 1, "adapter": "output"}
  ]
}`

func TestDeployAndListPipelinesAPI(t *testing.T) {
	s := newTestServer(t)
	s.control.RegisterNode("node-a", "10.0.0.1:9000", 1)

	manifest := `{"apiVersion":"v1","kind":"Pipeline","metadata":{"name":"p1","namespace":"default"},"spec":{"replicas":1,"composition":` + validCompositionJSON + `}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", bytes.NewReader([]byte(manifest)))
	rec := httptest.NewRecorder()
	s.DeployPipelineAPI(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deploy status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/pipelines?namespace=default", nil)
	rec = httptest.NewRecorder()
	s.ListPipelinesAPI(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var got []control.Pipeline
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode pipelines: %v", err)
	}
	if len(got) != 1 || got[0].Name != "p1" {
		t.Fatalf("pipelines = %+v, want just p1", got)
	}
}

func TestDeployPipelineAPI_DuplicateIsConflict(t *testing.T) {
	s := newTestServer(t)
	manifest := `{"kind":"Pipeline","metadata":{"name":"dup","namespace":"default"},"spec":{"composition":` + validCompositionJSON + `}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", bytes.NewReader([]byte(manifest)))
	s.DeployPipelineAPI(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/v1/pipelines", bytes.NewReader([]byte(manifest)))
	rec := httptest.NewRecorder()
	s.DeployPipelineAPI(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", rec.Code, rec.Body.String())
	}
}

func TestDeletePipelineAPI_UnknownIsNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/pipelines/default/ghost", nil)
	req.SetPathValue("*", "default/ghost")
	rec := httptest.NewRecorder()
	s.DeletePipelineAPI(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScalePipelineAPI_UpdatesReplicas(t *testing.T) {
	s := newTestServer(t)
	manifest := `{"kind":"Pipeline","metadata":{"name":"p1","namespace":"default"},"spec":{"composition":` + validCompositionJSON + `}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/pipelines", bytes.NewReader([]byte(manifest)))
	s.DeployPipelineAPI(httptest.NewRecorder(), req)

	body, _ := json.Marshal(map[string]int{"replicas": 4})
	req = httptest.NewRequest(http.MethodPatch, "/v1/pipelines/default/p1", bytes.NewReader(body))
	req.SetPathValue("*", "default/p1")
	rec := httptest.NewRecorder()
	s.ScalePipelineAPI(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var p control.Pipeline
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode pipeline: %v", err)
	}
	if p.DesiredReplicas != 4 {
		t.Fatalf("DesiredReplicas = %d, want 4", p.DesiredReplicas)
	}
}

func TestRegisterAndHeartbeatNodeAPI(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"name": "node-a", "address": "10.0.0.1:9000"})
	req := httptest.NewRequest(http.MethodPost, "/v1/nodes", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.RegisterNodeAPI(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/nodes/node-a/heartbeat", nil)
	req.SetPathValue("*", "node-a/heartbeat")
	rec = httptest.NewRecorder()
	s.HeartbeatAPI(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestStatusAPI_ReflectsClusterState(t *testing.T) {
	s := newTestServer(t)
	s.control.RegisterNode("node-a", "10.0.0.1:9000", 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.StatusAPI(rec, req)

	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got["nodesTotal"] != 1 || got["nodesReady"] != 1 {
		t.Fatalf("status = %+v, want 1/1 nodes", got)
	}
}
