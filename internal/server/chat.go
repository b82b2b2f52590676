package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rakunlabs/atgraph/internal/adapter"
	"github.com/rakunlabs/atgraph/internal/function"
	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/hook"
	"github.com/rakunlabs/atgraph/internal/pipeline"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// ChatCompletions is the chat-completion ingress: it maps an
// OpenAI-compatible request to a PipelineRequest, runs it through the
// pipeline processor, and shapes the terminator's payload into an
// OpenAI-compatible response.
func (s *Server) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, "CompositionParse", "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts = append(parts, m.Content)
	}
	content := strings.Join(parts, "\n")

	out, err := s.processor.Handle(r.Context(), content, r.Header)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	resp := chatResponse{
		ID:      "chatcmpl-" + ulid.Make().String(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: out.Content},
				FinishReason: "stop",
			},
		},
	}
	httpResponseJSON(w, resp, http.StatusOK)
}

// writePipelineError maps an internal error to an error kind and the
// HTTP status it implies.
func writePipelineError(w http.ResponseWriter, err error) {
	var tooDeep *pipeline.PipelineTooDeepError
	var timeout *pipeline.PipelineTimeoutError
	var aborted *pipeline.PipelineAbortedError
	var adapterFail *adapter.AdapterFailureError
	var fnFail *function.UnknownKindError
	var hookAbort *hook.AbortError
	var valErr *graph.ValidationError

	switch {
	case errors.As(err, &tooDeep):
		httpError(w, "PipelineTooDeep", err.Error(), http.StatusInternalServerError)
	case errors.As(err, &timeout):
		httpError(w, "PipelineTimeout", err.Error(), http.StatusGatewayTimeout)
	case errors.As(err, &aborted):
		httpError(w, "PipelineAborted", err.Error(), http.StatusInternalServerError)
	case errors.As(err, &adapterFail):
		httpError(w, "AdapterFailure", err.Error(), http.StatusBadGateway)
	case errors.As(err, &hookAbort):
		httpError(w, "FunctionFailure", err.Error(), http.StatusInternalServerError)
	case errors.As(err, &fnFail):
		httpError(w, "FunctionFailure", err.Error(), http.StatusInternalServerError)
	case errors.As(err, &valErr):
		httpError(w, "CompositionValidation", err.Error(), http.StatusBadRequest)
	default:
		httpError(w, "Connectivity", err.Error(), http.StatusInternalServerError)
	}
}

// Health is the liveness probe.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	httpResponseJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
