package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rakunlabs/atgraph/internal/control"
	"github.com/rakunlabs/atgraph/internal/graph"
)

// StatusAPI answers GET /v1/status.
func (s *Server) StatusAPI(w http.ResponseWriter, r *http.Request) {
	st := s.control.StatusSummary()
	httpResponseJSON(w, map[string]int{
		"nodesReady":      st.NodesReady,
		"nodesTotal":      st.NodesTotal,
		"pipelinesReady":  st.PipelinesReady,
		"pipelinesTotal":  st.PipelinesTotal,
		"namespaceCount":  st.NamespaceCount,
	}, http.StatusOK)
}

// NamespacesAPI answers GET /v1/namespaces.
func (s *Server) NamespacesAPI(w http.ResponseWriter, r *http.Request) {
	httpResponseJSON(w, s.control.Namespaces(), http.StatusOK)
}

// ListPipelinesAPI answers GET /v1/pipelines?namespace=<n>&all=<bool>.
func (s *Server) ListPipelinesAPI(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	all := r.URL.Query().Get("all") == "true"
	httpResponseJSON(w, s.control.ListPipelines(namespace, all), http.StatusOK)
}

// pipelineManifest is the deploy request shape: either a full manifest,
// or a bare Composition (the ?name= query parameter becomes the name; the
// deploy command sends the file's base name there by default; replicas
// defaults to 1).
type pipelineManifest struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace"`
		Labels    map[string]string `json:"labels"`
	} `json:"metadata"`
	Spec struct {
		Replicas    int            `json:"replicas"`
		Composition map[string]any `json:"composition"`
	} `json:"spec"`
}

// DeployPipelineAPI answers POST /v1/pipelines. The body is either a full
// Pipeline manifest, or a bare Composition, in which case ?name= (or
// "pipeline" if unset) becomes the pipeline name and replicas defaults to 1.
func (s *Server) DeployPipelineAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, "CompositionParse", err.Error(), http.StatusBadRequest)
		return
	}

	name := firstNonEmpty(r.URL.Query().Get("name"), "pipeline")
	namespace := firstNonEmpty(r.URL.Query().Get("namespace"), "default")
	replicas := 1
	compBytes := body
	var labels map[string]string

	var manifest pipelineManifest
	if json.Unmarshal(body, &manifest) == nil && manifest.Kind == "Pipeline" {
		name = firstNonEmpty(manifest.Metadata.Name, name)
		namespace = firstNonEmpty(manifest.Metadata.Namespace, namespace)
		if manifest.Spec.Replicas > 0 {
			replicas = manifest.Spec.Replicas
		}
		labels = manifest.Metadata.Labels
		compBytes, err = json.Marshal(manifest.Spec.Composition)
		if err != nil {
			httpError(w, "CompositionParse", err.Error(), http.StatusBadRequest)
			return
		}
	}

	comp, verrs := graph.Parse(compBytes, "")
	if len(verrs) > 0 {
		httpResponseJSON(w, map[string]any{"errors": verrs}, http.StatusBadRequest)
		return
	}

	p, err := s.control.DeployPipeline(r.Context(), namespace, name, comp, replicas, labels)
	if err != nil {
		var dup *control.DuplicatePipelineError
		if errors.As(err, &dup) {
			httpError(w, "ControlPlaneConflict", err.Error(), http.StatusConflict)
			return
		}
		httpError(w, "Connectivity", err.Error(), http.StatusInternalServerError)
		return
	}
	httpResponseJSON(w, p, http.StatusCreated)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DeletePipelineAPI answers DELETE /v1/pipelines/<ns>/<name>.
func (s *Server) DeletePipelineAPI(w http.ResponseWriter, r *http.Request) {
	namespace, name, ok := splitNamespaceName(r.PathValue("*"))
	if !ok {
		httpError(w, "NotFound", "path must be <namespace>/<name>", http.StatusBadRequest)
		return
	}
	if err := s.control.DeletePipeline(r.Context(), namespace, name); err != nil {
		httpError(w, "NotFound", err.Error(), http.StatusNotFound)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

// ScalePipelineAPI answers PATCH /v1/pipelines/<ns>/<name> with {replicas: n}.
func (s *Server) ScalePipelineAPI(w http.ResponseWriter, r *http.Request) {
	namespace, name, ok := splitNamespaceName(r.PathValue("*"))
	if !ok {
		httpError(w, "NotFound", "path must be <namespace>/<name>", http.StatusBadRequest)
		return
	}

	var body struct {
		Replicas int `json:"replicas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "CompositionParse", err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.control.ScalePipeline(r.Context(), namespace, name, body.Replicas)
	if err != nil {
		httpError(w, "NotFound", err.Error(), http.StatusNotFound)
		return
	}
	httpResponseJSON(w, p, http.StatusOK)
}

// ListNodesAPI answers GET /v1/nodes.
func (s *Server) ListNodesAPI(w http.ResponseWriter, r *http.Request) {
	httpResponseJSON(w, s.control.ListNodes(), http.StatusOK)
}

// RegisterNodeAPI answers POST /v1/nodes with {name, address}.
func (s *Server) RegisterNodeAPI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string  `json:"name"`
		Address string  `json:"address"`
		Weight  float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, "CompositionParse", err.Error(), http.StatusBadRequest)
		return
	}
	if body.Weight == 0 {
		body.Weight = 1
	}
	n := s.control.RegisterNode(body.Name, body.Address, body.Weight)
	httpResponseJSON(w, n, http.StatusCreated)
}

// UnregisterNodeAPI answers DELETE /v1/nodes/<name>.
func (s *Server) UnregisterNodeAPI(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("*")
	if err := s.control.UnregisterNode(name); err != nil {
		httpError(w, "NotFound", err.Error(), http.StatusNotFound)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

// HeartbeatAPI answers POST /v1/nodes/<name>/heartbeat.
func (s *Server) HeartbeatAPI(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(r.PathValue("*"), "/heartbeat")
	if err := s.control.Heartbeat(name); err != nil {
		httpError(w, "NotFound", err.Error(), http.StatusNotFound)
		return
	}
	httpResponseJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func splitNamespaceName(path string) (namespace, name string, ok bool) {
	idx := strings.Index(path, "/")
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}
