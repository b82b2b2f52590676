// Package control implements the cluster state: the in-memory pipeline
// registry, worker-node registry, heartbeat reaper and a round-robin
// score-sorted replica scheduler. Maps are RWMutex-guarded with
// slices.SortFunc for deterministic listing and ulid record IDs; the
// heartbeat reaper runs as a ctx-bound background goroutine loop.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rakunlabs/alan"

	"github.com/rakunlabs/atgraph/internal/graph"
)

// PipelineStatus is the Pipeline.status enum.
type PipelineStatus string

const (
	PipelineStatusPending PipelineStatus = "Pending"
	PipelineStatusRunning PipelineStatus = "Running"
	PipelineStatusUnknown PipelineStatus = "Unknown"
)

// NodeStatus is the WorkerNode.status enum.
type NodeStatus string

const (
	NodeStatusReady    NodeStatus = "Ready"
	NodeStatusNotReady NodeStatus = "NotReady"
	NodeStatusUnknown  NodeStatus = "Unknown"
)

// Pipeline is the control-plane record for a deployed composition.
type Pipeline struct {
	ID                string
	Name              string
	Namespace         string
	Labels            map[string]string
	Composition       *graph.Composition
	DesiredReplicas    int
	ReadyReplicas      int
	ReplicaPlacements  map[string]string // replica-id -> node-name
	Status             PipelineStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WorkerNode is the control-plane record for a registered worker.
type WorkerNode struct {
	Name          string
	Address       string
	Weight        float64
	LastHeartbeat time.Time
	Status        NodeStatus
}

// DuplicatePipelineError is the ControlPlaneConflict error kind (HTTP 409).
type DuplicatePipelineError struct {
	Namespace, Name string
}

func (e *DuplicatePipelineError) Error() string {
	return fmt.Sprintf("pipeline %s/%s already exists", e.Namespace, e.Name)
}

// NotFoundError is the NotFound error kind (HTTP 404).
type NotFoundError struct {
	Kind, Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.Key) }

type pipelineRecord struct {
	mu sync.Mutex
	Pipeline
}

// Store holds all cluster state. Map membership changes (create/delete)
// take mu; mutations to one record additionally hold that record's own
// lock, so concurrent scales of two different pipelines never block each
// other on map structure alone.
type Store struct {
	mu        sync.RWMutex
	pipelines map[string]*pipelineRecord // "<namespace>/<name>" -> record
	nodes     map[string]*WorkerNode     // name -> node

	heartbeatThreshold time.Duration

	cluster *cluster // nil unless alan peer discovery is configured
}

func New() *Store {
	return &Store{
		pipelines:          make(map[string]*pipelineRecord),
		nodes:              make(map[string]*WorkerNode),
		heartbeatThreshold: 30 * time.Second,
	}
}

// WithHeartbeatThreshold overrides the default 30s staleness threshold.
func (s *Store) WithHeartbeatThreshold(d time.Duration) *Store {
	s.heartbeatThreshold = d
	return s
}

// WithCluster enables leader election for the heartbeat reaper across
// multiple control-plane replicas, using alan's UDP peer discovery. cfg
// nil is a no-op: every replica reaps independently.
func (s *Store) WithCluster(ctx context.Context, cfg *alan.Config) (*Store, error) {
	c, err := newCluster(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("control cluster: %w", err)
	}
	s.cluster = c
	return s, nil
}

func pipelineKey(namespace, name string) string { return namespace + "/" + name }

// DeployPipeline creates a new pipeline record and schedules its initial
// replicas across Ready nodes. Returns DuplicatePipelineError if the
// (namespace, name) pair already exists.
func (s *Store) DeployPipeline(ctx context.Context, namespace, name string, comp *graph.Composition, replicas int, labels map[string]string) (Pipeline, error) {
	key := pipelineKey(namespace, name)

	s.mu.Lock()
	if _, exists := s.pipelines[key]; exists {
		s.mu.Unlock()
		return Pipeline{}, &DuplicatePipelineError{Namespace: namespace, Name: name}
	}

	now := time.Now()
	rec := &pipelineRecord{Pipeline: Pipeline{
		ID:                ulid.Make().String(),
		Name:              name,
		Namespace:         namespace,
		Labels:            labels,
		Composition:       comp,
		DesiredReplicas:   replicas,
		ReplicaPlacements: map[string]string{},
		Status:            PipelineStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}}
	s.pipelines[key] = rec
	s.mu.Unlock()

	s.reschedule(rec)
	return rec.Pipeline, nil
}

// ScalePipeline changes desired-replicas and reschedules placements.
func (s *Store) ScalePipeline(ctx context.Context, namespace, name string, replicas int) (Pipeline, error) {
	rec, err := s.lookup(namespace, name)
	if err != nil {
		return Pipeline{}, err
	}

	rec.mu.Lock()
	rec.DesiredReplicas = replicas
	rec.UpdatedAt = time.Now()
	rec.mu.Unlock()

	s.reschedule(rec)
	return rec.Pipeline, nil
}

// DeletePipeline removes a pipeline record.
func (s *Store) DeletePipeline(ctx context.Context, namespace, name string) error {
	key := pipelineKey(namespace, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[key]; !ok {
		return &NotFoundError{Kind: "pipeline", Key: key}
	}
	delete(s.pipelines, key)
	return nil
}

// GetPipeline returns an immutable snapshot.
func (s *Store) GetPipeline(namespace, name string) (Pipeline, error) {
	rec, err := s.lookup(namespace, name)
	if err != nil {
		return Pipeline{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.Pipeline, nil
}

// ListPipelines returns all pipelines, optionally filtered to one
// namespace, sorted by namespace then name for deterministic output.
func (s *Store) ListPipelines(namespace string, all bool) []Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Pipeline, 0, len(s.pipelines))
	for _, rec := range s.pipelines {
		rec.mu.Lock()
		p := rec.Pipeline
		rec.mu.Unlock()
		if !all && namespace != "" && p.Namespace != namespace {
			continue
		}
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b Pipeline) int {
		if a.Namespace != b.Namespace {
			if a.Namespace < b.Namespace {
				return -1
			}
			return 1
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// Namespaces lists distinct namespace names in use.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, rec := range s.pipelines {
		rec.mu.Lock()
		seen[rec.Namespace] = struct{}{}
		rec.mu.Unlock()
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

func (s *Store) lookup(namespace, name string) (*pipelineRecord, error) {
	key := pipelineKey(namespace, name)
	s.mu.RLock()
	rec, ok := s.pipelines[key]
	s.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Kind: "pipeline", Key: key}
	}
	return rec, nil
}

// RegisterNode adds or refreshes a worker node.
func (s *Store) RegisterNode(name, address string, weight float64) WorkerNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := &WorkerNode{
		Name:          name,
		Address:       address,
		Weight:        weight,
		LastHeartbeat: time.Now(),
		Status:        NodeStatusReady,
	}
	s.nodes[name] = n
	return *n
}

// UnregisterNode removes a worker node.
func (s *Store) UnregisterNode(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[name]; !ok {
		return &NotFoundError{Kind: "node", Key: name}
	}
	delete(s.nodes, name)
	return nil
}

// Heartbeat refreshes a node's last-heartbeat timestamp and, if it had
// gone stale, restores it to Ready.
func (s *Store) Heartbeat(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		return &NotFoundError{Kind: "node", Key: name}
	}
	n.LastHeartbeat = time.Now()
	n.Status = NodeStatusReady
	return nil
}

// ListNodes returns all worker nodes sorted by name.
func (s *Store) ListNodes() []WorkerNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]WorkerNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	slices.SortFunc(out, func(a, b WorkerNode) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// Status summarizes cluster health for GET /v1/status.
type Status struct {
	NodesReady         int
	NodesTotal         int
	PipelinesReady     int
	PipelinesTotal     int
	NamespaceCount     int
}

func (s *Store) StatusSummary() Status {
	nodes := s.ListNodes()
	pipelines := s.ListPipelines("", true)

	var st Status
	st.NodesTotal = len(nodes)
	for _, n := range nodes {
		if n.Status == NodeStatusReady {
			st.NodesReady++
		}
	}
	st.PipelinesTotal = len(pipelines)
	for _, p := range pipelines {
		if p.Status == PipelineStatusRunning {
			st.PipelinesReady++
		}
	}
	st.NamespaceCount = len(s.Namespaces())
	return st
}

// reschedule recomputes a pipeline's replica placements from currently
// Ready nodes, round-robin over a score-sorted list. Score is a simple
// formula over each node's configured weight and its current assigned
// replica count across all pipelines: nodes carrying fewer replicas
// score higher and are preferred first.
func (s *Store) reschedule(rec *pipelineRecord) {
	ready := s.readyNodesByScore()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	placements := make(map[string]string, rec.DesiredReplicas)
	if len(ready) > 0 {
		for i := 0; i < rec.DesiredReplicas; i++ {
			node := ready[i%len(ready)]
			placements[fmt.Sprintf("replica-%d", i)] = node
		}
	}
	rec.ReplicaPlacements = placements
	rec.ReadyReplicas = len(placements)
	rec.UpdatedAt = time.Now()

	switch {
	case rec.ReadyReplicas == 0:
		rec.Status = PipelineStatusPending
	case rec.ReadyReplicas < rec.DesiredReplicas:
		rec.Status = PipelineStatusUnknown
	default:
		rec.Status = PipelineStatusRunning
	}
}

// readyNodesByScore returns Ready node names sorted by score descending
// (score = weight - current replica load; ties broken by name).
func (s *Store) readyNodesByScore() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	load := make(map[string]int)
	for _, rec := range s.pipelines {
		rec.mu.Lock()
		for _, node := range rec.ReplicaPlacements {
			load[node]++
		}
		rec.mu.Unlock()
	}

	type scored struct {
		name  string
		score float64
	}
	var candidates []scored
	for name, n := range s.nodes {
		if n.Status != NodeStatusReady {
			continue
		}
		weight := n.Weight
		if weight == 0 {
			weight = 1
		}
		candidates = append(candidates, scored{name: name, score: weight - float64(load[name])})
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		if a.name < b.name {
			return -1
		}
		if a.name > b.name {
			return 1
		}
		return 0
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// RunHeartbeatReaper starts the background loop that demotes stale nodes:
// past one threshold they go Ready -> Unknown, past two thresholds
// Unknown -> NotReady. Runs until ctx is cancelled. When a cluster is
// configured (WithCluster), only the replica holding the distributed
// heartbeat-reaper lock actually reaps; the others skip the tick.
func (s *Store) RunHeartbeatReaper(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatThreshold / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.cluster != nil {
				s.cluster.stop()
			}
			return
		case <-ticker.C:
			if s.cluster == nil {
				s.reap()
				continue
			}
			if !s.cluster.tryLockReaper(ctx, s.heartbeatThreshold/4) {
				continue
			}
			s.reap()
			s.cluster.unlockReaper()
		}
	}
}

func (s *Store) reap() {
	s.mu.Lock()
	now := time.Now()
	var demoted []string
	for name, n := range s.nodes {
		age := now.Sub(n.LastHeartbeat)
		switch {
		case age > 2*s.heartbeatThreshold && n.Status != NodeStatusNotReady:
			n.Status = NodeStatusNotReady
			demoted = append(demoted, name)
		case age > s.heartbeatThreshold && n.Status == NodeStatusReady:
			n.Status = NodeStatusUnknown
			demoted = append(demoted, name)
		}
	}
	s.mu.Unlock()

	for _, name := range demoted {
		slog.Warn("worker node heartbeat stale", "node", name)
	}

	if len(demoted) > 0 {
		s.rescheduleAll()
	}
}

func (s *Store) rescheduleAll() {
	s.mu.RLock()
	recs := make([]*pipelineRecord, 0, len(s.pipelines))
	for _, rec := range s.pipelines {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	for _, rec := range recs {
		s.reschedule(rec)
	}
}
