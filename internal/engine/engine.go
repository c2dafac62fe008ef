// Package engine owns the in-memory knowledge graph: node and edge creation,
// the background inference, maintenance and clustering passes, relevance
// queries, and the write-behind mirror to the durable store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/embed"
	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/metrics"
	"github.com/lazypower/synapse/internal/store"
	"github.com/lazypower/synapse/internal/telemetry"
)

// maxInferenceLog bounds the in-memory audit trail. The store keeps everything.
const maxInferenceLog = 1000

// Options configures a new Engine. Only Telemetry is required; a nil DB runs
// the graph in memory only and a nil Embedder uses fallback vectors.
type Options struct {
	DB           *store.DB
	Telemetry    telemetry.Provider
	Embedder     embed.Provider
	Config       config.EngineConfig
	EmbedTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	// Now is the clock. Defaults to UTC wall time at millisecond precision.
	Now func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg          config.EngineConfig
	tel          telemetry.Provider
	emb          embed.Provider
	embedTimeout time.Duration
	log          *zap.Logger
	m            *metrics.Collector
	now          func() time.Time

	lock *graphLock
	g    *graph.Graph
	sync *synchronizer // nil when running without a store
	bus  *bus

	// mu guards derived state written by background passes.
	mu       sync.Mutex
	clusters []graph.Cluster
	inferLog []Inference

	sched     *Scheduler
	closeOnce sync.Once
}

// New builds an Engine. The persistence loop starts immediately when a DB is
// given; the scheduler starts with Start.
func New(opts Options) (*Engine, error) {
	if opts.Telemetry == nil {
		return nil, errors.New("engine: telemetry provider is required")
	}
	cfg := opts.Config
	if cfg == (config.EngineConfig{}) {
		cfg = config.DefaultEngine()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 100 * time.Millisecond
	}

	e := &Engine{
		cfg:          cfg,
		tel:          opts.Telemetry,
		emb:          opts.Embedder,
		embedTimeout: opts.EmbedTimeout,
		log:          opts.Logger,
		m:            opts.Metrics,
		now:          opts.Now,
		lock:         newGraphLock(cfg.LockTimeout),
		g:            graph.New(),
	}
	e.bus = newBus(e.m.EventsDropped.Inc)
	if opts.DB != nil {
		e.sync = newSynchronizer(opts.DB, cfg.FlushInterval, e.log, e.m)
	}
	e.sched = newScheduler(e, cfg.Interval)
	return e, nil
}

// Config returns the tuning the engine runs with.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Subscribe returns a channel of graph events and a func that unsubscribes and
// closes it. Events are dropped for a subscriber whose buffer is full.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.bus.subscribe(buffer)
}

func (e *Engine) persist(muts ...store.Mutation) {
	if e.sync != nil {
		e.sync.enqueue(muts...)
	}
}

// Flush writes all queued mutations now.
func (e *Engine) Flush() error {
	if e.sync == nil {
		return nil
	}
	return e.sync.flush()
}

// CreateNode inserts or replaces a node. Embedding and telemetry are resolved
// before the graph lock is taken; a failing embedder falls back to a
// deterministic vector. Only invalid input or lock timeout return an error.
func (e *Engine) CreateNode(ctx context.Context, id, nodeType string, props graph.Properties) (graph.Node, error) {
	const op = "create_node"
	if err := validateID(op, "id", id); err != nil {
		return graph.Node{}, err
	}
	if err := validateType(op, "type", nodeType); err != nil {
		return graph.Node{}, err
	}
	props, propsJSON, err := normalizeProperties(op, props)
	if err != nil {
		return graph.Node{}, err
	}

	snap := e.tel.Snapshot()
	vec, usage := e.embed(ctx, id+" "+nodeType+" "+propsJSON, snap)

	now := e.now()
	node := graph.Node{
		ID:           id,
		Type:         nodeType,
		Properties:   props,
		Embedding:    vec,
		Weight:       nodeWeight(snap),
		CreatedAt:    now,
		LastAccessed: now,
	}

	unlock, err := e.lock.Lock(ctx, op)
	if err != nil {
		return graph.Node{}, err
	}
	replaced, err := e.g.PutNode(&node)
	if err != nil {
		unlock()
		return graph.Node{}, validationError(op, "%v", err)
	}
	muts := []store.Mutation{store.NodeUpsert{Node: node}}
	if usage != nil {
		muts = append(muts, store.UsageRecord{Usage: *usage})
	}
	e.persist(muts...)
	count := e.g.NodeCount()
	unlock()

	e.m.NodesCreated.Inc()
	e.m.Nodes.Set(float64(count))
	e.bus.publish(EventNodeCreated, id, node.Weight, now)
	e.log.Debug("node created",
		zap.String("id", id), zap.String("type", nodeType),
		zap.Float64("weight", node.Weight), zap.Bool("replaced", replaced))
	return cloneNode(&node), nil
}

// CreateRelationship upserts the edge from→to with a telemetry-derived
// strength. Re-creating an existing edge updates its type and strength and
// keeps its traversal count.
func (e *Engine) CreateRelationship(ctx context.Context, from, to, edgeType string) (graph.Edge, error) {
	strength := edgeStrength(e.cfg, e.tel.Snapshot())
	return e.createEdge(ctx, "create_relationship", from, to, edgeType, strength)
}

// CreateRelationshipWithStrength is CreateRelationship with a caller-chosen
// strength, clamped to [0.1, 1.0].
func (e *Engine) CreateRelationshipWithStrength(ctx context.Context, from, to, edgeType string, strength float64) (graph.Edge, error) {
	return e.createEdge(ctx, "create_relationship", from, to, edgeType, graph.Clamp(strength))
}

func (e *Engine) createEdge(ctx context.Context, op, from, to, edgeType string, strength float64) (graph.Edge, error) {
	if err := validateID(op, "from", from); err != nil {
		return graph.Edge{}, err
	}
	if err := validateID(op, "to", to); err != nil {
		return graph.Edge{}, err
	}
	if err := validateType(op, "edge_type", edgeType); err != nil {
		return graph.Edge{}, err
	}

	unlock, err := e.lock.Lock(ctx, op)
	if err != nil {
		return graph.Edge{}, err
	}
	defer unlock()

	if _, ok := e.g.Node(from); !ok {
		return graph.Edge{}, validationError(op, "endpoint %q does not exist", from)
	}
	if _, ok := e.g.Node(to); !ok {
		return graph.Edge{}, validationError(op, "endpoint %q does not exist", to)
	}

	id := graph.EdgeID(from, to)
	edge := graph.Edge{
		ID:        id,
		From:      from,
		To:        to,
		Type:      edgeType,
		Strength:  strength,
		CreatedAt: e.now(),
	}
	if old, ok := e.g.Edge(id); ok {
		edge.TraversalCount = old.TraversalCount
		edge.CreatedAt = old.CreatedAt
	}
	if _, err := e.g.PutEdge(&edge); err != nil {
		return graph.Edge{}, validationError(op, "%v", err)
	}
	e.persist(store.EdgeUpsert{Edge: edge})

	e.m.EdgesCreated.Inc()
	e.m.Edges.Set(float64(e.g.EdgeCount()))
	e.bus.publish(EventEdgeCreated, id, strength, edge.CreatedAt)
	return edge, nil
}

// GetNode returns a copy of the node.
func (e *Engine) GetNode(ctx context.Context, id string) (graph.Node, error) {
	unlock, err := e.lock.RLock(ctx, "get_node")
	if err != nil {
		return graph.Node{}, err
	}
	defer unlock()

	n, ok := e.g.Node(id)
	if !ok {
		return graph.Node{}, notFound("get_node", "node", id)
	}
	return cloneNode(n), nil
}

// GetEdge returns a copy of the edge.
func (e *Engine) GetEdge(ctx context.Context, id string) (graph.Edge, error) {
	unlock, err := e.lock.RLock(ctx, "get_edge")
	if err != nil {
		return graph.Edge{}, err
	}
	defer unlock()

	edge, ok := e.g.Edge(id)
	if !ok {
		return graph.Edge{}, notFound("get_edge", "edge", id)
	}
	return *edge, nil
}

// Neighbors returns the sorted ids adjacent to id in either direction.
func (e *Engine) Neighbors(ctx context.Context, id string) ([]string, error) {
	unlock, err := e.lock.RLock(ctx, "neighbors")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := e.g.Node(id); !ok {
		return nil, notFound("neighbors", "node", id)
	}
	return e.g.Neighbors(id), nil
}

// Nodes returns copies of every node in insertion order.
func (e *Engine) Nodes(ctx context.Context) ([]graph.Node, error) {
	unlock, err := e.lock.RLock(ctx, "nodes")
	if err != nil {
		return nil, err
	}
	defer unlock()

	nodes := e.g.Nodes()
	out := make([]graph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out, nil
}

// Edges returns copies of every edge in insertion order.
func (e *Engine) Edges(ctx context.Context) ([]graph.Edge, error) {
	unlock, err := e.lock.RLock(ctx, "edges")
	if err != nil {
		return nil, err
	}
	defer unlock()

	edges := e.g.Edges()
	out := make([]graph.Edge, len(edges))
	for i, edge := range edges {
		out[i] = *edge
	}
	return out, nil
}

// MarkTraversed records one use of an edge. It is the only operation that
// raises traversal_count, which pruning and reinforcement read.
func (e *Engine) MarkTraversed(ctx context.Context, edgeID string) (graph.Edge, error) {
	const op = "mark_traversed"
	unlock, err := e.lock.Lock(ctx, op)
	if err != nil {
		return graph.Edge{}, err
	}
	defer unlock()

	edge, ok := e.g.Edge(edgeID)
	if !ok {
		return graph.Edge{}, notFound(op, "edge", edgeID)
	}
	edge.TraversalCount++
	e.persist(store.EdgeUpsert{Edge: *edge})
	e.bus.publish(EventEdgeTraversed, edgeID, float64(edge.TraversalCount), e.now())
	return *edge, nil
}

// Clusters returns the result of the latest clustering pass.
func (e *Engine) Clusters() []graph.Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]graph.Cluster, len(e.clusters))
	for i, c := range e.clusters {
		c.Members = append([]string(nil), c.Members...)
		out[i] = c
	}
	return out
}

// InferenceLog returns up to limit audit records, newest first.
func (e *Engine) InferenceLog(limit int) []Inference {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.inferLog)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Inference, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.inferLog[i])
	}
	return out
}

// Load replaces the in-memory graph with the contents of the store. Clusters
// are restored as last persisted.
func (e *Engine) Load(ctx context.Context) error {
	const op = "load"
	if e.sync == nil {
		return validationError(op, "engine has no store")
	}
	db := e.sync.db

	nodes, err := db.ListNodes()
	if err != nil {
		return newError(KindPersistence, op, "read nodes", err)
	}
	edges, err := db.ListEdges()
	if err != nil {
		return newError(KindPersistence, op, "read edges", err)
	}
	clusters, err := db.ListClusters()
	if err != nil {
		return newError(KindPersistence, op, "read clusters", err)
	}

	g := graph.New()
	for i := range nodes {
		if _, err := g.PutNode(&nodes[i]); err != nil {
			e.log.Warn("skipping stored node", zap.String("id", nodes[i].ID), zap.Error(err))
		}
	}
	for i := range edges {
		if _, err := g.PutEdge(&edges[i]); err != nil {
			e.log.Warn("skipping stored edge", zap.String("id", edges[i].ID), zap.Error(err))
		}
	}

	unlock, err := e.lock.Lock(ctx, op)
	if err != nil {
		return err
	}
	e.g = g
	nodeCount, edgeCount := g.NodeCount(), g.EdgeCount()
	unlock()

	e.mu.Lock()
	e.clusters = clusters
	e.mu.Unlock()

	e.m.Nodes.Set(float64(nodeCount))
	e.m.Edges.Set(float64(edgeCount))
	e.m.Clusters.Set(float64(len(clusters)))
	e.log.Info("graph loaded",
		zap.Int("nodes", nodeCount), zap.Int("edges", edgeCount), zap.Int("clusters", len(clusters)))
	return nil
}

// Shutdown stops the scheduler, flushes pending writes and closes event
// subscriptions. The store itself belongs to the caller.
func (e *Engine) Shutdown(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.sched.Stop()
		if e.sync != nil {
			if ferr := e.sync.close(); ferr != nil {
				err = fmt.Errorf("final flush: %w", ferr)
			}
		}
		e.bus.closeAll()
	})
	return err
}

func cloneNode(n *graph.Node) graph.Node {
	out := *n
	out.Properties = n.Properties.Clone()
	if n.Embedding != nil {
		out.Embedding = append([]float32(nil), n.Embedding...)
	}
	return out
}
