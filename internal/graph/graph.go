package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/logging"
)

// Graph is an in-memory typed directed multigraph of services and their
// dependencies. All operations are safe for concurrent use; traversals hold a
// read lock for their whole run, so they observe either the pre- or
// post-mutation graph, never a partial one.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]*ServiceNode
	edges    map[string]*DependencyEdge
	outgoing map[string]map[string]struct{} // node id -> set of outgoing edge ids
	incoming map[string]map[string]struct{} // node id -> set of incoming edge ids

	// generation increments on every mutation; consumers use it to
	// invalidate derived caches.
	generation uint64

	logger *logging.Logger
}

// New creates an empty service graph
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*ServiceNode),
		edges:    make(map[string]*DependencyEdge),
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
		logger:   logging.GetLogger("graph"),
	}
}

// Generation returns the current mutation generation
func (g *Graph) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

// AddService adds or overwrites a node. Idempotent by id: reinsertion
// replaces the node's metadata but keeps incident edges intact.
func (g *Graph) AddService(node ServiceNode) {
	if node.ID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addServiceLocked(node)
	g.generation++
}

func (g *Graph) addServiceLocked(node ServiceNode) {
	if node.Type == "" {
		node.Type = NodeTypeService
	}
	if node.Name == "" {
		node.Name = node.ID
	}
	copied := node
	copied.Tags = append([]string(nil), node.Tags...)
	copied.Metadata = cloneStringMap(node.Metadata)
	g.nodes[node.ID] = &copied
	if g.outgoing[node.ID] == nil {
		g.outgoing[node.ID] = make(map[string]struct{})
	}
	if g.incoming[node.ID] == nil {
		g.incoming[node.ID] = make(map[string]struct{})
	}
}

// AddDependency adds or overwrites the edge source->target. Only one edge
// exists per ordered pair. Unknown endpoints are created implicitly so a
// dependency list can be loaded before (or without) its service list.
func (g *Graph) AddDependency(edge DependencyEdge) {
	if edge.Source == "" || edge.Target == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addDependencyLocked(edge)
	g.generation++
}

func (g *Graph) addDependencyLocked(edge DependencyEdge) {
	if _, ok := g.nodes[edge.Source]; !ok {
		g.addServiceLocked(ServiceNode{ID: edge.Source})
	}
	if _, ok := g.nodes[edge.Target]; !ok {
		g.addServiceLocked(ServiceNode{ID: edge.Target})
	}

	edge.ID = EdgeID(edge.Source, edge.Target)
	edge.Confidence = normalizeConfidence(edge.Confidence)
	if edge.Type == "" {
		edge.Type = EdgeTypeSync
	}
	if edge.Criticality == "" {
		edge.Criticality = CriticalityDegraded
	}
	if edge.EdgeSource == "" {
		if src, ok := edge.Metadata["source"]; ok && src != "" {
			edge.EdgeSource = EdgeSource(src)
		} else {
			edge.EdgeSource = EdgeSourceManual
		}
	}
	if edge.LastSeen.IsZero() {
		edge.LastSeen = time.Now().UTC()
	}
	copied := edge
	copied.Metadata = cloneStringMap(edge.Metadata)
	g.edges[edge.ID] = &copied
	g.outgoing[edge.Source][edge.ID] = struct{}{}
	g.incoming[edge.Target][edge.ID] = struct{}{}
}

// normalizeConfidence clamps confidence into [0,1]. A zero value means the
// caller never set it and defaults to full confidence.
func normalizeConfidence(c float64) float64 {
	if c == 0 {
		return 1.0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// RemoveService removes a node and every incident edge
func (g *Graph) RemoveService(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	for edgeID := range g.outgoing[id] {
		g.removeEdgeLocked(edgeID)
	}
	for edgeID := range g.incoming[id] {
		g.removeEdgeLocked(edgeID)
	}
	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	g.generation++
	return true
}

// RemoveDependency removes the edge source->target if present
func (g *Graph) RemoveDependency(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := EdgeID(source, target)
	if _, ok := g.edges[id]; !ok {
		return false
	}
	g.removeEdgeLocked(id)
	g.generation++
	return true
}

func (g *Graph) removeEdgeLocked(edgeID string) {
	edge, ok := g.edges[edgeID]
	if !ok {
		return
	}
	delete(g.outgoing[edge.Source], edgeID)
	delete(g.incoming[edge.Target], edgeID)
	delete(g.edges, edgeID)
}

// GetService returns a copy of the node, or nil if absent
func (g *Graph) GetService(id string) *ServiceNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}
	copied := *node
	return &copied
}

// HasService reports whether the node exists
func (g *Graph) HasService(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Services returns all nodes sorted by id
func (g *Graph) Services() []ServiceNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ServiceNode, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDependencies returns the ids this node depends on (outgoing neighbors)
func (g *Graph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(g.outgoing[id], func(e *DependencyEdge) string { return e.Target })
}

// GetDependents returns the ids that depend on this node (incoming neighbors)
func (g *Graph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(g.incoming[id], func(e *DependencyEdge) string { return e.Source })
}

func (g *Graph) neighborsLocked(edgeIDs map[string]struct{}, pick func(*DependencyEdge) string) []string {
	out := make([]string, 0, len(edgeIDs))
	for edgeID := range edgeIDs {
		if edge, ok := g.edges[edgeID]; ok {
			out = append(out, pick(edge))
		}
	}
	sort.Strings(out)
	return out
}

// GetOutgoingEdges returns copies of the edges leaving the node
func (g *Graph) GetOutgoingEdges(id string) []DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesLocked(g.outgoing[id])
}

// GetIncomingEdges returns copies of the edges entering the node
func (g *Graph) GetIncomingEdges(id string) []DependencyEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesLocked(g.incoming[id])
}

func (g *Graph) edgesLocked(edgeIDs map[string]struct{}) []DependencyEdge {
	out := make([]DependencyEdge, 0, len(edgeIDs))
	for edgeID := range edgeIDs {
		if edge, ok := g.edges[edgeID]; ok {
			out = append(out, *edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Merge adds every node and edge from incoming that base does not already
// have. Base precedence: existing nodes and edges are never overwritten, so
// re-importing a catalog cannot clobber config-authored facts. New nodes are
// stamped with metadata.source = provenanceTag.
func (g *Graph) Merge(incoming *Graph, provenanceTag string) {
	if incoming == nil || incoming == g {
		return
	}
	snapshot := incoming.Export()

	g.mu.Lock()
	defer g.mu.Unlock()
	added := 0
	for _, node := range snapshot.Nodes {
		if _, ok := g.nodes[node.ID]; ok {
			continue
		}
		if node.Metadata == nil {
			node.Metadata = map[string]string{}
		}
		node.Metadata["source"] = provenanceTag
		g.addServiceLocked(node)
		added++
	}
	for _, edge := range snapshot.Edges {
		if _, ok := g.edges[EdgeID(edge.Source, edge.Target)]; ok {
			continue
		}
		g.addDependencyLocked(edge)
		added++
	}
	if added > 0 {
		g.generation++
		g.logger.Debug("merged %d graph elements from %q", added, provenanceTag)
	}
}

// GetStats returns topology statistics
func (g *Graph) GetStats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stats := Stats{
		NodeCount:   len(g.nodes),
		EdgeCount:   len(g.edges),
		NodesByType: make(map[NodeType]int),
		NodesByTeam: make(map[string]int),
	}
	for _, node := range g.nodes {
		stats.NodesByType[node.Type]++
		if node.Team != "" {
			stats.NodesByTeam[node.Team]++
		}
		if node.Tier == TierCritical {
			stats.CriticalServices++
		}
	}
	if len(g.nodes) > 0 {
		stats.AvgOutDegree = float64(len(g.edges)) / float64(len(g.nodes))
	}
	return stats
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
