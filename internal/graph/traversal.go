package graph

import (
	"context"
	"sort"
)

// Direction selects which adjacency an impact traversal follows
type Direction int

const (
	// DirectionUpstream walks incoming edges: who consumes the target
	DirectionUpstream Direction = iota
	// DirectionDownstream walks outgoing edges: what the target depends on
	DirectionDownstream
)

// DefaultMaxDepth bounds impact traversals when the caller passes no limit
const DefaultMaxDepth = 3

// GetUpstreamImpact walks incoming edges from v and returns one ImpactPath
// per reachable consumer, sorted by hop count ascending. The traversal keeps
// a per-run visited set, so it terminates on cycles and never revisits a
// node; a path that would re-enter a visited node is not reported.
func (g *Graph) GetUpstreamImpact(ctx context.Context, v string, maxDepth int) ([]ImpactPath, error) {
	return g.impact(ctx, v, maxDepth, DirectionUpstream)
}

// GetDownstreamImpact walks outgoing edges from v and returns one ImpactPath
// per reachable provider, sorted by hop count ascending.
func (g *Graph) GetDownstreamImpact(ctx context.Context, v string, maxDepth int) ([]ImpactPath, error) {
	return g.impact(ctx, v, maxDepth, DirectionDownstream)
}

func (g *Graph) impact(ctx context.Context, v string, maxDepth int, dir Direction) ([]ImpactPath, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[v]; !ok {
		return nil, nil
	}

	visited := map[string]bool{v: true}
	var paths []ImpactPath
	err := g.walkLocked(ctx, walkState{
		source:      v,
		current:     v,
		path:        []string{v},
		criticality: CriticalityCritical,
		confidence:  1.0,
		sources:     nil,
		depth:       0,
	}, maxDepth, dir, visited, &paths)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Hops < paths[j].Hops })
	return paths, nil
}

type walkState struct {
	source      string
	current     string
	path        []string
	criticality Criticality
	confidence  float64
	sources     []EdgeSource
	depth       int
}

func (g *Graph) walkLocked(ctx context.Context, st walkState, maxDepth int, dir Direction, visited map[string]bool, out *[]ImpactPath) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.depth >= maxDepth {
		return nil
	}

	var edgeIDs map[string]struct{}
	if dir == DirectionUpstream {
		edgeIDs = g.incoming[st.current]
	} else {
		edgeIDs = g.outgoing[st.current]
	}

	// Deterministic visit order keeps traversal results stable across runs.
	ids := make([]string, 0, len(edgeIDs))
	for id := range edgeIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, edgeID := range ids {
		edge := g.edges[edgeID]
		next := edge.Source
		if dir == DirectionDownstream {
			next = edge.Target
		}
		if visited[next] {
			continue
		}
		visited[next] = true

		nextPath := append(append([]string(nil), st.path...), next)
		nextCrit := WeakerCriticality(st.criticality, edge.Criticality)
		nextConf := st.confidence
		if edge.Confidence < nextConf {
			nextConf = edge.Confidence
		}
		nextSources := appendEdgeSource(st.sources, edge.EdgeSource)

		*out = append(*out, ImpactPath{
			Source:      st.source,
			Affected:    next,
			Path:        nextPath,
			Hops:        len(nextPath),
			Criticality: nextCrit,
			Confidence:  nextConf,
			EdgeSources: nextSources,
		})

		err := g.walkLocked(ctx, walkState{
			source:      st.source,
			current:     next,
			path:        nextPath,
			criticality: nextCrit,
			confidence:  nextConf,
			sources:     nextSources,
			depth:       st.depth + 1,
		}, maxDepth, dir, visited, out)
		if err != nil {
			return err
		}
	}
	return nil
}

func appendEdgeSource(sources []EdgeSource, src EdgeSource) []EdgeSource {
	for _, s := range sources {
		if s == src {
			return sources
		}
	}
	return append(append([]EdgeSource(nil), sources...), src)
}

// FindPath returns the shortest path (by edge count) from one node to
// another over outgoing edges, or nil when no path exists.
func (g *Graph) FindPath(ctx context.Context, from, to string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[from]; !ok {
		return nil, nil
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, nil
	}
	if from == to {
		return []string{from}, nil
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		edgeIDs := make([]string, 0, len(g.outgoing[current]))
		for id := range g.outgoing[current] {
			edgeIDs = append(edgeIDs, id)
		}
		sort.Strings(edgeIDs)

		for _, edgeID := range edgeIDs {
			next := g.edges[edgeID].Target
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == to {
				return reconstructPath(parent, from, to), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, nil
}

func reconstructPath(parent map[string]string, from, to string) []string {
	var reversed []string
	for node := to; node != ""; node = parent[node] {
		reversed = append(reversed, node)
		if node == from {
			break
		}
	}
	path := make([]string, len(reversed))
	for i, node := range reversed {
		path[len(reversed)-1-i] = node
	}
	return path
}
