package graph

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Export returns a stable snapshot of the graph's nodes and edges,
// sorted by id.
func (g *Graph) Export() Export {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := Export{
		Nodes: make([]ServiceNode, 0, len(g.nodes)),
		Edges: make([]DependencyEdge, 0, len(g.edges)),
	}
	for _, node := range g.nodes {
		out.Nodes = append(out.Nodes, *node)
	}
	for _, edge := range g.edges {
		out.Edges = append(out.Edges, *edge)
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })
	sort.Slice(out.Edges, func(i, j int) bool { return out.Edges[i].ID < out.Edges[j].ID })
	return out
}

// ToJSON serializes the graph as {nodes, edges}
func (g *Graph) ToJSON() ([]byte, error) {
	data, err := json.Marshal(g.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph: %w", err)
	}
	return data, nil
}

// FromJSON reconstructs a fresh graph from a ToJSON snapshot, preserving
// edge metadata.
func FromJSON(data []byte) (*Graph, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse graph export: %w", err)
	}
	return FromExport(export), nil
}

// FromExport builds a graph from a snapshot
func FromExport(export Export) *Graph {
	g := New()
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, node := range export.Nodes {
		g.addServiceLocked(node)
	}
	for _, edge := range export.Edges {
		g.addDependencyLocked(edge)
	}
	return g
}

// ToYAML serializes the graph in the config-file schema
// ({services, dependencies}) so an export can be re-imported as config.
func (g *Graph) ToYAML() ([]byte, error) {
	export := g.Export()
	cfg := Config{
		Services:     export.Nodes,
		Dependencies: export.Edges,
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize graph config: %w", err)
	}
	return data, nil
}

// Config is the YAML schema for a config-authored graph
type Config struct {
	Services     []ServiceNode    `json:"services" yaml:"services"`
	Dependencies []DependencyEdge `json:"dependencies" yaml:"dependencies"`
}

// FromConfig builds a graph from a config-file shape. Edges from config carry
// edgeSource=config unless the config says otherwise.
func FromConfig(cfg Config) *Graph {
	g := New()
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, node := range cfg.Services {
		if node.Metadata == nil {
			node.Metadata = map[string]string{}
		}
		if node.Metadata["source"] == "" {
			node.Metadata["source"] = string(EdgeSourceConfig)
		}
		g.addServiceLocked(node)
	}
	for _, edge := range cfg.Dependencies {
		if edge.EdgeSource == "" {
			edge.EdgeSource = EdgeSourceConfig
		}
		g.addDependencyLocked(edge)
	}
	return g
}
