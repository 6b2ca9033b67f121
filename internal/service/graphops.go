package service

import (
	"context"
	"encoding/json"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// GraphImportResult summarizes a graph import
type GraphImportResult struct {
	Stats graph.Stats `json:"stats"`
}

// GraphImport merges a graph payload into the service graph. The payload is
// either the config-file shape ({services, dependencies}) or an export
// snapshot ({nodes, edges}). Existing nodes and edges win; the import only
// fills gaps.
func (s *Service) GraphImport(ctx context.Context, payload []byte, provenanceTag string) (*GraphImportResult, error) {
	if s.graph == nil {
		return nil, models.NewUnavailableError("no service graph configured")
	}
	if provenanceTag == "" {
		provenanceTag = string(graph.EdgeSourceImport)
	}

	incoming, err := parseGraphPayload(payload)
	if err != nil {
		return nil, err
	}

	s.graph.Merge(incoming, provenanceTag)
	if s.metrics != nil {
		s.metrics.GraphMerges.WithLabelValues(provenanceTag).Inc()
	}
	s.logger.Info("graph import merged (tag=%s)", provenanceTag)
	return &GraphImportResult{Stats: s.graph.GetStats()}, nil
}

// parseGraphPayload sniffs which of the two accepted shapes the payload is
func parseGraphPayload(payload []byte) (*graph.Graph, error) {
	var probe struct {
		Services []json.RawMessage `json:"services"`
		Nodes    []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, models.NewValidationError("graph payload is not valid JSON").WithCause(err)
	}

	switch {
	case probe.Services != nil:
		var cfg graph.Config
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, models.NewValidationError("invalid graph config payload").WithCause(err)
		}
		return graph.FromConfig(cfg), nil
	case probe.Nodes != nil:
		var export graph.Export
		if err := json.Unmarshal(payload, &export); err != nil {
			return nil, models.NewValidationError("invalid graph export payload").WithCause(err)
		}
		return graph.FromExport(export), nil
	default:
		return nil, models.NewValidationError("graph payload must contain services or nodes").
			WithHint("send {services, dependencies} or {nodes, edges}")
	}
}

// ApplyGraphConfig merges a loaded graph config file into the service graph
// under the config provenance tag. Used by the hot-reload watcher.
func (s *Service) ApplyGraphConfig(cfg *graph.Config) error {
	if s.graph == nil || cfg == nil {
		return nil
	}
	s.graph.Merge(graph.FromConfig(*cfg), string(graph.EdgeSourceConfig))
	if s.metrics != nil {
		s.metrics.GraphMerges.WithLabelValues(string(graph.EdgeSourceConfig)).Inc()
	}
	return nil
}

// ListServices returns all known service nodes, sorted by id
func (s *Service) ListServices(ctx context.Context) ([]graph.ServiceNode, error) {
	if s.graph == nil {
		return []graph.ServiceNode{}, nil
	}
	return s.graph.Services(), nil
}

// ServiceDependencies describes a service's direct neighborhood
type ServiceDependencies struct {
	Service      *graph.ServiceNode     `json:"service"`
	Dependencies []graph.DependencyEdge `json:"dependencies"`
	Dependents   []graph.DependencyEdge `json:"dependents"`
}

// Dependencies returns a service's outgoing and incoming edges
func (s *Service) Dependencies(ctx context.Context, serviceID string) (*ServiceDependencies, error) {
	if serviceID == "" {
		return nil, models.NewValidationError("service id must not be empty")
	}
	if s.graph == nil {
		return nil, models.NewUnavailableError("no service graph configured")
	}
	node := s.graph.GetService(serviceID)
	if node == nil {
		return nil, models.NewNotFoundError("service %s not found in graph", serviceID)
	}
	return &ServiceDependencies{
		Service:      node,
		Dependencies: s.graph.GetOutgoingEdges(serviceID),
		Dependents:   s.graph.GetIncomingEdges(serviceID),
	}, nil
}
