package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
)

// LoadGraphFile loads and validates a dependency graph YAML file. The file
// holds a services list and a dependencies list:
//
//	services:
//	  - id: api
//	    name: API Gateway
//	    team: platform
//	dependencies:
//	  - source: api
//	    target: postgres
//	    type: database
//	    criticality: critical
func LoadGraphFile(path string) (*graph.Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load graph config from %q: %w", path, err)
	}

	var cfg graph.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse graph config from %q: %w", path, err)
	}

	if err := validateGraphConfig(&cfg); err != nil {
		return nil, fmt.Errorf("graph config validation failed for %q: %w", path, err)
	}
	return &cfg, nil
}

func validateGraphConfig(cfg *graph.Config) error {
	seen := make(map[string]bool, len(cfg.Services))
	for i, node := range cfg.Services {
		if node.ID == "" {
			return NewConfigError(fmt.Sprintf("services[%d]: id is required", i))
		}
		if seen[node.ID] {
			return NewConfigError(fmt.Sprintf("services[%d]: duplicate service id %q", i, node.ID))
		}
		seen[node.ID] = true
	}
	for i, edge := range cfg.Dependencies {
		if edge.Source == "" || edge.Target == "" {
			return NewConfigError(fmt.Sprintf("dependencies[%d]: source and target are required", i))
		}
		if edge.Confidence < 0 || edge.Confidence > 1 {
			return NewConfigError(fmt.Sprintf(
				"dependencies[%d] (%s->%s): confidence must be within [0,1]",
				i, edge.Source, edge.Target))
		}
	}
	return nil
}
