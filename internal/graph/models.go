package graph

import (
	"fmt"
	"time"
)

// NodeType represents what kind of infrastructure participant a node is
type NodeType string

const (
	NodeTypeService        NodeType = "service"
	NodeTypeDatabase       NodeType = "database"
	NodeTypeCache          NodeType = "cache"
	NodeTypeQueue          NodeType = "queue"
	NodeTypeExternal       NodeType = "external"
	NodeTypeInfrastructure NodeType = "infrastructure"
)

// ServiceTier represents the operational importance of a service
type ServiceTier string

const (
	TierCritical ServiceTier = "critical"
	TierHigh     ServiceTier = "high"
	TierMedium   ServiceTier = "medium"
	TierLow      ServiceTier = "low"
)

// EdgeType represents the kind of dependency an edge encodes
type EdgeType string

const (
	EdgeTypeSync     EdgeType = "sync"
	EdgeTypeAsync    EdgeType = "async"
	EdgeTypeDatabase EdgeType = "database"
	EdgeTypeCache    EdgeType = "cache"
	EdgeTypeQueue    EdgeType = "queue"
	EdgeTypeExternal EdgeType = "external"
)

// Criticality classifies how badly the source degrades when the target fails
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityDegraded Criticality = "degraded"
	CriticalityOptional Criticality = "optional"
)

// criticalityRank orders criticalities from strongest to weakest.
// Higher rank means a weaker link.
func criticalityRank(c Criticality) int {
	switch c {
	case CriticalityCritical:
		return 0
	case CriticalityDegraded:
		return 1
	case CriticalityOptional:
		return 2
	default:
		return 1
	}
}

// WeakerCriticality returns the weaker of two criticalities.
// A chain is only as strong as its weakest link: critical -> optional
// aggregates to optional.
func WeakerCriticality(a, b Criticality) Criticality {
	if criticalityRank(b) > criticalityRank(a) {
		return b
	}
	return a
}

// EdgeSource tags the provenance layer that contributed an edge
type EdgeSource string

const (
	EdgeSourceConfig     EdgeSource = "config"
	EdgeSourceManual     EdgeSource = "manual"
	EdgeSourceBackstage  EdgeSource = "backstage"
	EdgeSourceOTel       EdgeSource = "otel"
	EdgeSourceKubeLabels EdgeSource = "kube-labels"
	EdgeSourceInferred   EdgeSource = "inferred"
	EdgeSourceDiscovered EdgeSource = "discovered"
	EdgeSourceImport     EdgeSource = "import"
	EdgeSourceMCPImport  EdgeSource = "mcp-import"
)

// ServiceNode is a participant in the dependency graph
type ServiceNode struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Type       NodeType          `json:"type,omitempty" yaml:"type,omitempty"`
	Tier       ServiceTier       `json:"tier,omitempty" yaml:"tier,omitempty"`
	Team       string            `json:"team,omitempty" yaml:"team,omitempty"`
	Owner      string            `json:"owner,omitempty" yaml:"owner,omitempty"`
	Repository string            `json:"repository,omitempty" yaml:"repository,omitempty"`
	Tags       []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DependencyEdge is a directed dependency of Source on Target.
// ID is always "{source}->{target}": edges between the same ordered pair
// collapse into one, which makes re-import idempotent.
type DependencyEdge struct {
	ID          string            `json:"id" yaml:"-"`
	Source      string            `json:"source" yaml:"source"`
	Target      string            `json:"target" yaml:"target"`
	Type        EdgeType          `json:"type,omitempty" yaml:"type,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Criticality Criticality       `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	EdgeSource  EdgeSource        `json:"edgeSource,omitempty" yaml:"edgeSource,omitempty"`
	Confidence  float64           `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	LastSeen    time.Time         `json:"lastSeen,omitempty" yaml:"lastSeen,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EdgeID derives the canonical edge id for an ordered node pair
func EdgeID(source, target string) string {
	return fmt.Sprintf("%s->%s", source, target)
}

// ImpactPath is one walk produced by an impact traversal.
// Path includes both endpoints, so Hops == len(Path) and a single-edge
// traversal has Hops == 2. Criticality is weakest-link aggregated and
// Confidence is the minimum edge confidence along the path.
type ImpactPath struct {
	Source      string       `json:"source"`
	Affected    string       `json:"affected"`
	Path        []string     `json:"path"`
	Hops        int          `json:"hops"`
	Criticality Criticality  `json:"criticality"`
	Confidence  float64      `json:"confidence"`
	EdgeSources []EdgeSource `json:"edgeSources"`
}

// Stats summarizes the graph topology
type Stats struct {
	NodeCount        int              `json:"nodeCount"`
	EdgeCount        int              `json:"edgeCount"`
	NodesByType      map[NodeType]int `json:"nodesByType"`
	NodesByTeam      map[string]int   `json:"nodesByTeam"`
	AvgOutDegree     float64          `json:"avgOutDegree"`
	CriticalServices int              `json:"criticalServices"`
}

// Export is the serialized form of a graph
type Export struct {
	Nodes []ServiceNode    `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`
}
