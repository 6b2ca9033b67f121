package models

import (
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
)

// EvidenceType classifies an evidence link
type EvidenceType string

const (
	EvidenceTypeEvent         EvidenceType = "event"
	EvidenceTypePullRequest   EvidenceType = "pull_request"
	EvidenceTypeCommit        EvidenceType = "commit"
	EvidenceTypePipelineRun   EvidenceType = "pipeline_run"
	EvidenceTypeDeploymentRun EvidenceType = "deployment_run"
	EvidenceTypeTerraformRun  EvidenceType = "terraform_run"
	EvidenceTypeGraphPath     EvidenceType = "graph_path"
	EvidenceTypeOther         EvidenceType = "other"
)

// EvidenceLink is a typed URL used to justify correlation and triage output
type EvidenceLink struct {
	Type    EvidenceType           `json:"type"`
	Label   string                 `json:"label"`
	URL     string                 `json:"url,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RiskLevel classifies the predicted severity of a change
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ConfidenceSummary aggregates dependent-classification confidence for a
// blast-radius prediction.
type ConfidenceSummary struct {
	HighConfidence int    `json:"highConfidence"`
	Possible       int    `json:"possible"`
	Summary        string `json:"summary,omitempty"`
}

// BlastRadiusPrediction is the predicted upstream impact of changing the
// target services.
type BlastRadiusPrediction struct {
	DirectServices           []string           `json:"directServices"`
	DownstreamServices       []string           `json:"downstreamServices"`
	HighConfidenceDependents []string           `json:"highConfidenceDependents"`
	PossibleDependents       []string           `json:"possibleDependents"`
	CriticalPathAffected     bool               `json:"criticalPathAffected"`
	RiskLevel                RiskLevel          `json:"riskLevel"`
	ImpactPaths              []graph.ImpactPath `json:"impactPaths"`
	ConfidenceSummary        ConfidenceSummary  `json:"confidenceSummary"`
	Evidence                 []EvidenceLink     `json:"evidence"`
	Rationale                []string           `json:"rationale"`
}

// CorrelationFactors are the per-factor scores behind a correlation
type CorrelationFactors struct {
	TimeProximity    float64 `json:"timeProximity"`
	ServiceAdjacency float64 `json:"serviceAdjacency"`
	ChangeRisk       float64 `json:"changeRisk"`
	ChangeType       float64 `json:"changeType"`
	EnvironmentMatch float64 `json:"environmentMatch"`
}

// CorrelationConfidence carries the overall score and its factor breakdown
type CorrelationConfidence struct {
	Overall float64            `json:"overall"`
	Factors CorrelationFactors `json:"factors"`
}

// ChangeCorrelation scores a stored change event against an incident
type ChangeCorrelation struct {
	ChangeEvent        *ChangeEvent          `json:"changeEvent"`
	CorrelationScore   float64               `json:"correlationScore"`
	CorrelationReasons []string              `json:"correlationReasons"`
	WhyRelevant        []string              `json:"whyRelevant"`
	ServiceOverlap     []string              `json:"serviceOverlap"`
	TimeDeltaMinutes   float64               `json:"timeDeltaMinutes"`
	Confidence         CorrelationConfidence `json:"confidence"`
	Evidence           []EvidenceLink        `json:"evidence"`
}

// ReadinessState describes whether an operational artifact was touched
type ReadinessState string

const (
	ReadinessUpdated ReadinessState = "updated"
	ReadinessMissing ReadinessState = "missing"
	ReadinessUnknown ReadinessState = "unknown"
)

// ReadinessDelta assesses whether a change set shipped the operational
// artifacts needed to respond to its own fallout.
type ReadinessDelta struct {
	RunbookUpdated    ReadinessState `json:"runbookUpdated"`
	MonitoringUpdated ReadinessState `json:"monitoringUpdated"`
	OwnershipKnown    ReadinessState `json:"ownershipKnown"`
	Notes             []string       `json:"notes,omitempty"`
}

// ChangeSet clusters related events into one logical deployment/release/session
type ChangeSet struct {
	ID             string          `json:"id"`
	Key            string          `json:"key"`
	Title          string          `json:"title"`
	EventCount     int             `json:"eventCount"`
	EventIDs       []string        `json:"eventIds"`
	Events         []*ChangeEvent  `json:"events"`
	Services       []string        `json:"services"`
	Repositories   []string        `json:"repositories"`
	Environment    string          `json:"environment"`
	WindowStart    time.Time       `json:"windowStart"`
	WindowEnd      time.Time       `json:"windowEnd"`
	ChangeTypes    []ChangeType    `json:"changeTypes"`
	Initiators     []Initiator     `json:"initiators"`
	AuthorTypes    []AuthorType    `json:"authorTypes"`
	Evidence       []EvidenceLink  `json:"evidence"`
	ReadinessDelta *ReadinessDelta `json:"readinessDelta,omitempty"`
	Confidence     float64         `json:"confidence"`
}

// RankedChangeSet is a change set scored against an incident for triage
type RankedChangeSet struct {
	ChangeSet            *ChangeSet             `json:"changeSet"`
	Score                float64                `json:"score"`
	WhyRelevant          []string               `json:"whyRelevant"`
	Confidence           CorrelationConfidence  `json:"confidence"`
	SuggestedBlastRadius *BlastRadiusPrediction `json:"suggestedBlastRadius,omitempty"`
}
