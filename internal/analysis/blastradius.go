// Package analysis implements the analytical engine: blast-radius
// prediction, incident correlation, change-set grouping and provenance
// evidence extraction. Everything here is pure in-memory computation over
// the store's query results and the service graph.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// Thresholds for dependent confidence classification. A dependent reached
// through an inferred edge stays in the "possible" bucket unless the path
// confidence clears the inferred threshold.
const (
	highConfidenceThreshold   = 0.75
	inferredEdgeConfThreshold = 0.9
)

// Risk classification thresholds
const (
	highRiskDownstreamCount   = 10
	highRiskDirectCount       = 3
	mediumRiskDownstreamCount = 3
	mediumRiskDirectCount     = 1
)

const maxBlastRadiusEvidence = 40

// BlastRadiusAnalyzer predicts which services are affected upstream when
// target services break or change.
type BlastRadiusAnalyzer struct {
	graph  *graph.Graph
	cache  *predictionCache
	logger *logging.Logger
}

// NewBlastRadiusAnalyzer creates an analyzer over the given graph
func NewBlastRadiusAnalyzer(g *graph.Graph) *BlastRadiusAnalyzer {
	return &BlastRadiusAnalyzer{
		graph:  g,
		cache:  newPredictionCache(defaultPredictionCacheSize),
		logger: logging.GetLogger("analysis.blastradius"),
	}
}

// Predict computes the blast radius for the target services. changeType may
// be empty; it only influences risk classification. maxDepth <= 0 uses the
// default traversal depth.
func (a *BlastRadiusAnalyzer) Predict(ctx context.Context, targets []string, changeType models.ChangeType, maxDepth int) (*models.BlastRadiusPrediction, error) {
	if maxDepth <= 0 {
		maxDepth = graph.DefaultMaxDepth
	}

	generation := a.graph.Generation()
	cacheKey := predictionKey(targets, changeType, maxDepth)
	if cached, ok := a.cache.get(cacheKey, generation); ok {
		return cached, nil
	}

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	direct := map[string]bool{}
	downstream := map[string]bool{}
	highConfidence := map[string]bool{}
	possible := map[string]bool{}
	criticalPathAffected := false
	var allPaths []graph.ImpactPath
	var evidence []models.EvidenceLink
	seenEvidence := map[string]bool{}

	for _, target := range targets {
		paths, err := a.graph.GetUpstreamImpact(ctx, target, maxDepth)
		if err != nil {
			return nil, models.NewTimeoutError("blast radius traversal aborted").WithCause(err)
		}
		for _, path := range paths {
			allPaths = append(allPaths, path)
			affected := path.Affected

			if path.Hops <= 2 {
				direct[affected] = true
			} else {
				downstream[affected] = true
			}

			if isHighConfidencePath(path) {
				highConfidence[affected] = true
			} else {
				possible[affected] = true
			}

			if path.Criticality == graph.CriticalityCritical {
				criticalPathAffected = true
			}

			link := pathEvidence(path)
			dedupKey := string(link.Type) + "|" + link.Label + "|" + link.URL
			if !seenEvidence[dedupKey] && len(evidence) < maxBlastRadiusEvidence {
				seenEvidence[dedupKey] = true
				evidence = append(evidence, link)
			}
		}
	}

	// A dependent proven high-confidence by any path leaves the possible
	// bucket; targets never count as their own dependents; direct
	// dependents are not double counted as downstream.
	for id := range highConfidence {
		delete(possible, id)
	}
	for id := range targetSet {
		delete(direct, id)
		delete(downstream, id)
		delete(highConfidence, id)
		delete(possible, id)
	}
	for id := range direct {
		delete(downstream, id)
	}

	prediction := &models.BlastRadiusPrediction{
		DirectServices:           sortedKeys(direct),
		DownstreamServices:       sortedKeys(downstream),
		HighConfidenceDependents: sortedKeys(highConfidence),
		PossibleDependents:       sortedKeys(possible),
		CriticalPathAffected:     criticalPathAffected,
		ImpactPaths:              allPaths,
		Evidence:                 evidence,
	}
	prediction.RiskLevel = classifyRisk(len(direct), len(downstream), criticalPathAffected, changeType)
	prediction.ConfidenceSummary = models.ConfidenceSummary{
		HighConfidence: len(highConfidence),
		Possible:       len(possible),
		Summary: fmt.Sprintf("%d high-confidence and %d possible dependents",
			len(highConfidence), len(possible)),
	}
	prediction.Rationale = buildRationale(targets, prediction, changeType)

	a.cache.put(cacheKey, generation, prediction)
	return prediction, nil
}

// isHighConfidencePath implements the confidence bucket rule: the path
// confidence must clear the base threshold, and a path through an inferred
// edge needs the stricter inferred threshold.
func isHighConfidencePath(path graph.ImpactPath) bool {
	if path.Confidence < highConfidenceThreshold {
		return false
	}
	for _, src := range path.EdgeSources {
		if src == graph.EdgeSourceInferred && path.Confidence < inferredEdgeConfThreshold {
			return false
		}
	}
	return true
}

func classifyRisk(directCount, downstreamCount int, criticalPath bool, changeType models.ChangeType) models.RiskLevel {
	switch {
	case criticalPath:
		return models.RiskLevelCritical
	case downstreamCount > highRiskDownstreamCount || directCount > highRiskDirectCount:
		return models.RiskLevelHigh
	case downstreamCount > mediumRiskDownstreamCount || directCount > mediumRiskDirectCount:
		return models.RiskLevelMedium
	case changeType == models.ChangeTypeDBMigration && directCount > 0:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func pathEvidence(path graph.ImpactPath) models.EvidenceLink {
	sources := make([]string, len(path.EdgeSources))
	for i, s := range path.EdgeSources {
		sources[i] = string(s)
	}
	return models.EvidenceLink{
		Type:  models.EvidenceTypeGraphPath,
		Label: "Impact path " + strings.Join(path.Path, " -> "),
		Details: map[string]interface{}{
			"from":        path.Source,
			"to":          path.Affected,
			"hops":        len(path.Path) - 1,
			"criticality": string(path.Criticality),
			"confidence":  path.Confidence,
			"edgeSources": sources,
		},
	}
}

func buildRationale(targets []string, p *models.BlastRadiusPrediction, changeType models.ChangeType) []string {
	rationale := []string{
		fmt.Sprintf("Analyzed upstream impact for: %s", strings.Join(targets, ", ")),
		fmt.Sprintf("%d direct dependents consume the target services", len(p.DirectServices)),
		fmt.Sprintf("%d downstream services are reachable within the traversal depth", len(p.DownstreamServices)),
		fmt.Sprintf("%d dependents classified high-confidence", len(p.HighConfidenceDependents)),
	}
	if p.CriticalPathAffected {
		rationale = append(rationale, "At least one impact path is critical end to end")
	}
	if changeType != "" {
		rationale = append(rationale, fmt.Sprintf("Change type %s factored into risk classification", changeType))
	}
	if len(p.DirectServices) == 0 && len(p.DownstreamServices) == 0 {
		rationale = append(rationale, "No dependents found; the targets appear isolated in the graph")
	}
	rationale = append(rationale, fmt.Sprintf("Risk level: %s", p.RiskLevel))
	return rationale
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
