package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// Correlation scoring weights. The five factors sum to 1.0.
const (
	weightTimeProximity    = 0.35
	weightServiceAdjacency = 0.30
	weightChangeRisk       = 0.15
	weightChangeType       = 0.10
	weightEnvironment      = 0.10

	// Time proximity decays exponentially with this half-life style constant
	timeDecayMinutes = 30.0
)

const (
	// DefaultCorrelationWindowMinutes is the candidate lookback when the
	// caller passes none.
	DefaultCorrelationWindowMinutes = 120
	// DefaultCorrelationMaxResults caps returned correlations
	DefaultCorrelationMaxResults = 20
	// DefaultMinScore drops noise below this correlation score
	DefaultMinScore = 0.1

	maxCorrelationEvidence = 20
)

// Adjacency scores by hop distance from an affected service
var adjacencyScoreByHop = map[int]float64{0: 1.0, 1: 0.7, 2: 0.4}

// EventSource is the slice of the event store the correlator consumes
type EventSource interface {
	GetRecentForServices(ctx context.Context, services []string, windowMinutes int) ([]*models.ChangeEvent, error)
	Query(ctx context.Context, opts models.QueryOptions) ([]*models.ChangeEvent, error)
}

// CorrelateRequest characterizes an incident to rank change events against
type CorrelateRequest struct {
	AffectedServices    []string
	IncidentTime        time.Time
	WindowMinutes       int
	MaxResults          int
	MinScore            float64
	IncidentEnvironment string
}

// Correlator ranks recent change events against an incident using time
// proximity, graph adjacency, recorded risk, change type and environment.
type Correlator struct {
	events EventSource
	graph  *graph.Graph
	logger *logging.Logger
	now    func() time.Time
}

// NewCorrelator builds a correlator over the event source and graph.
// The graph may be nil; adjacency then contributes nothing.
func NewCorrelator(events EventSource, g *graph.Graph) *Correlator {
	return &Correlator{
		events: events,
		graph:  g,
		logger: logging.GetLogger("analysis.correlator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the correlator's clock. Tests only.
func (c *Correlator) SetClock(now func() time.Time) {
	c.now = now
}

// Correlate returns the ranked correlations for the incident, strongest first
func (c *Correlator) Correlate(ctx context.Context, req CorrelateRequest) ([]*models.ChangeCorrelation, error) {
	if req.IncidentTime.IsZero() {
		req.IncidentTime = c.now()
	}
	if req.WindowMinutes <= 0 {
		req.WindowMinutes = DefaultCorrelationWindowMinutes
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultCorrelationMaxResults
	}
	if req.MinScore <= 0 {
		req.MinScore = DefaultMinScore
	}

	expanded := c.expandServices(req.AffectedServices)
	candidates, err := c.loadCandidates(ctx, req, expanded)
	if err != nil {
		return nil, err
	}

	correlations := make([]*models.ChangeCorrelation, 0, len(candidates))
	for _, event := range candidates {
		corr := c.score(event, req, expanded)
		if corr.CorrelationScore < req.MinScore {
			continue
		}
		correlations = append(correlations, corr)
	}

	sort.SliceStable(correlations, func(i, j int) bool {
		return correlations[i].CorrelationScore > correlations[j].CorrelationScore
	})
	if len(correlations) > req.MaxResults {
		correlations = correlations[:req.MaxResults]
	}
	c.logger.Debug("correlated %d of %d candidate events", len(correlations), len(candidates))
	return correlations, nil
}

// expandServices maps each service reachable within two hops of the affected
// set to its hop distance. Direct services stay at distance 0; a service
// first seen at a closer distance is never demoted.
func (c *Correlator) expandServices(affected []string) map[string]int {
	expanded := make(map[string]int, len(affected))
	for _, svc := range affected {
		expanded[svc] = 0
	}
	if c.graph == nil {
		return expanded
	}

	frontier := affected
	for hop := 1; hop <= 2; hop++ {
		var next []string
		for _, svc := range frontier {
			neighbors := append(c.graph.GetDependencies(svc), c.graph.GetDependents(svc)...)
			for _, n := range neighbors {
				if _, seen := expanded[n]; seen {
					continue
				}
				expanded[n] = hop
				next = append(next, n)
			}
		}
		frontier = next
	}
	return expanded
}

func (c *Correlator) loadCandidates(ctx context.Context, req CorrelateRequest, expanded map[string]int) ([]*models.ChangeEvent, error) {
	if len(expanded) > 0 {
		services := make([]string, 0, len(expanded))
		for svc := range expanded {
			services = append(services, svc)
		}
		sort.Strings(services)
		return c.events.GetRecentForServices(ctx, services, req.WindowMinutes)
	}
	since := req.IncidentTime.Add(-time.Duration(req.WindowMinutes) * time.Minute)
	return c.events.Query(ctx, models.QueryOptions{Since: &since, Limit: 100})
}

func (c *Correlator) score(event *models.ChangeEvent, req CorrelateRequest, expanded map[string]int) *models.ChangeCorrelation {
	deltaMinutes := math.Abs(req.IncidentTime.Sub(event.Timestamp).Minutes())

	factors := models.CorrelationFactors{
		TimeProximity:    math.Exp(-deltaMinutes / timeDecayMinutes),
		ChangeRisk:       changeRiskScore(event),
		ChangeType:       changeTypeScore(event.ChangeType),
		EnvironmentMatch: environmentScore(event.Environment, req.IncidentEnvironment),
	}

	adjacency, overlap, bestHop := c.adjacency(event, expanded)
	factors.ServiceAdjacency = adjacency

	score := weightTimeProximity*factors.TimeProximity +
		weightServiceAdjacency*factors.ServiceAdjacency +
		weightChangeRisk*factors.ChangeRisk +
		weightChangeType*factors.ChangeType +
		weightEnvironment*factors.EnvironmentMatch

	factors.TimeProximity = round3(factors.TimeProximity)
	factors.ServiceAdjacency = round3(factors.ServiceAdjacency)
	factors.ChangeRisk = round3(factors.ChangeRisk)
	factors.ChangeType = round3(factors.ChangeType)
	factors.EnvironmentMatch = round3(factors.EnvironmentMatch)
	score = round3(score)

	reasons := c.buildReasons(event, req, deltaMinutes, overlap, bestHop)
	evidence := c.buildEvidence(event, overlap, bestHop)

	return &models.ChangeCorrelation{
		ChangeEvent:        event,
		CorrelationScore:   score,
		CorrelationReasons: reasons,
		WhyRelevant:        reasons,
		ServiceOverlap:     overlap,
		TimeDeltaMinutes:   round3(deltaMinutes),
		Confidence: models.CorrelationConfidence{
			Overall: score,
			Factors: factors,
		},
		Evidence: evidence,
	}
}

// adjacency returns the best adjacency score over the event's service set,
// the matched service names and the best (closest) hop distance. bestHop is
// -1 when no service matched.
func (c *Correlator) adjacency(event *models.ChangeEvent, expanded map[string]int) (float64, []string, int) {
	best := 0.0
	bestHop := -1
	var overlap []string
	seen := map[string]bool{}
	for _, svc := range event.AllServices() {
		hop, ok := expanded[svc]
		if !ok {
			continue
		}
		if !seen[svc] {
			seen[svc] = true
			overlap = append(overlap, svc)
		}
		if s := adjacencyScoreByHop[hop]; s > best {
			best = s
			bestHop = hop
		}
	}
	sort.Strings(overlap)
	return best, overlap, bestHop
}

func (c *Correlator) buildReasons(event *models.ChangeEvent, req CorrelateRequest, deltaMinutes float64, overlap []string, bestHop int) []string {
	var reasons []string
	switch {
	case deltaMinutes < 15:
		reasons = append(reasons, "Very recent (<15m)")
	case deltaMinutes < 60:
		reasons = append(reasons, "Recent (<60m)")
	}

	if len(overlap) > 0 {
		names := strings.Join(overlap, ", ")
		switch bestHop {
		case 0:
			reasons = append(reasons, fmt.Sprintf("Directly touches affected service: %s", names))
		case 1:
			reasons = append(reasons, fmt.Sprintf("1-hop graph neighbor: %s", names))
		case 2:
			reasons = append(reasons, fmt.Sprintf("2-hop graph neighbor: %s", names))
		}
	}

	if changeTypeScore(event.ChangeType) >= 0.8 {
		reasons = append(reasons, fmt.Sprintf("High-impact change type: %s", event.ChangeType))
	}
	if event.BlastRadius != nil {
		switch event.BlastRadius.RiskLevel {
		case models.RiskLevelCritical, models.RiskLevelHigh:
			reasons = append(reasons, fmt.Sprintf("Recorded %s risk blast radius", event.BlastRadius.RiskLevel))
		}
	}
	if req.IncidentEnvironment != "" {
		if event.Environment == req.IncidentEnvironment {
			reasons = append(reasons, fmt.Sprintf("Same environment: %s", event.Environment))
		} else {
			reasons = append(reasons, fmt.Sprintf("Different environment: %s vs %s", event.Environment, req.IncidentEnvironment))
		}
	}
	return reasons
}

func (c *Correlator) buildEvidence(event *models.ChangeEvent, overlap []string, bestHop int) []models.EvidenceLink {
	evidence := ExtractEventEvidence(event)
	if bestHop > 0 && len(overlap) > 0 {
		evidence = append(evidence, models.EvidenceLink{
			Type:  models.EvidenceTypeGraphPath,
			Label: fmt.Sprintf("Reached via %d-hop graph adjacency", bestHop),
			Details: map[string]interface{}{
				"matchedServices": overlap,
				"hopDistance":     bestHop,
			},
		})
	}
	if len(evidence) > maxCorrelationEvidence {
		evidence = evidence[:maxCorrelationEvidence]
	}
	return evidence
}

func changeRiskScore(event *models.ChangeEvent) float64 {
	if event.BlastRadius == nil {
		return 0.2
	}
	switch event.BlastRadius.RiskLevel {
	case models.RiskLevelCritical:
		return 1.0
	case models.RiskLevelHigh:
		return 0.8
	case models.RiskLevelMedium:
		return 0.5
	default:
		return 0.2
	}
}

func changeTypeScore(t models.ChangeType) float64 {
	switch t {
	case models.ChangeTypeDeployment:
		return 1.0
	case models.ChangeTypeConfigChange:
		return 0.9
	case models.ChangeTypeDBMigration:
		return 0.85
	case models.ChangeTypeFeatureFlag:
		return 0.8
	case models.ChangeTypeInfraModification:
		return 0.7
	case models.ChangeTypeCodeChange:
		return 0.65
	case models.ChangeTypeRollback:
		return 0.6
	case models.ChangeTypeScaling:
		return 0.5
	case models.ChangeTypeSecurityPatch:
		return 0.4
	default:
		return 0.5
	}
}

func environmentScore(eventEnv, incidentEnv string) float64 {
	switch {
	case incidentEnv == "":
		return 0.5
	case eventEnv == incidentEnv:
		return 1.0
	default:
		return 0.2
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
