package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/analysis"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// Triage defaults
const (
	defaultTriageWindowMinutes = 120
	maxDerivedSuspects         = 5
)

// CorrelateOptions characterize an incident for correlation
type CorrelateOptions struct {
	AffectedServices    []string  `json:"affectedServices"`
	IncidentTime        time.Time `json:"incidentTime,omitempty"`
	WindowMinutes       int       `json:"windowMinutes,omitempty"`
	MaxResults          int       `json:"maxResults,omitempty"`
	MinScore            float64   `json:"minScore,omitempty"`
	IncidentEnvironment string    `json:"incidentEnvironment,omitempty"`
	IncludeChangeSets   bool      `json:"includeChangeSets,omitempty"`
}

// CorrelateResult carries ranked correlations and, optionally, the ranked
// change sets they group into.
type CorrelateResult struct {
	Correlations []*models.ChangeCorrelation `json:"correlations"`
	ChangeSets   []*models.RankedChangeSet   `json:"changeSets,omitempty"`
}

// Correlate ranks recent change events against the incident
func (s *Service) Correlate(ctx context.Context, opts CorrelateOptions) (*CorrelateResult, error) {
	if len(opts.AffectedServices) == 0 {
		return nil, models.NewValidationError("correlate requires at least one affected service")
	}
	if s.metrics != nil {
		s.metrics.CorrelationsRun.Inc()
	}

	correlations, err := s.correlator.Correlate(ctx, analysis.CorrelateRequest{
		AffectedServices:    opts.AffectedServices,
		IncidentTime:        opts.IncidentTime,
		WindowMinutes:       opts.WindowMinutes,
		MaxResults:          opts.MaxResults,
		MinScore:            opts.MinScore,
		IncidentEnvironment: opts.IncidentEnvironment,
	})
	if err != nil {
		return nil, err
	}

	result := &CorrelateResult{Correlations: correlations}
	if opts.IncludeChangeSets {
		sets, err := s.grouper.RankChangeSetsForIncident(ctx, correlations, analysis.DefaultCorrelateChangeSets)
		if err != nil {
			return nil, err
		}
		result.ChangeSets = sets
	}
	return result, nil
}

// BlastRadius predicts the upstream impact of changing the given services
func (s *Service) BlastRadius(ctx context.Context, services []string, changeType models.ChangeType, maxDepth int) (*models.BlastRadiusPrediction, error) {
	if len(services) == 0 {
		return nil, models.NewValidationError("blast radius requires at least one service")
	}
	if changeType != "" && !changeType.Valid() {
		return nil, models.NewValidationError("unknown changeType %q", string(changeType))
	}
	if s.analyzer == nil {
		return nil, models.NewUnavailableError("no service graph configured").
			WithHint("import a graph before requesting blast radius")
	}
	if s.metrics != nil {
		s.metrics.BlastRadiusCalls.Inc()
	}
	return s.analyzer.Predict(ctx, services, changeType, maxDepth)
}

// TriageOptions characterize an incident for triage summarization
type TriageOptions struct {
	IncidentTime        time.Time `json:"incidentTime,omitempty"`
	IncidentEnvironment string    `json:"incidentEnvironment,omitempty"`
	WindowMinutes       int       `json:"windowMinutes,omitempty"`
	SuspectedServices   []string  `json:"suspectedServices,omitempty"`
	SymptomTags         []string  `json:"symptomTags,omitempty"`
	MaxChangeSets       int       `json:"maxChangeSets,omitempty"`
}

// TriageResult is the ranked triage summary for an incident
type TriageResult struct {
	SuspectedServices []string                  `json:"suspectedServices"`
	ChangeSets        []*models.RankedChangeSet `json:"changeSets"`
	GeneratedAt       time.Time                 `json:"generatedAt"`
}

// Triage correlates recent changes against the incident and returns the
// strongest change sets. When no suspected services are given they are
// derived from the busiest services in the window.
func (s *Service) Triage(ctx context.Context, opts TriageOptions) (*TriageResult, error) {
	if opts.IncidentTime.IsZero() {
		opts.IncidentTime = s.now()
	}
	if opts.WindowMinutes <= 0 {
		opts.WindowMinutes = defaultTriageWindowMinutes
	}
	if s.metrics != nil {
		s.metrics.TriageRuns.Inc()
	}

	suspects := opts.SuspectedServices
	if len(suspects) == 0 {
		derived, err := s.deriveSuspects(ctx, opts)
		if err != nil {
			return nil, err
		}
		suspects = derived
	}

	result := &TriageResult{
		SuspectedServices: suspects,
		ChangeSets:        []*models.RankedChangeSet{},
		GeneratedAt:       s.now(),
	}
	if len(suspects) == 0 {
		return result, nil
	}

	correlations, err := s.correlator.Correlate(ctx, analysis.CorrelateRequest{
		AffectedServices:    suspects,
		IncidentTime:        opts.IncidentTime,
		WindowMinutes:       opts.WindowMinutes,
		IncidentEnvironment: opts.IncidentEnvironment,
	})
	if err != nil {
		return nil, err
	}

	maxSets := opts.MaxChangeSets
	if maxSets <= 0 {
		maxSets = analysis.DefaultTriageChangeSets
	}
	sets, err := s.grouper.RankChangeSetsForIncident(ctx, correlations, maxSets)
	if err != nil {
		return nil, err
	}
	result.ChangeSets = sets
	return result, nil
}

// deriveSuspects picks the most active services in the incident window,
// folding in services from events matching the symptom tags.
func (s *Service) deriveSuspects(ctx context.Context, opts TriageOptions) ([]string, error) {
	since := opts.IncidentTime.Add(-time.Duration(opts.WindowMinutes) * time.Minute)
	until := opts.IncidentTime
	events, err := s.store.Query(ctx, models.QueryOptions{
		Since: &since,
		Until: &until,
		Limit: 200,
	})
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, event := range events {
		for _, svc := range event.AllServices() {
			counts[svc]++
		}
	}

	if len(opts.SymptomTags) > 0 {
		matched, err := s.store.Search(ctx, strings.Join(opts.SymptomTags, " "), 50)
		if err == nil {
			for _, event := range matched {
				for _, svc := range event.AllServices() {
					counts[svc]++
				}
			}
		}
	}

	services := make([]string, 0, len(counts))
	for svc := range counts {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		if counts[services[i]] != counts[services[j]] {
			return counts[services[i]] > counts[services[j]]
		}
		return services[i] < services[j]
	})
	if len(services) > maxDerivedSuspects {
		services = services[:maxDerivedSuspects]
	}
	return services, nil
}
