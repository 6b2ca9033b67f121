package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// Change-set key confidence by derivation rule. An explicit id is certain;
// a shared time bucket is only a weak hint.
const (
	confidenceExplicit = 1.0
	confidenceRun      = 0.92
	confidencePR       = 0.90
	confidenceCommit   = 0.86
	confidenceBucket   = 0.62
)

const (
	// DefaultBucketMinutes is the fallback time-bucket width
	DefaultBucketMinutes = 15
	// DefaultTriageChangeSets caps ranked change sets for triage
	DefaultTriageChangeSets = 3
	// DefaultCorrelateChangeSets caps ranked change sets attached to a
	// correlate response.
	DefaultCorrelateChangeSets = 5

	maxChangeSetEvidence    = 25
	maxChangeSetWhyRelevant = 10
)

// runMetadataKeys identify a shared pipeline/deployment/session run, in
// priority order.
var runMetadataKeys = []string{
	"pipeline_id", "pipeline_run_id", "workflow_run_id", "run_id",
	"deployment_id", "session_id", "parent_event_id",
}

// ChangeSetGrouper clusters change events into logical change sets and
// ranks them against an incident.
type ChangeSetGrouper struct {
	graph         *graph.Graph
	analyzer      *BlastRadiusAnalyzer
	bucketMinutes int
	logger        *logging.Logger
}

// NewChangeSetGrouper builds a grouper. graph and analyzer may be nil; the
// grouper then skips ownership assessment and blast-radius suggestions.
func NewChangeSetGrouper(g *graph.Graph, analyzer *BlastRadiusAnalyzer) *ChangeSetGrouper {
	return &ChangeSetGrouper{
		graph:         g,
		analyzer:      analyzer,
		bucketMinutes: DefaultBucketMinutes,
		logger:        logging.GetLogger("analysis.changeset"),
	}
}

// GroupEvents clusters events into change sets by shared deployment
// identity, ordered by window start ascending.
func (g *ChangeSetGrouper) GroupEvents(events []*models.ChangeEvent) []*models.ChangeSet {
	groups := map[string][]*models.ChangeEvent{}
	confidences := map[string]float64{}
	var order []string

	for _, event := range events {
		key, confidence := g.deriveKey(event)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			confidences[key] = confidence
		}
		groups[key] = append(groups[key], event)
	}

	sets := make([]*models.ChangeSet, 0, len(order))
	for _, key := range order {
		sets = append(sets, g.buildChangeSet(key, confidences[key], groups[key]))
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].WindowStart.Before(sets[j].WindowStart)
	})
	return sets
}

// deriveKey picks the strongest shared identity the event carries.
// First match wins.
func (g *ChangeSetGrouper) deriveKey(event *models.ChangeEvent) (string, float64) {
	if event.ChangeSetID != "" {
		return "explicit:" + event.ChangeSetID, confidenceExplicit
	}
	for _, key := range runMetadataKeys {
		if value := event.Metadata[key]; value != "" {
			return fmt.Sprintf("run:%s:%s", event.Source, value), confidenceRun
		}
	}
	if event.Repository != "" && event.PRNumber > 0 {
		return fmt.Sprintf("pr:%s:%d", event.Repository, event.PRNumber), confidencePR
	}
	if event.Repository != "" && event.CommitSHA != "" {
		return fmt.Sprintf("commit:%s:%s", event.Repository, event.CommitSHA), confidenceCommit
	}

	scope := event.Repository
	if scope == "" {
		scope = event.Service
	}
	bucket := event.Timestamp.Unix() / int64(g.bucketMinutes*60)
	return fmt.Sprintf("bucket:%s:%s:%d", event.Environment, scope, bucket), confidenceBucket
}

func (g *ChangeSetGrouper) buildChangeSet(key string, confidence float64, events []*models.ChangeEvent) *models.ChangeSet {
	sorted := make([]*models.ChangeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	set := &models.ChangeSet{
		ID:         uuid.NewString(),
		Key:        key,
		EventCount: len(sorted),
		Events:     sorted,
		Confidence: confidence,
	}

	services := map[string]bool{}
	repositories := map[string]bool{}
	changeTypes := map[models.ChangeType]bool{}
	initiators := map[models.Initiator]bool{}
	authorTypes := map[models.AuthorType]bool{}
	environments := map[string]bool{}
	var files []string
	seenEvidence := map[string]bool{}

	for _, event := range sorted {
		set.EventIDs = append(set.EventIDs, event.ID)
		for _, svc := range event.AllServices() {
			services[svc] = true
		}
		if event.Repository != "" {
			repositories[event.Repository] = true
		}
		changeTypes[event.ChangeType] = true
		initiators[event.Initiator] = true
		if event.AuthorType != "" {
			authorTypes[event.AuthorType] = true
		}
		environments[event.Environment] = true
		files = append(files, event.FilesChanged...)

		for _, link := range ExtractEventEvidence(event) {
			dedup := string(link.Type) + "|" + link.URL + "|" + link.Label
			if seenEvidence[dedup] || len(set.Evidence) >= maxChangeSetEvidence {
				continue
			}
			seenEvidence[dedup] = true
			set.Evidence = append(set.Evidence, link)
		}
	}

	set.Services = sortedKeys(services)
	set.Repositories = sortedKeys(repositories)
	for t := range changeTypes {
		set.ChangeTypes = append(set.ChangeTypes, t)
	}
	sort.Slice(set.ChangeTypes, func(i, j int) bool { return set.ChangeTypes[i] < set.ChangeTypes[j] })
	for i := range initiators {
		set.Initiators = append(set.Initiators, i)
	}
	sort.Slice(set.Initiators, func(i, j int) bool { return set.Initiators[i] < set.Initiators[j] })
	for a := range authorTypes {
		set.AuthorTypes = append(set.AuthorTypes, a)
	}
	sort.Slice(set.AuthorTypes, func(i, j int) bool { return set.AuthorTypes[i] < set.AuthorTypes[j] })

	if len(environments) == 1 {
		for env := range environments {
			set.Environment = env
		}
	} else {
		set.Environment = "mixed"
	}

	set.WindowStart = sorted[0].Timestamp
	set.WindowEnd = sorted[len(sorted)-1].Timestamp
	set.Title = changeSetTitle(set, sorted)
	set.ReadinessDelta = assessReadiness(files, set.Services, g.graph)
	return set
}

func changeSetTitle(set *models.ChangeSet, events []*models.ChangeEvent) string {
	if len(events) == 1 {
		return events[0].Summary
	}
	scope := strings.Join(set.Repositories, ", ")
	if scope == "" {
		scope = strings.Join(set.Services, ", ")
	}
	return fmt.Sprintf("%d related changes to %s", len(events), scope)
}

// RankChangeSetsForIncident groups already-correlated events and scores each
// group against the incident. maxResults <= 0 uses the triage default.
func (g *ChangeSetGrouper) RankChangeSetsForIncident(ctx context.Context, correlations []*models.ChangeCorrelation, maxResults int) ([]*models.RankedChangeSet, error) {
	if maxResults <= 0 {
		maxResults = DefaultTriageChangeSets
	}

	byEventID := make(map[string]*models.ChangeCorrelation, len(correlations))
	events := make([]*models.ChangeEvent, 0, len(correlations))
	for _, corr := range correlations {
		byEventID[corr.ChangeEvent.ID] = corr
		events = append(events, corr.ChangeEvent)
	}

	ranked := make([]*models.RankedChangeSet, 0, len(correlations))
	for _, set := range g.GroupEvents(events) {
		entry, err := g.rankChangeSet(ctx, set, byEventID)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, entry)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	return ranked, nil
}

func (g *ChangeSetGrouper) rankChangeSet(ctx context.Context, set *models.ChangeSet, byEventID map[string]*models.ChangeCorrelation) (*models.RankedChangeSet, error) {
	var (
		maxScore   float64
		sumScore   float64
		count      int
		factorSums models.CorrelationFactors
	)
	var whyRelevant []string
	seenWhy := map[string]bool{}
	addWhy := func(reason string) {
		if seenWhy[reason] || len(whyRelevant) >= maxChangeSetWhyRelevant {
			return
		}
		seenWhy[reason] = true
		whyRelevant = append(whyRelevant, reason)
	}

	for _, id := range set.EventIDs {
		corr, ok := byEventID[id]
		if !ok {
			continue
		}
		count++
		sumScore += corr.CorrelationScore
		if corr.CorrelationScore > maxScore {
			maxScore = corr.CorrelationScore
		}
		factorSums.TimeProximity += corr.Confidence.Factors.TimeProximity
		factorSums.ServiceAdjacency += corr.Confidence.Factors.ServiceAdjacency
		factorSums.ChangeRisk += corr.Confidence.Factors.ChangeRisk
		factorSums.ChangeType += corr.Confidence.Factors.ChangeType
		factorSums.EnvironmentMatch += corr.Confidence.Factors.EnvironmentMatch
		for _, reason := range corr.WhyRelevant {
			addWhy(reason)
		}
	}
	if set.ReadinessDelta != nil {
		for _, note := range set.ReadinessDelta.Notes {
			addWhy(note)
		}
	}

	score := 0.0
	factors := models.CorrelationFactors{}
	if count > 0 {
		score = round3(0.65*maxScore + 0.35*(sumScore/float64(count)))
		n := float64(count)
		factors = models.CorrelationFactors{
			TimeProximity:    round3(factorSums.TimeProximity / n),
			ServiceAdjacency: round3(factorSums.ServiceAdjacency / n),
			ChangeRisk:       round3(factorSums.ChangeRisk / n),
			ChangeType:       round3(factorSums.ChangeType / n),
			EnvironmentMatch: round3(factorSums.EnvironmentMatch / n),
		}
	}

	entry := &models.RankedChangeSet{
		ChangeSet:   set,
		Score:       score,
		WhyRelevant: whyRelevant,
		Confidence: models.CorrelationConfidence{
			Overall: score,
			Factors: factors,
		},
	}

	if g.analyzer != nil && len(set.Services) > 0 {
		prediction, err := g.analyzer.Predict(ctx, set.Services, dominantChangeType(set), graph.DefaultMaxDepth)
		if err != nil {
			return nil, err
		}
		entry.SuggestedBlastRadius = prediction
	}
	return entry, nil
}

// dominantChangeType is the most frequent change type in the set, ties
// broken by enum order.
func dominantChangeType(set *models.ChangeSet) models.ChangeType {
	counts := map[models.ChangeType]int{}
	for _, event := range set.Events {
		counts[event.ChangeType]++
	}
	var dominant models.ChangeType
	best := -1
	for _, t := range set.ChangeTypes {
		if counts[t] > best {
			best = counts[t]
			dominant = t
		}
	}
	return dominant
}
