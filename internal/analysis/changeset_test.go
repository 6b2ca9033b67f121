package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func TestDeriveKeyPriority(t *testing.T) {
	g := NewChangeSetGrouper(nil, nil)
	ts := time.Date(2025, 6, 1, 12, 7, 0, 0, time.UTC)

	cases := []struct {
		name       string
		event      *models.ChangeEvent
		key        string
		confidence float64
	}{
		{
			"explicit id wins",
			&models.ChangeEvent{
				ChangeSetID: "cs-9", Repository: "org/repo", PRNumber: 4,
				Metadata: map[string]string{"pipeline_id": "p-1"},
			},
			"explicit:cs-9", confidenceExplicit,
		},
		{
			"run metadata beats pr",
			&models.ChangeEvent{
				Source: models.SourceGitHub, Repository: "org/repo", PRNumber: 4,
				Metadata: map[string]string{"workflow_run_id": "w-7"},
			},
			"run:github:w-7", confidenceRun,
		},
		{
			"pr beats commit",
			&models.ChangeEvent{Repository: "org/repo", PRNumber: 4, CommitSHA: "abc"},
			"pr:org/repo:4", confidencePR,
		},
		{
			"commit",
			&models.ChangeEvent{Repository: "org/repo", CommitSHA: "abc"},
			"commit:org/repo:abc", confidenceCommit,
		},
		{
			"bucket by repository scope",
			&models.ChangeEvent{
				Repository: "org/repo", Environment: "production", Timestamp: ts,
			},
			"bucket:production:org/repo:1943088", confidenceBucket,
		},
		{
			"bucket falls back to service scope",
			&models.ChangeEvent{
				Service: "api", Environment: "staging", Timestamp: ts,
			},
			"bucket:staging:api:1943088", confidenceBucket,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, confidence := g.deriveKey(tc.event)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.confidence, confidence)
		})
	}
}

func TestDeriveKeyBucketBoundary(t *testing.T) {
	g := NewChangeSetGrouper(nil, nil)
	inBucket := &models.ChangeEvent{
		Service: "api", Environment: "production",
		Timestamp: time.Date(2025, 6, 1, 12, 14, 59, 0, time.UTC),
	}
	nextBucket := &models.ChangeEvent{
		Service: "api", Environment: "production",
		Timestamp: time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC),
	}
	key1, _ := g.deriveKey(inBucket)
	key2, _ := g.deriveKey(nextBucket)
	assert.NotEqual(t, key1, key2)
}

func TestGroupEventsClustersBySharedIdentity(t *testing.T) {
	grouper := NewChangeSetGrouper(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	events := []*models.ChangeEvent{
		{
			ID: "e2", Service: "api", Summary: "Deploy api",
			ChangeType: models.ChangeTypeDeployment, Environment: "production",
			Repository: "org/repo", PRNumber: 4, Timestamp: base.Add(2 * time.Minute),
			Initiator: models.InitiatorHuman,
		},
		{
			ID: "e1", Service: "web", Summary: "Deploy web",
			ChangeType: models.ChangeTypeDeployment, Environment: "production",
			Repository: "org/repo", PRNumber: 4, Timestamp: base,
			Initiator: models.InitiatorHuman, AuthorType: models.AuthorTypeAIAssisted,
		},
		{
			ID: "e3", Service: "billing", Summary: "Flag flip",
			ChangeType: models.ChangeTypeFeatureFlag, Environment: "staging",
			Timestamp: base.Add(5 * time.Minute), Initiator: models.InitiatorAgent,
		},
	}

	sets := grouper.GroupEvents(events)
	require.Len(t, sets, 2)

	pr := sets[0]
	assert.Equal(t, "pr:org/repo:4", pr.Key)
	assert.NotEmpty(t, pr.ID)
	assert.Equal(t, 2, pr.EventCount)
	assert.Equal(t, []string{"e1", "e2"}, pr.EventIDs, "events sort by timestamp inside a set")
	assert.Equal(t, []string{"api", "web"}, pr.Services)
	assert.Equal(t, []string{"org/repo"}, pr.Repositories)
	assert.Equal(t, "production", pr.Environment)
	assert.Equal(t, base, pr.WindowStart)
	assert.Equal(t, base.Add(2*time.Minute), pr.WindowEnd)
	assert.Equal(t, confidencePR, pr.Confidence)
	assert.Equal(t, []models.AuthorType{models.AuthorTypeAIAssisted}, pr.AuthorTypes)
	assert.Equal(t, "2 related changes to org/repo", pr.Title)
	require.NotNil(t, pr.ReadinessDelta)

	single := sets[1]
	assert.Equal(t, 1, single.EventCount)
	assert.Equal(t, "Flag flip", single.Title, "singleton sets use the event summary")
}

func TestGroupEventsMixedEnvironment(t *testing.T) {
	grouper := NewChangeSetGrouper(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sets := grouper.GroupEvents([]*models.ChangeEvent{
		{ID: "e1", Service: "api", Summary: "a", ChangeType: models.ChangeTypeDeployment,
			Environment: "production", ChangeSetID: "cs-1", Timestamp: base},
		{ID: "e2", Service: "api", Summary: "b", ChangeType: models.ChangeTypeDeployment,
			Environment: "staging", ChangeSetID: "cs-1", Timestamp: base.Add(time.Minute)},
	})
	require.Len(t, sets, 1)
	assert.Equal(t, "mixed", sets[0].Environment)
}

func newCorrelation(event *models.ChangeEvent, score float64, reasons ...string) *models.ChangeCorrelation {
	return &models.ChangeCorrelation{
		ChangeEvent:      event,
		CorrelationScore: score,
		WhyRelevant:      reasons,
		Confidence: models.CorrelationConfidence{
			Overall: score,
			Factors: models.CorrelationFactors{TimeProximity: score},
		},
	}
}

func TestRankChangeSetsForIncident(t *testing.T) {
	g := graph.New()
	g.AddDependency(graph.DependencyEdge{Source: "web", Target: "api"})
	analyzer := NewBlastRadiusAnalyzer(g)
	grouper := NewChangeSetGrouper(g, analyzer)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	strongA := &models.ChangeEvent{
		ID: "a1", Service: "api", Summary: "Deploy api",
		ChangeType: models.ChangeTypeDeployment, Environment: "production",
		ChangeSetID: "release-1", Timestamp: base,
	}
	strongB := &models.ChangeEvent{
		ID: "a2", Service: "api", Summary: "Config follow-up",
		ChangeType: models.ChangeTypeConfigChange, Environment: "production",
		ChangeSetID: "release-1", Timestamp: base.Add(time.Minute),
	}
	weak := &models.ChangeEvent{
		ID: "b1", Service: "billing", Summary: "Unrelated tweak",
		ChangeType: models.ChangeTypeScaling, Environment: "production",
		ChangeSetID: "release-2", Timestamp: base.Add(2 * time.Minute),
	}

	ranked, err := grouper.RankChangeSetsForIncident(context.Background(), []*models.ChangeCorrelation{
		newCorrelation(strongA, 0.9, "Very recent (<15m)"),
		newCorrelation(strongB, 0.7, "Recent (<60m)"),
		newCorrelation(weak, 0.2),
	}, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	top := ranked[0]
	assert.Equal(t, "explicit:release-1", top.ChangeSet.Key)
	// 0.65*max + 0.35*avg = 0.65*0.9 + 0.35*0.8 = 0.865
	assert.Equal(t, 0.865, top.Score)
	assert.Equal(t, top.Score, top.Confidence.Overall)
	assert.Equal(t, 0.8, top.Confidence.Factors.TimeProximity, "factor means average across member events")
	assert.Contains(t, top.WhyRelevant, "Very recent (<15m)")
	assert.Contains(t, top.WhyRelevant, "Recent (<60m)")
	require.NotNil(t, top.SuggestedBlastRadius)
	assert.Equal(t, []string{"web"}, top.SuggestedBlastRadius.DirectServices)

	assert.Less(t, ranked[1].Score, top.Score)
}

func TestRankChangeSetsHonorsMaxResults(t *testing.T) {
	grouper := NewChangeSetGrouper(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var correlations []*models.ChangeCorrelation
	for i := 0; i < 4; i++ {
		correlations = append(correlations, newCorrelation(&models.ChangeEvent{
			ID: string(rune('a' + i)), Service: "api", Summary: "x",
			ChangeType: models.ChangeTypeDeployment, Environment: "production",
			ChangeSetID: "cs-" + string(rune('a'+i)), Timestamp: base,
		}, 0.5))
	}

	ranked, err := grouper.RankChangeSetsForIncident(context.Background(), correlations, 2)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestDominantChangeType(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	set := &models.ChangeSet{
		ChangeTypes: []models.ChangeType{
			models.ChangeTypeConfigChange, models.ChangeTypeDeployment,
		},
		Events: []*models.ChangeEvent{
			{ChangeType: models.ChangeTypeDeployment, Timestamp: base},
			{ChangeType: models.ChangeTypeDeployment, Timestamp: base},
			{ChangeType: models.ChangeTypeConfigChange, Timestamp: base},
		},
	}
	assert.Equal(t, models.ChangeTypeDeployment, dominantChangeType(set))

	tie := &models.ChangeSet{
		ChangeTypes: []models.ChangeType{
			models.ChangeTypeConfigChange, models.ChangeTypeDeployment,
		},
		Events: []*models.ChangeEvent{
			{ChangeType: models.ChangeTypeDeployment},
			{ChangeType: models.ChangeTypeConfigChange},
		},
	}
	assert.Equal(t, models.ChangeTypeConfigChange, dominantChangeType(tie),
		"ties resolve to the first type in sorted order")
}
