package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// seedEvents inserts a small fixture set with controlled timestamps.
func seedEvents(t *testing.T, s *Store, base time.Time) {
	t.Helper()
	ctx := context.Background()
	fixtures := []*models.ChangeEvent{
		{
			Service: "payments", Summary: "Deploy payments v2",
			ChangeType: models.ChangeTypeDeployment, Source: models.SourceGitHub,
			Environment: "production", Initiator: models.InitiatorHuman,
			Timestamp: base.Add(-10 * time.Minute),
		},
		{
			Service: "payments", Summary: "Toggle checkout flag",
			ChangeType: models.ChangeTypeFeatureFlag, Source: models.SourceManual,
			Environment: "staging", Initiator: models.InitiatorAgent,
			Timestamp: base.Add(-30 * time.Minute),
		},
		{
			Service: "billing", AdditionalServices: []string{"payments"},
			Summary:    "Migrate invoices table",
			ChangeType: models.ChangeTypeDBMigration, Source: models.SourceGitHub,
			Environment: "production", Initiator: models.InitiatorHuman,
			Status:    models.StatusFailed,
			Timestamp: base.Add(-60 * time.Minute),
		},
		{
			Service: "search", Summary: "Scale search workers",
			ChangeType: models.ChangeTypeScaling, Source: models.SourceKubernetes,
			Environment: "production", Initiator: models.InitiatorAutomation,
			Timestamp: base.Add(-48 * time.Hour),
		},
	}
	for _, event := range fixtures {
		_, err := s.Insert(ctx, event)
		require.NoError(t, err)
	}
}

func TestQueryOrdering(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)

	events, err := s.Query(context.Background(), models.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.After(events[i-1].Timestamp),
			"results must be timestamp descending")
	}
}

func TestQueryServiceMatchesAdditionalServices(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)

	events, err := s.Query(context.Background(), models.QueryOptions{Services: []string{"payments"}})
	require.NoError(t, err)
	require.Len(t, events, 3, "billing event lists payments as additional service")
}

func TestQueryFilters(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)
	ctx := context.Background()

	byType, err := s.Query(ctx, models.QueryOptions{ChangeTypes: []models.ChangeType{models.ChangeTypeDBMigration}})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "billing", byType[0].Service)

	bySource, err := s.Query(ctx, models.QueryOptions{Sources: []models.Source{models.SourceKubernetes}})
	require.NoError(t, err)
	require.Len(t, bySource, 1)

	byEnv, err := s.Query(ctx, models.QueryOptions{Environment: "staging"})
	require.NoError(t, err)
	require.Len(t, byEnv, 1)
	assert.Equal(t, models.ChangeTypeFeatureFlag, byEnv[0].ChangeType)

	byInitiator, err := s.Query(ctx, models.QueryOptions{Initiator: models.InitiatorAutomation})
	require.NoError(t, err)
	require.Len(t, byInitiator, 1)

	byStatus, err := s.Query(ctx, models.QueryOptions{Status: models.StatusFailed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)

	since := base.Add(-45 * time.Minute)
	until := base
	windowed, err := s.Query(ctx, models.QueryOptions{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, windowed, 2)

	limited, err := s.Query(ctx, models.QueryOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestQueryCombinesFiltersWithAND(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)

	events, err := s.Query(context.Background(), models.QueryOptions{
		Services:    []string{"payments"},
		Environment: "production",
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)
	ctx := context.Background()

	bySummary, err := s.Search(ctx, "invoices", 10)
	require.NoError(t, err)
	require.Len(t, bySummary, 1)
	assert.Equal(t, "billing", bySummary[0].Service)

	byPrefix, err := s.Search(ctx, "paym", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, byPrefix, "prefix tokens match")

	none, err := s.Search(ctx, "nonexistent", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	short, err := s.Search(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, short, "single-character tokens are dropped")
}

func TestSearchIndexFollowsUpdatesAndDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "original summary"))
	require.NoError(t, err)

	newSummary := "rewritten description"
	_, err = s.Update(ctx, stored.ID, &models.EventUpdate{Summary: &newSummary})
	require.NoError(t, err)

	old, err := s.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, old)

	fresh, err := s.Search(ctx, "rewritten", 10)
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	require.NoError(t, s.Delete(ctx, stored.ID))
	gone, err := s.Search(ctx, "rewritten", 10)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestBuildMatchExpression(t *testing.T) {
	assert.Equal(t, `"payments"* OR "deploy"*`, buildMatchExpression("payments deploy"))
	assert.Equal(t, `"deploy"*`, buildMatchExpression(`a "deploy"`))
	assert.Equal(t, "", buildMatchExpression("a b"))
	assert.Equal(t, "", buildMatchExpression(""))
}

func TestGetRecentForServices(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)
	s.SetClock(func() time.Time { return base })

	events, err := s.GetRecentForServices(context.Background(), []string{"payments"}, 40)
	require.NoError(t, err)
	require.Len(t, events, 2, "only events inside the window qualify")
}

func TestPruneOlderThan(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)
	s.SetClock(func() time.Time { return base })

	deleted, err := s.PruneOlderThan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "only the 48h-old event is pruned")

	remaining, err := s.Query(context.Background(), models.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	_, err = s.PruneOlderThan(context.Background(), 0)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestGetStats(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, s, base)

	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.ByType[models.ChangeTypeDeployment])
	assert.Equal(t, 2, stats.BySource[models.SourceGitHub])
	assert.Equal(t, 3, stats.ByEnvironment["production"])
}
