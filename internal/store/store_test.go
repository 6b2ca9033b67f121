package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEvent(service, summary string) *models.ChangeEvent {
	return &models.ChangeEvent{
		Service:    service,
		Summary:    summary,
		ChangeType: models.ChangeTypeDeployment,
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestInsertGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, &models.ChangeEvent{
		Service:            "payments",
		AdditionalServices: []string{"billing"},
		Summary:            "Deploy payments v2",
		ChangeType:         models.ChangeTypeDeployment,
		Source:             models.SourceGitHub,
		Initiator:          models.InitiatorHuman,
		AuthorType:         models.AuthorTypeAIAssisted,
		Environment:        "staging",
		CommitSHA:          "abc123def456",
		PRNumber:           42,
		PRURL:              "https://github.com/org/payments/pull/42",
		Repository:         "org/payments",
		FilesChanged:       []string{"main.go"},
		Tags:               []string{"release"},
		Metadata:           map[string]string{"pipeline_id": "p-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "payments", got.Service)
	assert.Equal(t, []string{"billing"}, got.AdditionalServices)
	assert.Equal(t, models.SourceGitHub, got.Source)
	assert.Equal(t, models.AuthorTypeAIAssisted, got.AuthorType)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, 42, got.PRNumber)
	assert.Equal(t, []string{"main.go"}, got.FilesChanged)
	assert.Equal(t, []string{"release"}, got.Tags)
	assert.Equal(t, "p-1", got.Metadata["pipeline_id"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestInsertAppliesDefaults(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	stored, err := s.Insert(context.Background(), testEvent("api", "deploy"))
	require.NoError(t, err)
	assert.Equal(t, now, stored.Timestamp)
	assert.Equal(t, models.SourceManual, stored.Source)
	assert.Equal(t, models.InitiatorUnknown, stored.Initiator)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, "production", stored.Environment)
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(context.Background(), &models.ChangeEvent{Service: "api"})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestInsertDuplicateIdempotencyKeyConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testEvent("api", "deploy")
	first.IdempotencyKey = "deploy-1"
	stored, err := s.Insert(ctx, first)
	require.NoError(t, err)

	second := testEvent("api", "deploy again")
	second.IdempotencyKey = "deploy-1"
	_, err = s.Insert(ctx, second)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindConflict))

	existing, err := s.GetByIdempotencyKey(ctx, "deploy-1")
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, stored.ID, existing.ID)
}

func TestGetByIdempotencyKeyMisses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.GetByIdempotencyKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := s.GetByIdempotencyKey(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEmptyIdempotencyKeysDoNotCollide(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testEvent("api", "first"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testEvent("api", "second"))
	require.NoError(t, err)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindNotFound))
}

func TestUpdatePartial(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "deploy"))
	require.NoError(t, err)

	later := stored.UpdatedAt.Add(time.Minute)
	s.SetClock(func() time.Time { return later })

	status := models.StatusRolledBack
	updated, err := s.Update(ctx, stored.ID, &models.EventUpdate{
		Status: &status,
		Tags:   []string{"incident"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRolledBack, updated.Status)
	assert.Equal(t, []string{"incident"}, updated.Tags)
	assert.Equal(t, "deploy", updated.Summary, "unset fields stay unchanged")
	assert.Equal(t, later, updated.UpdatedAt)

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRolledBack, got.Status)
}

func TestUpdateEmptyIsNoOp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "deploy"))
	require.NoError(t, err)

	updated, err := s.Update(ctx, stored.ID, &models.EventUpdate{})
	require.NoError(t, err)
	assert.Equal(t, stored.UpdatedAt, updated.UpdatedAt)
}

func TestUpdateValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "deploy"))
	require.NoError(t, err)

	bad := models.Status("paused")
	_, err = s.Update(ctx, stored.ID, &models.EventUpdate{Status: &bad})
	assert.True(t, models.IsKind(err, models.ErrKindValidation))

	empty := ""
	_, err = s.Update(ctx, stored.ID, &models.EventUpdate{Summary: &empty})
	assert.True(t, models.IsKind(err, models.ErrKindValidation))

	status := models.StatusFailed
	_, err = s.Update(ctx, "missing", &models.EventUpdate{Status: &status})
	assert.True(t, models.IsKind(err, models.ErrKindNotFound))
}

func TestUpdatePersistsBlastRadius(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "deploy"))
	require.NoError(t, err)

	_, err = s.Update(ctx, stored.ID, &models.EventUpdate{
		BlastRadius: &models.BlastRadiusPrediction{
			DirectServices: []string{"web"},
			RiskLevel:      models.RiskLevelMedium,
		},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BlastRadius)
	assert.Equal(t, []string{"web"}, got.BlastRadius.DirectServices)
	assert.Equal(t, models.RiskLevelMedium, got.BlastRadius.RiskLevel)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stored, err := s.Insert(ctx, testEvent("api", "deploy"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, stored.ID))

	_, err = s.Get(ctx, stored.ID)
	assert.True(t, models.IsKind(err, models.ErrKindNotFound))

	err = s.Delete(ctx, stored.ID)
	assert.True(t, models.IsKind(err, models.ErrKindNotFound))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, testEvent("api", "first")); err != nil {
			return err
		}
		return models.NewValidationError("abort")
	})
	require.Error(t, err)

	events, err := s.Query(ctx, models.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, events, "rolled-back insert must not be visible")
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is a no-op")

	_, err := s.Insert(context.Background(), testEvent("api", "deploy"))
	assert.True(t, models.IsKind(err, models.ErrKindUnavailable))

	_, err = s.Query(context.Background(), models.QueryOptions{})
	assert.True(t, models.IsKind(err, models.ErrKindUnavailable))
}
