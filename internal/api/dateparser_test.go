package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

func TestParseTimestampRFC3339(t *testing.T) {
	parsed, err := ParseTimestamp("2025-06-01T12:00:00Z", "since")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), parsed)

	offset, err := ParseTimestamp("2025-06-01T14:00:00+02:00", "since")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), offset)
}

func TestParseTimestampUnixSeconds(t *testing.T) {
	parsed, err := ParseTimestamp("1748779200", "since")
	require.NoError(t, err)
	assert.Equal(t, int64(1748779200), parsed.Unix())

	_, err = ParseTimestamp("-5", "since")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestParseTimestampNaturalLanguage(t *testing.T) {
	parsed, err := ParseTimestamp("2 hours ago", "since")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(-2*time.Hour), parsed, time.Minute)
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, err := ParseTimestamp("certainly not a date at all xyzzy", "since")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))

	_, err = ParseTimestamp("", "since")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestParseOptionalTimestamp(t *testing.T) {
	parsed, err := ParseOptionalTimestamp("", "since")
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())

	parsed, err = ParseOptionalTimestamp("2025-06-01T12:00:00Z", "since")
	require.NoError(t, err)
	assert.False(t, parsed.IsZero())
}
