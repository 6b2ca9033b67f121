package api

import (
	"strconv"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// ParseTimestamp parses a timestamp query value, accepting RFC3339, Unix
// seconds and human-readable dates ("2 hours ago", "yesterday 14:00").
// fieldName is used for error messages.
func ParseTimestamp(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, models.NewValidationError("%s timestamp is required", fieldName)
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		if unix < 0 {
			return time.Time{}, models.NewValidationError("%s timestamp must be non-negative", fieldName)
		}
		return time.Unix(unix, 0).UTC(), nil
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		PreferredDateSource: dps.CurrentPeriod,
	}
	parsed, err := parser.Parse(cfg, value)
	if err != nil {
		return time.Time{}, models.NewValidationError(
			"%s must be an RFC3339 timestamp, Unix seconds or a natural-language date: %v", fieldName, err)
	}
	if parsed.IsZero() {
		return time.Time{}, models.NewValidationError("%s could not be parsed as a date: %s", fieldName, value)
	}
	return parsed.Time.UTC(), nil
}

// ParseOptionalTimestamp parses an optional timestamp value; an empty value
// yields the zero time and no error.
func ParseOptionalTimestamp(value, fieldName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return ParseTimestamp(value, fieldName)
}
