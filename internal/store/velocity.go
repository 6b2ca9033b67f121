package store

import (
	"context"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// serviceMatch is the predicate shared by velocity queries: the service is
// either the primary affected service or listed in additional_services.
const serviceMatch = `(service = ? OR EXISTS (
	SELECT 1 FROM json_each(change_events.additional_services)
	WHERE json_each.value = ?))`

// GetVelocity computes change activity for a service in the window ending
// now: a per-change-type count and the average interval between consecutive
// events. The average comes from the actual timestamps, not from dividing
// the window by the count.
func (s *Store) GetVelocity(ctx context.Context, service string, windowMinutes int) (*models.VelocityMetric, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	end := s.now()
	start := end.Add(-time.Duration(windowMinutes) * time.Minute)
	return s.velocityWindow(ctx, service, windowMinutes, start, end)
}

// GetVelocityTrend returns `periods` sequential velocity windows ending at
// now, oldest first. Window bounds are (start, end]: an event exactly on a
// boundary counts once, in the window it ends.
func (s *Store) GetVelocityTrend(ctx context.Context, service string, windowMinutes, periods int) ([]*models.VelocityMetric, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if periods <= 0 {
		periods = 1
	}
	now := s.now()
	window := time.Duration(windowMinutes) * time.Minute

	metrics := make([]*models.VelocityMetric, 0, periods)
	for i := 0; i < periods; i++ {
		end := now.Add(-time.Duration(periods-1-i) * window)
		start := end.Add(-window)
		metric, err := s.velocityWindow(ctx, service, windowMinutes, start, end)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, nil
}

func (s *Store) velocityWindow(ctx context.Context, service string, windowMinutes int, start, end time.Time) (*models.VelocityMetric, error) {
	metric := &models.VelocityMetric{
		Service:       service,
		WindowMinutes: windowMinutes,
		WindowStart:   start,
		WindowEnd:     end,
		ChangeTypes:   make(map[models.ChangeType]int),
	}

	// Pass 1: grouped counts per change type.
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_type, COUNT(*)
		FROM change_events
		WHERE `+serviceMatch+` AND timestamp > ? AND timestamp <= ?
		GROUP BY change_type`,
		service, service, toMillis(start), toMillis(end))
	if err != nil {
		return nil, s.mapError(err, "failed to compute velocity")
	}
	defer rows.Close()
	for rows.Next() {
		var changeType string
		var count int
		if err := rows.Scan(&changeType, &count); err != nil {
			return nil, s.mapError(err, "failed to compute velocity")
		}
		metric.ChangeTypes[models.ChangeType(changeType)] = count
		metric.ChangeCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err, "failed to compute velocity")
	}

	// Pass 2: the timestamp list drives the average inter-event interval.
	tsRows, err := s.db.QueryContext(ctx, `
		SELECT timestamp
		FROM change_events
		WHERE `+serviceMatch+` AND timestamp > ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		service, service, toMillis(start), toMillis(end))
	if err != nil {
		return nil, s.mapError(err, "failed to compute velocity")
	}
	defer tsRows.Close()
	var timestamps []int64
	for tsRows.Next() {
		var ms int64
		if err := tsRows.Scan(&ms); err != nil {
			return nil, s.mapError(err, "failed to compute velocity")
		}
		timestamps = append(timestamps, ms)
	}
	if err := tsRows.Err(); err != nil {
		return nil, s.mapError(err, "failed to compute velocity")
	}

	if len(timestamps) >= 2 {
		totalMS := timestamps[len(timestamps)-1] - timestamps[0]
		intervals := len(timestamps) - 1
		metric.AverageIntervalMinutes = float64(totalMS) / float64(intervals) / 60000.0
	}
	return metric, nil
}
