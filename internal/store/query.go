package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// DefaultQueryLimit caps query results when the caller passes no limit
const DefaultQueryLimit = 50

// Query returns events matching the AND-combined filters, ordered by
// timestamp descending then insertion order.
func (s *Store) Query(ctx context.Context, opts models.QueryOptions) ([]*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var conditions []string
	var args []interface{}

	if len(opts.Services) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Services)), ",")
		// A service matches the primary column or any element of the
		// additional_services JSON array.
		conditions = append(conditions, fmt.Sprintf(
			`(service IN (%s) OR EXISTS (
				SELECT 1 FROM json_each(change_events.additional_services)
				WHERE json_each.value IN (%s)))`, placeholders, placeholders))
		for i := 0; i < 2; i++ {
			for _, svc := range opts.Services {
				args = append(args, svc)
			}
		}
	}
	if len(opts.ChangeTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.ChangeTypes)), ",")
		conditions = append(conditions, fmt.Sprintf("change_type IN (%s)", placeholders))
		for _, t := range opts.ChangeTypes {
			args = append(args, string(t))
		}
	}
	if len(opts.Sources) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Sources)), ",")
		conditions = append(conditions, fmt.Sprintf("source IN (%s)", placeholders))
		for _, src := range opts.Sources {
			args = append(args, string(src))
		}
	}
	if opts.Environment != "" {
		conditions = append(conditions, "environment = ?")
		args = append(args, opts.Environment)
	}
	if opts.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, toMillis(*opts.Until))
	}
	if opts.Initiator != "" {
		conditions = append(conditions, "initiator = ?")
		args = append(args, string(opts.Initiator))
	}
	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}

	query := `SELECT ` + eventColumns + ` FROM change_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid ASC LIMIT ?"
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.mapError(err, "failed to query events")
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// Search runs a prefix full-text search over summary and service. Tokens
// shorter than two characters are dropped; remaining tokens are OR-joined
// and results rank by FTS relevance.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]*models.ChangeEvent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	match := buildMatchExpression(q)
	if match == "" {
		return []*models.ChangeEvent{}, nil
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns("e")+`
		FROM change_events_fts f
		JOIN change_events e ON e.rowid = f.rowid
		WHERE change_events_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, s.mapError(err, "failed to search events")
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// buildMatchExpression converts free text into an FTS5 prefix query:
// each token of length >= 2 becomes "token"* and tokens are OR-joined.
func buildMatchExpression(q string) string {
	var terms []string
	for _, token := range strings.Fields(q) {
		token = strings.Trim(token, `"'`)
		if len(token) < 2 {
			continue
		}
		terms = append(terms, fmt.Sprintf(`"%s"*`, strings.ReplaceAll(token, `"`, `""`)))
	}
	return strings.Join(terms, " OR ")
}

func prefixColumns(alias string) string {
	cols := strings.Split(eventColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

// GetRecentForServices returns up to 100 events touching any of the given
// services within the window ending now.
func (s *Store) GetRecentForServices(ctx context.Context, services []string, windowMinutes int) ([]*models.ChangeEvent, error) {
	since := s.now().Add(-time.Duration(windowMinutes) * time.Minute)
	return s.Query(ctx, models.QueryOptions{
		Services: services,
		Since:    &since,
		Limit:    100,
	})
}

// PruneOlderThan deletes events older than the given number of days and
// returns the deletion count.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if days <= 0 {
		return 0, models.NewValidationError("prune days must be positive")
	}
	cutoff := s.now().AddDate(0, 0, -days)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM change_events WHERE timestamp < ?`, toMillis(cutoff))
	if err != nil {
		return 0, s.mapError(err, "failed to prune events")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.mapError(err, "failed to prune events")
	}
	return int(affected), nil
}

// GetStats returns event counts grouped by type, source and environment
func (s *Store) GetStats(ctx context.Context) (*models.StoreStats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stats := &models.StoreStats{
		ByType:        make(map[models.ChangeType]int),
		BySource:      make(map[models.Source]int),
		ByEnvironment: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_events`).Scan(&stats.Total); err != nil {
		return nil, s.mapError(err, "failed to count events")
	}

	group := func(column string, record func(key string, count int)) error {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT %s, COUNT(*) FROM change_events GROUP BY %s`, column, column))
		if err != nil {
			return s.mapError(err, "failed to aggregate events")
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				return s.mapError(err, "failed to aggregate events")
			}
			record(key, count)
		}
		return rows.Err()
	}

	if err := group("change_type", func(k string, c int) { stats.ByType[models.ChangeType(k)] = c }); err != nil {
		return nil, err
	}
	if err := group("source", func(k string, c int) { stats.BySource[models.Source(k)] = c }); err != nil {
		return nil, err
	}
	if err := group("environment", func(k string, c int) { stats.ByEnvironment[k] = c }); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) collectEvents(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*models.ChangeEvent, error) {
	events := []*models.ChangeEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, s.wrapScanError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err, "failed to read events")
	}
	return events, nil
}
