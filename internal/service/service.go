// Package service is the orchestration layer: it owns the event store, the
// dependency graph and the analytical engine, and exposes the operations the
// transport layer calls. Ingest ordering is fixed here: persist first, then
// attach the blast radius, then notify observers.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Runbook-Agent/change-intelligence/internal/analysis"
	"github.com/Runbook-Agent/change-intelligence/internal/graph"
	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
	"github.com/Runbook-Agent/change-intelligence/internal/store"
)

// EventObserver is invoked after an event has been committed (and its blast
// radius attached, when a graph is present). Observers run synchronously on
// the ingest path; keep them fast.
type EventObserver func(ctx context.Context, event *models.ChangeEvent)

// Service wires the store, graph and analytical engine together
type Service struct {
	store      *store.Store
	graph      *graph.Graph
	analyzer   *analysis.BlastRadiusAnalyzer
	correlator *analysis.Correlator
	grouper    *analysis.ChangeSetGrouper
	metrics    *Metrics
	logger     *logging.Logger
	now        func() time.Time

	observerMu sync.RWMutex
	observers  []EventObserver
}

// New builds the service. graph may be nil; analytical operations then run
// without adjacency expansion and ingest skips blast-radius attachment.
func New(st *store.Store, g *graph.Graph, reg prometheus.Registerer) *Service {
	s := &Service{
		store:      st,
		graph:      g,
		correlator: analysis.NewCorrelator(st, g),
		logger:     logging.GetLogger("service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if g != nil {
		s.analyzer = analysis.NewBlastRadiusAnalyzer(g)
	}
	s.grouper = analysis.NewChangeSetGrouper(g, s.analyzer)
	if reg != nil {
		s.metrics = NewMetrics(reg)
	}
	return s
}

// Store exposes the underlying event store
func (s *Service) Store() *store.Store {
	return s.store
}

// Graph exposes the underlying service graph, nil when none is configured
func (s *Service) Graph() *graph.Graph {
	return s.graph
}

// OnEventCommitted registers an observer for post-commit notifications
func (s *Service) OnEventCommitted(observer EventObserver) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *Service) notifyObservers(ctx context.Context, event *models.ChangeEvent) {
	s.observerMu.RLock()
	observers := make([]EventObserver, len(s.observers))
	copy(observers, s.observers)
	s.observerMu.RUnlock()
	for _, observer := range observers {
		observer(ctx, event)
		if s.metrics != nil {
			s.metrics.ObserverNotifies.Inc()
		}
	}
}

// CreateEvent persists a change event. When idempotencyKey matches an
// already-stored event, that event is returned with created=false and no
// second event is written.
func (s *Service) CreateEvent(ctx context.Context, event *models.ChangeEvent, idempotencyKey string) (*models.ChangeEvent, bool, error) {
	if idempotencyKey != "" {
		event.IdempotencyKey = idempotencyKey
	}

	if event.IdempotencyKey != "" {
		existing, err := s.store.GetByIdempotencyKey(ctx, event.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	stored, err := s.store.Insert(ctx, event)
	if err != nil {
		// A concurrent insert with the same key wins the race; surface
		// the stored event as a duplicate rather than failing.
		if models.IsKind(err, models.ErrKindConflict) && event.IdempotencyKey != "" {
			existing, getErr := s.store.GetByIdempotencyKey(ctx, event.IdempotencyKey)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		if s.metrics != nil {
			s.metrics.IngestFailures.Inc()
		}
		return nil, false, err
	}

	stored = s.attachBlastRadius(ctx, stored)
	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(stored.ChangeType), string(stored.Source)).Inc()
	}
	s.notifyObservers(ctx, stored)
	return stored, true, nil
}

// BatchCreate persists all events in a single transaction. Any validation
// failure aborts the whole batch before commit. Blast-radius attachment and
// observer notification run per event after the commit.
func (s *Service) BatchCreate(ctx context.Context, events []*models.ChangeEvent) ([]*models.ChangeEvent, error) {
	if len(events) == 0 {
		return []*models.ChangeEvent{}, nil
	}

	stored := make([]*models.ChangeEvent, 0, len(events))
	err := s.store.Transaction(ctx, func(tx *store.Tx) error {
		for _, event := range events {
			if event.IdempotencyKey != "" {
				existing, err := tx.GetByIdempotencyKey(ctx, event.IdempotencyKey)
				if err != nil {
					return err
				}
				if existing != nil {
					stored = append(stored, existing)
					continue
				}
			}
			inserted, err := tx.Insert(ctx, event)
			if err != nil {
				return err
			}
			stored = append(stored, inserted)
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IngestFailures.Inc()
		}
		return nil, err
	}

	// Predictions are pure graph reads, so they can run concurrently;
	// persistence and observer notification stay in batch order.
	predictions := make([]*models.BlastRadiusPrediction, len(stored))
	if s.analyzer != nil {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(4)
		for i, event := range stored {
			if event.BlastRadius != nil {
				continue
			}
			eg.Go(func() error {
				prediction, err := s.analyzer.Predict(egCtx, event.AllServices(), event.ChangeType, 0)
				if err != nil {
					s.logger.Warn("blast radius prediction failed for event %s: %v", event.ID, err)
					return nil
				}
				predictions[i] = prediction
				return nil
			})
		}
		_ = eg.Wait()
	}

	for i, event := range stored {
		if predictions[i] != nil {
			updated, err := s.store.Update(ctx, event.ID, &models.EventUpdate{BlastRadius: predictions[i]})
			if err != nil {
				s.logger.Warn("failed to persist blast radius for event %s: %v", event.ID, err)
			} else {
				stored[i] = updated
			}
		}
		if s.metrics != nil {
			s.metrics.EventsIngested.WithLabelValues(string(event.ChangeType), string(event.Source)).Inc()
		}
		s.notifyObservers(ctx, stored[i])
	}
	return stored, nil
}

// attachBlastRadius computes and persists the event's blast radius when a
// graph is available. Failures are logged, never fatal to the ingest.
func (s *Service) attachBlastRadius(ctx context.Context, event *models.ChangeEvent) *models.ChangeEvent {
	if s.analyzer == nil || event.BlastRadius != nil {
		return event
	}
	prediction, err := s.analyzer.Predict(ctx, event.AllServices(), event.ChangeType, 0)
	if err != nil {
		s.logger.Warn("blast radius attachment failed for event %s: %v", event.ID, err)
		return event
	}
	updated, err := s.store.Update(ctx, event.ID, &models.EventUpdate{BlastRadius: prediction})
	if err != nil {
		s.logger.Warn("failed to persist blast radius for event %s: %v", event.ID, err)
		return event
	}
	return updated
}

// GetEvent returns a stored event by id
func (s *Service) GetEvent(ctx context.Context, id string) (*models.ChangeEvent, error) {
	return s.store.Get(ctx, id)
}

// UpdateEvent applies a partial update to a stored event
func (s *Service) UpdateEvent(ctx context.Context, id string, update *models.EventUpdate) (*models.ChangeEvent, error) {
	return s.store.Update(ctx, id, update)
}

// DeleteEvent removes a stored event
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// QueryEvents returns events matching the filter
func (s *Service) QueryEvents(ctx context.Context, opts models.QueryOptions) ([]*models.ChangeEvent, error) {
	return s.store.Query(ctx, opts)
}

// SearchEvents runs a full-text search over summaries and service names
func (s *Service) SearchEvents(ctx context.Context, q string, limit int) ([]*models.ChangeEvent, error) {
	return s.store.Search(ctx, q, limit)
}

// Velocity returns the change velocity trend for a service, oldest first.
// periods <= 1 yields a single window.
func (s *Service) Velocity(ctx context.Context, service string, windowMinutes, periods int) ([]*models.VelocityMetric, error) {
	if service == "" {
		return nil, models.NewValidationError("velocity service must not be empty")
	}
	if windowMinutes <= 0 {
		return nil, models.NewValidationError("velocity windowMinutes must be positive")
	}
	if periods <= 1 {
		metric, err := s.store.GetVelocity(ctx, service, windowMinutes)
		if err != nil {
			return nil, err
		}
		return []*models.VelocityMetric{metric}, nil
	}
	return s.store.GetVelocityTrend(ctx, service, windowMinutes, periods)
}

// PruneEvents deletes events older than the given number of days
func (s *Service) PruneEvents(ctx context.Context, days int) (int, error) {
	return s.store.PruneOlderThan(ctx, days)
}

// HealthStatus is the health() payload
type HealthStatus struct {
	Status     string             `json:"status"`
	StoreStats *models.StoreStats `json:"storeStats,omitempty"`
	GraphStats *graph.Stats       `json:"graphStats,omitempty"`
}

// Health reports store and graph statistics. A failing store degrades the
// status instead of erroring; health is for probes.
func (s *Service) Health(ctx context.Context) *HealthStatus {
	health := &HealthStatus{Status: "ok"}
	storeStats, err := s.store.GetStats(ctx)
	if err != nil {
		s.logger.Warn("health: store stats unavailable: %v", err)
		health.Status = "degraded"
	} else {
		health.StoreStats = storeStats
	}
	if s.graph != nil {
		stats := s.graph.GetStats()
		health.GraphStats = &stats
	}
	return health
}
