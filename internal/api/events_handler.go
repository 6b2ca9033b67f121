package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

const maxBatchSize = 500

// handleCreateEvent ingests a single change event. A duplicate idempotency
// key returns the already-stored event with 200; a fresh insert returns 201.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.ChangeEvent
	if err := decodeJSON(r, &event); err != nil {
		writeError(w, models.NewValidationError("invalid event payload").WithCause(err))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	stored, created, err := s.service.CreateEvent(r.Context(), &event, idempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, stored)
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Events []*models.ChangeEvent `json:"events"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, models.NewValidationError("invalid batch payload").WithCause(err))
		return
	}
	if len(payload.Events) == 0 {
		writeError(w, models.NewValidationError("batch must contain at least one event"))
		return
	}
	if len(payload.Events) > maxBatchSize {
		writeError(w, models.NewValidationError("batch exceeds %d events", maxBatchSize))
		return
	}

	stored, err := s.service.BatchCreate(r.Context(), payload.Events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"events": stored,
		"count":  len(stored),
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.service.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var update models.EventUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, models.NewValidationError("invalid update payload").WithCause(err))
		return
	}
	event, err := s.service.UpdateEvent(r.Context(), r.PathValue("id"), &update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueryEvents maps query parameters onto the store's filter options.
// Repeated values use comma-separated lists, e.g. ?services=api,auth.
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := models.QueryOptions{
		Services:    splitList(q.Get("services")),
		Environment: q.Get("environment"),
		Initiator:   models.Initiator(q.Get("initiator")),
		Status:      models.Status(q.Get("status")),
	}
	for _, t := range splitList(q.Get("changeTypes")) {
		opts.ChangeTypes = append(opts.ChangeTypes, models.ChangeType(t))
	}
	for _, src := range splitList(q.Get("sources")) {
		opts.Sources = append(opts.Sources, models.Source(src))
	}

	since, err := ParseOptionalTimestamp(q.Get("since"), "since")
	if err != nil {
		writeError(w, err)
		return
	}
	if !since.IsZero() {
		opts.Since = &since
	}
	until, err := ParseOptionalTimestamp(q.Get("until"), "until")
	if err != nil {
		writeError(w, err)
		return
	}
	if !until.IsZero() {
		opts.Until = &until
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, models.NewValidationError("limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}

	events, err := s.service.QueryEvents(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, models.NewValidationError("search query q is required"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, models.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := s.service.SearchEvents(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
