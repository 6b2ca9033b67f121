package api

import (
	"net/http"
	"strconv"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
	"github.com/Runbook-Agent/change-intelligence/internal/service"
)

// correlateRequest is the wire shape of a correlate call. Timestamps accept
// the same formats as query parameters.
type correlateRequest struct {
	AffectedServices    []string `json:"affectedServices"`
	IncidentTime        string   `json:"incidentTime,omitempty"`
	WindowMinutes       int      `json:"windowMinutes,omitempty"`
	MaxResults          int      `json:"maxResults,omitempty"`
	MinScore            float64  `json:"minScore,omitempty"`
	IncidentEnvironment string   `json:"incidentEnvironment,omitempty"`
	IncludeChangeSets   bool     `json:"includeChangeSets,omitempty"`
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	var req correlateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, models.NewValidationError("invalid correlate payload").WithCause(err))
		return
	}
	incidentTime, err := ParseOptionalTimestamp(req.IncidentTime, "incidentTime")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Correlate(r.Context(), service.CorrelateOptions{
		AffectedServices:    req.AffectedServices,
		IncidentTime:        incidentTime,
		WindowMinutes:       req.WindowMinutes,
		MaxResults:          req.MaxResults,
		MinScore:            req.MinScore,
		IncidentEnvironment: req.IncidentEnvironment,
		IncludeChangeSets:   req.IncludeChangeSets,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type blastRadiusRequest struct {
	Services   []string `json:"services"`
	ChangeType string   `json:"changeType,omitempty"`
	MaxDepth   int      `json:"maxDepth,omitempty"`
}

func (s *Server) handleBlastRadius(w http.ResponseWriter, r *http.Request) {
	var req blastRadiusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, models.NewValidationError("invalid blast radius payload").WithCause(err))
		return
	}

	prediction, err := s.service.BlastRadius(r.Context(), req.Services,
		models.ChangeType(req.ChangeType), req.MaxDepth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handleVelocity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	svc := q.Get("service")
	if svc == "" {
		writeError(w, models.NewValidationError("velocity service is required"))
		return
	}
	windowMinutes := 60
	if raw := q.Get("windowMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, models.NewValidationError("windowMinutes must be a positive integer"))
			return
		}
		windowMinutes = n
	}
	periods := 1
	if raw := q.Get("periods"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, models.NewValidationError("periods must be a positive integer"))
			return
		}
		periods = n
	}

	metrics, err := s.service.Velocity(r.Context(), svc, windowMinutes, periods)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": svc,
		"periods": metrics,
	})
}

type triageRequest struct {
	IncidentTime        string   `json:"incidentTime,omitempty"`
	IncidentEnvironment string   `json:"incidentEnvironment,omitempty"`
	WindowMinutes       int      `json:"windowMinutes,omitempty"`
	SuspectedServices   []string `json:"suspectedServices,omitempty"`
	SymptomTags         []string `json:"symptomTags,omitempty"`
	MaxChangeSets       int      `json:"maxChangeSets,omitempty"`
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, models.NewValidationError("invalid triage payload").WithCause(err))
		return
	}
	incidentTime, err := ParseOptionalTimestamp(req.IncidentTime, "incidentTime")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Triage(r.Context(), service.TriageOptions{
		IncidentTime:        incidentTime,
		IncidentEnvironment: req.IncidentEnvironment,
		WindowMinutes:       req.WindowMinutes,
		SuspectedServices:   req.SuspectedServices,
		SymptomTags:         req.SymptomTags,
		MaxChangeSets:       req.MaxChangeSets,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
