package api

import (
	"io"
	"net/http"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
)

// maxGraphImportBytes caps import payloads at 8 MiB
const maxGraphImportBytes = 8 << 20

func (s *Server) handleGraphImport(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxGraphImportBytes+1))
	if err != nil {
		writeError(w, models.NewValidationError("failed to read import payload").WithCause(err))
		return
	}
	if len(payload) > maxGraphImportBytes {
		writeError(w, models.NewValidationError("import payload exceeds %d bytes", maxGraphImportBytes))
		return
	}

	result, err := s.service.GraphImport(r.Context(), payload, r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.service.ListServices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"count":    len(services),
	})
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := s.service.Dependencies(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	g := s.service.Graph()
	if g == nil {
		writeError(w, models.NewUnavailableError("no service graph configured"))
		return
	}
	writeJSON(w, http.StatusOK, g.Export())
}
