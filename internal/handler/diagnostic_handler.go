package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/service"
)

// DiagnosticHandler exposes the reconciliation API. All routes sit behind
// the admin token middleware.
type DiagnosticHandler struct {
	diagnostics *service.DiagnosticService
	logger      zerolog.Logger
}

func NewDiagnosticHandler(diagnostics *service.DiagnosticService, logger zerolog.Logger) *DiagnosticHandler {
	return &DiagnosticHandler{
		diagnostics: diagnostics,
		logger:      logger.With().Str("component", "diagnostic_handler").Logger(),
	}
}

// Diagnose handles GET /api/diagnostics: a full scan of stored references.
func (h *DiagnosticHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	results, err := h.diagnostics.Diagnose(r.Context())
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	if results == nil {
		// An empty scan serializes as [] rather than null.
		results = []domain.DiagnosticResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// Report handles GET /api/diagnostics/report: aggregate health counters.
func (h *DiagnosticHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.diagnostics.HealthReport(r.Context())
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Cleanup handles POST /api/diagnostics/cleanup. The dry_run query
// parameter previews changes without touching any record.
func (h *DiagnosticHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.diagnostics.Cleanup(r.Context(), dryRun)
	if err != nil {
		mapServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
