package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/auth"
	"github.com/tribuna-digital/tribuna-storage/internal/metrics"
)

// RouterConfig wires the handlers and middleware into one HTTP surface.
type RouterConfig struct {
	ObjectHandler     *ObjectHandler
	DiagnosticHandler *DiagnosticHandler
	Metrics           *metrics.Metrics
	AdminTokenHash    string
	Logger            zerolog.Logger
}

// NewRouter assembles the full route tree.
//
// Layout:
//
//	GET  /health                      liveness, no auth
//	GET  /metrics                     Prometheus, no auth
//	GET  /objects/*                   private download, ACL enforced
//	GET  /public-objects/*            public download
//	POST /api/uploads                 presigned upload URL
//	POST /api/uploads/{category}      organized presigned upload URL
//	PUT  /api/uploads/finalize        attach policy, return logical path
//	GET  /api/diagnostics             admin: full reference scan
//	GET  /api/diagnostics/report      admin: aggregate health
//	POST /api/diagnostics/cleanup     admin: clear dangling references
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(auth.Identity)

	r.Get("/health", handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/objects/*", cfg.ObjectHandler.ServeObject)
	r.Get("/public-objects/*", cfg.ObjectHandler.ServePublicObject)

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", cfg.ObjectHandler.CreateUploadURL)
		r.Post("/uploads/{category}", cfg.ObjectHandler.CreateOrganizedUploadURL)
		r.Put("/uploads/finalize", cfg.ObjectHandler.FinalizeUpload)

		r.Route("/diagnostics", func(r chi.Router) {
			r.Use(auth.RequireAdminToken(cfg.AdminTokenHash, cfg.Logger))
			r.Get("/", cfg.DiagnosticHandler.Diagnose)
			r.Get("/report", cfg.DiagnosticHandler.Report)
			r.Post("/cleanup", cfg.DiagnosticHandler.Cleanup)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}` + "\n"))
}

// requestLogger emits one structured line per request. Aborted downloads
// panic with http.ErrAbortHandler and surface here as status 0; the
// download service has already logged the interruption with its cause.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
