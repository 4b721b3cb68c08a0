package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/kirillkom/estate-docs/internal/core/ports"
	"github.com/kirillkom/estate-docs/internal/observability/metrics"
)

const (
	defaultInFlightWait = 50 * time.Millisecond
	// multipartOverhead leaves room for boundaries and part headers around the file.
	multipartOverhead int64 = 1 << 20
	maxJSONBodyBytes  int64 = 1 << 20
)

type Dependencies struct {
	Ingestor ports.DocumentIngestor
	Reader   ports.DocumentReader
	Analyzer ports.TextAnalyzer
	// Files serves POST /api/v1/analyze; the route answers 503 when unset.
	Files  ports.FileAnalyzer
	Health ports.HealthChecker
	// Queue is set when jobs go through an external broker.
	Queue ports.HealthChecker
	// Metrics is optional; when set, /metrics is served and requests are counted.
	Metrics *metrics.HTTPServerMetrics
}

type Options struct {
	ServiceName        string
	MaxUploadBytes     int64
	RateLimitRPS       float64
	RateLimitBurst     int
	MaxInFlight        int
	InFlightWait       time.Duration
	CORSAllowedOrigins []string
}

type Router struct {
	deps      Dependencies
	opts      Options
	validator *requestValidator
	now       func() time.Time
}

// NewRouter fails when the embedded API description does not load, so a
// broken document stops the process at startup.
func NewRouter(deps Dependencies, opts Options) (*Router, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "estate-api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.InFlightWait <= 0 {
		opts.InFlightWait = defaultInFlightWait
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	validator, err := newRequestValidator(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi request validation: %w", err)
	}
	return &Router{
		deps:      deps,
		opts:      opts,
		validator: validator,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if rt.deps.Metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.deps.Metrics.Middleware(rt.opts.ServiceName, next)
		})
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", rt.health)
	r.Get("/openapi.yaml", serveOpenAPI)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.rejected("rate_limit"))
		})
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.InFlightWait, rt.rejected("backpressure"))
		})

		validate := rt.validator.middleware

		r.Post("/documents/upload", rt.uploadDocument)
		r.With(validate).Get("/documents", rt.listDocuments)
		r.With(validate).Get("/documents/export", rt.exportDocuments)
		r.Get("/documents/{id}", rt.getDocument)
		r.With(validate).Get("/documents/{id}/search", rt.searchDocument)
		r.Get("/analytics/summary", rt.analyticsSummary)
		r.With(limitBody(maxJSONBodyBytes), validate).Post("/api/v1/analyze-text", rt.analyzeText)
		r.Post("/api/v1/analyze", rt.analyzeDocument)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}

func (rt *Router) rejected(reason string) func() {
	if rt.deps.Metrics == nil {
		return nil
	}
	return func() { rt.deps.Metrics.RecordRejected(rt.opts.ServiceName, reason) }
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
