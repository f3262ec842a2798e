// Package api serves SPM run analysis over HTTP: uploads are analysed and
// stored, and stored runs, charts and reference data can be queried.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/fsutil"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/timeutil"
)

// ANSI escape codes for the request log.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxUploadBytes caps a multipart upload. Day-long SPM logs are a few MB.
const maxUploadBytes = 32 << 20

// Server wires the analyser and a run store to HTTP handlers.
type Server struct {
	store    db.RunStore
	analyzer *analysis.Analyzer
	archive  *fsutil.Archive
	clock    timeutil.Clock
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithArchive keeps every upload in a, keyed by run id.
func WithArchive(a *fsutil.Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithClock sets the clock used for request timing and health responses.
func WithClock(c timeutil.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithCORSOrigins sets the allowed CORS origins. The default allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func NewServer(store db.RunStore, analyzer *analysis.Analyzer, opts ...Option) *Server {
	s := &Server{
		store:    store,
		analyzer: analyzer,
		clock:    timeutil.RealClock{},
		origins:  []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(clock timeutil.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := clock.Now()
			lrw := &loggingResponseWriter{w, http.StatusOK}
			next.ServeHTTP(lrw, r)
			monitoring.Logf(
				"[%s] %s %s%s%s %vms",
				statusCodeColor(lrw.statusCode), r.Method,
				colorCyan, r.RequestURI, colorReset,
				float64(clock.Since(start).Nanoseconds())/1e6,
			)
		})
	}
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.clock))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.uploadRun)
			r.Get("/", s.listRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Delete("/", s.deleteRun)
				r.Get("/points", s.getPoints)
				r.Get("/chart", s.runChart)
				r.Get("/source", s.runSource)
			})
		})
		r.Get("/corridors", s.listCorridors)
		r.Get("/trains/{train}/info", s.trainInfo)
		r.Get("/stations/{code}/braking", s.stationBraking)
	})
	return r
}
