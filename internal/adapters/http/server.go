// Package httpadapter exposes the workflow, document, threshold and
// inventory services over HTTP.
package httpadapter

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
)

// Header names set by the upstream authentication layer.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
)

// Services groups the ports the handlers call.
type Services struct {
	Workflow   ports.Workflow
	Progress   ports.Progress
	Documents  ports.Documents
	Thresholds ports.Thresholds
	Inventory  ports.Inventory
	Reports    ports.Reports
	Planning   ports.Planning
}

// DefaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes says
// otherwise.
const DefaultMaxBodyBytes int64 = 1 << 20

type Server struct {
	svc          Services
	gatherer     prometheus.Gatherer
	logger       *log.Logger
	maxBodyBytes int64
}

type Option func(*Server)

// WithMaxBodyBytes sets the request body limit; n <= 0 keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New builds the server. A nil gatherer serves the default registry.
func New(svc Services, gatherer prometheus.Gatherer, logger *log.Logger, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{svc: svc, gatherer: gatherer, logger: logger, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(actorFromHeaders)
		r.Use(s.limitBody)

		r.Route("/periods/{periodCode}/audits", func(r chi.Router) {
			r.Get("/", s.getPeriodAudits)
			r.Post("/", s.postPeriodAudits)
		})
		r.Route("/audits/{auditID}", func(r chi.Router) {
			r.Get("/", s.getAudit)
			r.Put("/auditor", s.putAuditor)
			r.Get("/progress", s.getProgress)
			r.Get("/history", s.getHistory)
			r.Get("/report.pdf", s.getReport)
			r.Post("/transitions", s.postTransition)
			r.Post("/transitions/force", s.postForceTransition)
			r.Post("/transitions/verify", s.postVerify)
			r.Post("/documents", s.postDocument)
			r.Post("/evaluations", s.postEvaluation)
		})
		r.Post("/sweep", s.postSweep)

		r.Post("/inventory/validate", s.postValidateRow)
		r.Post("/inventory/validate-batch", s.postValidateBatch)

		r.Route("/thresholds/{sectionType}", func(r chi.Router) {
			r.Get("/", s.getThresholds)
			r.Put("/", s.putThresholds)
			r.Post("/lock", s.lockThresholds(true))
			r.Post("/unlock", s.lockThresholds(false))
			r.Get("/history", s.getThresholdHistory)
		})
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Printf("%s %s %d %s req=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// actorFromHeaders resolves the caller's role permissions once per request.
func actorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderUserID})
			return
		}
		actor := domain.NewActor(id, r.Header.Get(HeaderUserName), domain.ParseRole(r.Header.Get(HeaderUserRole)))
		next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), actor)))
	})
}

func actorOf(r *http.Request) domain.Actor {
	a, _ := domain.ActorFrom(r.Context())
	return a
}
