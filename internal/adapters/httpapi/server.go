// Package httpapi is the JSON control surface of the dispatch daemon:
// planning, route tracking, events, simulation control and the traffic
// passthrough.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/openfleet/lastmile/internal/adapters/metrics"
	"github.com/openfleet/lastmile/internal/application/common"
	"github.com/openfleet/lastmile/internal/application/planning"
	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
	"github.com/openfleet/lastmile/internal/infrastructure/config"
)

// Reoptimizer triggers a manual re-optimization of one route.
type Reoptimizer interface {
	TriggerManual(ctx context.Context, routeID string) error
}

// SimulatorControl is the C6 control surface exposed over HTTP.
type SimulatorControl interface {
	Start(ctx context.Context)
	Stop()
	ForceEvent(ctx context.Context, kind event.Kind, overrides map[string]interface{}) event.Event
	UpdateParams(params simulation.Params)
	Conditions() simulation.Conditions
}

// Deps wires the server handlers. Simulator, Geodata, HTTPMetrics and Clock
// are optional.
type Deps struct {
	Planner     *planning.Service
	ETA         *planning.ETAService
	Routes      routing.Repository
	Orders      dispatch.OrderRepository
	Events      event.Repository
	Bus         event.Publisher
	Reoptimizer Reoptimizer
	Simulator   SimulatorControl
	Geodata     routing.GeodataProvider
	HTTPMetrics *metrics.HTTPMetricsCollector
	// WS, when set, is mounted under /ws.
	WS     http.Handler
	Clock  shared.Clock
	Logger common.Logger
}

// Server owns the chi router and its dependencies.
type Server struct {
	cfg      config.ServerConfig
	deps     Deps
	validate *validator.Validate
	limiter  *rate.Limiter
}

// NewServer creates the HTTP server facade.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = shared.NewRealClock()
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst),
	}
}

// Router builds the route tree with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggerMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	r.Use(s.rateLimitMiddleware)
	if s.deps.HTTPMetrics != nil {
		r.Use(s.deps.HTTPMetrics.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	if metrics.IsEnabled() {
		r.Method("GET", "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/routes", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/", s.handleListRoutes)
		r.Get("/{id}", s.handleGetRoute)
		r.Put("/{id}/status", s.handleRouteStatus)
		r.Post("/{id}/reoptimize", s.handleReoptimize)
		r.Get("/{id}/eta", s.handleRouteETA)
	})

	r.Put("/orders/{id}/time-window", s.handleOrderTimeWindow)
	r.Get("/events", s.handleListEvents)

	r.Route("/simulation", func(r chi.Router) {
		r.Post("/start", s.handleSimulationStart)
		r.Post("/stop", s.handleSimulationStop)
		r.Post("/force-event", s.handleSimulationForceEvent)
		r.Post("/parameters", s.handleSimulationParameters)
		r.Get("/conditions", s.handleSimulationConditions)
	})

	r.Get("/traffic/route-traffic", s.handleRouteTraffic)

	if s.deps.WS != nil {
		r.Mount("/ws", s.deps.WS)
	}

	return r
}

// loggerMiddleware carries the structured logger into handler contexts.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Logger != nil {
			r = r.WithContext(common.WithLogger(r.Context(), s.deps.Logger))
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware sheds load above the configured request rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondJSON(w, http.StatusTooManyRequests, errorBody{
				ErrorKind: string(shared.KindQuotaExceeded),
				Message:   "request rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
