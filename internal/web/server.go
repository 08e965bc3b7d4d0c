// Package web serves the schedule API and the status page.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/schedule"
	"github.com/sweeney/grow-controller/internal/status"
)

// RuleStore is the subset of store.Store the API needs.
type RuleStore interface {
	List() []schedule.Rule
	Get(id string) (schedule.Rule, error)
	Create(ctx context.Context, r schedule.Rule) (schedule.Rule, error)
	Update(ctx context.Context, id string, fn func(schedule.Rule) (schedule.Rule, error)) (schedule.Rule, error)
	Delete(ctx context.Context, id string) error
	Overrides() schedule.Overrides
	SetOverrides(ctx context.Context, fn func(schedule.Overrides) schedule.Overrides) (schedule.Overrides, error)
}

// Kicker requests an immediate evaluation after a mutation.
type Kicker interface {
	Kick()
}

// HistorySource returns recent actuator commands.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config wires the server to the rest of the daemon.
type Config struct {
	Addr        string
	CORSOrigins []string
	Store       RuleStore
	Tracker     *status.Tracker
	// Kicker may be nil.
	Kicker Kicker
	// History may be nil, in which case /api/history reports 404.
	History HistorySource
	// Now stamps manual watering runs at full precision. Defaults to
	// time.Now.
	Now func() time.Time
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	cfg        Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleJSON)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.listRules)
			r.Post("/", s.createRule)
			r.Get("/overrides", s.getOverrides)
			r.Put("/overrides", s.putOverrides)
			r.Get("/{id}", s.getRule)
			r.Put("/{id}", s.updateRule)
			r.Delete("/{id}", s.deleteRule)
		})

		r.Post("/pump/water", s.startWatering)
		r.Delete("/pump/water", s.stopWatering)
		r.Get("/history", s.listHistory)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.cfg.Store.List()); err != nil {
		log.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) kick() {
	if s.cfg.Kicker != nil {
		s.cfg.Kicker.Kick()
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
