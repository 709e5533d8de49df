package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"storefront/internal/calendar"
	"storefront/internal/config"
	appLog "storefront/internal/log"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/profile"
	"storefront/internal/render"
)

const (
	// Manual refreshes hit the upstream calendar, so they are throttled
	// server-wide rather than per client.
	refreshEvery = 10 * time.Second
	refreshBurst = 2

	shutdownTimeout = 5 * time.Second
)

// Server serves the storefront page and its JSON endpoints.
type Server struct {
	cfg     *config.Config
	loader  *calendar.Loader
	page    profile.Page
	limiter *rate.Limiter
	router  chi.Router
	now     func() time.Time

	// Latest load cycle result. Concurrent refreshes may race; the last
	// one to finish wins.
	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	state     model.State
	view      render.View
	updatedAt time.Time
}

// calendarResponse is the JSON shape for /api/calendar.
type calendarResponse struct {
	render.View
	Title     string    `json:"title"`
	Timezone  string    `json:"timezone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// embeddedStatic holds the storefront page. It fetches the JSON endpoints
// and binds them to the DOM.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		loader:  calendar.NewLoader(cfg),
		page:    profile.Build(cfg.Profile, cfg.Calendar.Reference, cfg.Timezone),
		limiter: rate.NewLimiter(rate.Every(refreshEvery), refreshBurst),
		now:     time.Now,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/calendar", s.handleCalendar)
		r.Post("/calendar/refresh", s.handleRefresh)
		r.Get("/profile", s.handleProfile)
	})
	r.Get("/calendar.ics", s.handleICS)

	r.Handle("/*", s.staticFileServer())
	return r
}

// Refresh runs one load cycle and stores its rendered view.
func (s *Server) Refresh(ctx context.Context) render.View {
	return s.refresh(ctx).view
}

func (s *Server) refresh(ctx context.Context) *snapshot {
	state := s.loader.Load(ctx, s.now())
	snap := &snapshot{
		state:     state,
		view:      render.Render(state, s.loader.Location()),
		updatedAt: s.now(),
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	return snap
}

// current returns the latest snapshot, running a load cycle first when
// none has completed yet.
func (s *Server) current(ctx context.Context) *snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil {
		return snap
	}

	return s.refresh(ctx)
}

// StartServer serves s on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return Serve(ctx, s, ln)
}

// Serve is StartServer on an already bound listener.
func Serve(ctx context.Context, s *Server, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calendarResponse(s.current(r.Context())))
}

// handleRefresh runs a load cycle now.
//
// POST /api/calendar/refresh
//   - 200: the freshly rendered view
//   - 429: too many manual refreshes
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "refresh rate limit exceeded")
		return
	}

	appLog.Info("manual calendar refresh", "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, s.calendarResponse(s.refresh(r.Context())))
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.page)
}

// handleICS re-publishes the events of the latest snapshot. Fallback
// states yield a calendar without events.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	snap := s.current(r.Context())

	var events []model.EventRecord
	if snap.state.Kind == model.StateEvents {
		events = snap.state.Events
	}

	body := calendar.ExportICS(events, s.page.CalendarTitle, snap.updatedAt)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) calendarResponse(snap *snapshot) calendarResponse {
	return calendarResponse{
		View:      snap.view,
		Title:     s.page.CalendarTitle,
		Timezone:  s.loader.Location().String(),
		UpdatedAt: snap.updatedAt,
	}
}

// staticFileServer serves the embedded page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown /api/* paths are API misses, never HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
