// Package server exposes the contract service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"vowpact/internal/auth"
	"vowpact/internal/config"
	"vowpact/internal/logging"
	"vowpact/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// sessionPurgeInterval is how often expired sessions are swept.
const sessionPurgeInterval = time.Hour

// Server is the vowpact HTTP API.
type Server struct {
	cfg       *config.Config
	contracts *service.Service
	auth      *auth.Service
	cookie    auth.CookieConfig
	log       *zap.Logger
	router    chi.Router
}

// New builds the router. log may be nil.
func New(cfg *config.Config, contracts *service.Service, authSvc *auth.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		contracts: contracts,
		auth:      authSvc,
		cookie:    auth.CookieConfig{Name: cfg.Auth.CookieName, Secure: cfg.Auth.SecureCookie},
		log:       log,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if s.cfg.Server.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(s.cfg.Server.MaxBodyBytes))
	}
	r.Use(s.auth.Middleware(s.cookie))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.With(auth.RequireUser).Get("/me", s.handleMe)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Get("/", s.handleListContracts)
			r.Post("/", s.handleCreateContract)
			r.Post("/preview", s.handlePreview)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetContract)
				r.Put("/", s.handleUpdateContract)
				r.Delete("/", s.handleDeleteContract)
				r.Post("/generate", s.handleGenerate)
				r.Post("/sign", s.handleSign)
				r.Post("/duplicate", s.handleDuplicate)
				r.Get("/pdf", s.handleExportPDF)
				r.Get("/html", s.handleExportHTML)
				r.Get("/history", s.handleHistory)
			})
		})

		r.Route("/share/{token}", func(r chi.Router) {
			r.Get("/", s.handleShareView)
			r.Get("/pdf", s.handleSharePDF)
			r.Post("/sign", s.handleShareSign)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such route"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

// accessLog writes one zap line per request. The matched route pattern is
// logged instead of the raw path so share tokens stay out of the logs.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		logged := map[string]interface{}{
			"method":      r.Method,
			"route":       route,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.log.Warn("request", fields...)
			logging.HTTPRequest("warn", logged)
			return
		}
		s.log.Info("request", fields...)
		logging.HTTPRequest("debug", logged)
	})
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		ErrorLog:          zap.NewStdLog(s.log.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("base_url", s.cfg.Server.BaseURL))
	logging.HTTP("listening on %s", ln.Addr())

	purgeCtx, stopPurge := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.purgeSessions(purgeCtx)
	}()
	defer func() {
		stopPurge()
		wg.Wait()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", zap.Duration("timeout", s.cfg.GetShutdownTimeout()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	s.log.Info("server stopped")
	logging.HTTP("server stopped")
	return nil
}

func (s *Server) purgeSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.auth.PurgeExpired(ctx)
			if err != nil {
				s.log.Warn("purge sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Debug("purged expired sessions", zap.Int("count", n))
			}
		}
	}
}
