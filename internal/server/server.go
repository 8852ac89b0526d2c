// Package server is the composition root: it opens the database, builds
// the services and the chi router, runs the reaper schedule and handles
// graceful shutdown.
//
//	config → sqlstore.DB ─┬→ Registration/Activation/Auth/Profile services → handlers → chi
//	       → redis | mem ─┘                 ↑
//	       → smtp  | log ───────────────────┘
//	                        Reaper → scheduler.Runner (background)
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/config"
	"github.com/sakif/accounts/internal/handler"
	"github.com/sakif/accounts/internal/middleware"
	"github.com/sakif/accounts/internal/notify"
	"github.com/sakif/accounts/internal/ratelimit"
	"github.com/sakif/accounts/internal/repository/sqlstore"
	"github.com/sakif/accounts/internal/scheduler"
	"github.com/sakif/accounts/internal/service"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server owns the HTTP router and every long-lived resource behind it.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger

	db     *sqlstore.DB
	rdb    *redis.Client // nil when rate counters are in-process
	reaper *service.Reaper
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	dispatcher notify.Dispatcher
	counter    ratelimit.Counter
}

// WithDispatcher replaces the SMTP/log dispatcher.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithCounter replaces the Redis/in-process rate counter.
func WithCounter(c ratelimit.Counter) Option {
	return func(o *options) { o.counter = c }
}

// New opens and migrates the database, connects the optional Redis and
// SMTP backends and wires every route. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if o.counter == nil {
		o.counter = s.newCounter(ctx)
	}
	if o.dispatcher == nil {
		o.dispatcher = newDispatcher(cfg.SMTP, logger)
	}

	if err := s.setupRoutes(o); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// OpenDatabase opens the configured store and applies migrations. For a
// SQLite file the parent directory is created first.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlstore.DB, error) {
	if cfg.Driver == sqlstore.DriverSQLite && !strings.HasPrefix(cfg.DSN, ":memory:") && !strings.HasPrefix(cfg.DSN, "file:") {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (s *Server) newCounter(ctx context.Context) ratelimit.Counter {
	if s.cfg.Redis.Addr == "" {
		s.logger.Info("rate limiting with in-process counters")
		return ratelimit.NewMemoryCounter()
	}

	s.rdb = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		// Not fatal: the limiter lets requests through while Redis is down.
		s.logger.Warn("redis unreachable at startup",
			slog.String("addr", s.cfg.Redis.Addr),
			slog.String("error", err.Error()),
		)
	}
	return ratelimit.NewRedisCounter(s.rdb, "ratelimit:")
}

func newDispatcher(cfg config.SMTPConfig, logger *slog.Logger) notify.Dispatcher {
	if cfg.Host == "" {
		return notify.NewLogDispatcher(logger)
	}
	return notify.NewEmailDispatcher(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
}

// setupRoutes builds the services and mounts them.
//
//	POST /api/users/register
//	GET  /api/users/activate/{token}
//	POST /api/users/activation/resend
//	POST /api/users/login
//	POST /api/users/token/refresh
//	GET  /api/users/me           (bearer)
//	GET  /api/users/profile      (bearer)
//	PUT  /api/users/profile      (bearer)
//	GET  /healthz
//	GET  /metrics
func (s *Server) setupRoutes(o options) error {
	cfg := s.cfg

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)
	policy := auth.NewPasswordPolicy(cfg.Password.MinLength)
	limiter := ratelimit.NewLimiter(o.counter, "register",
		cfg.Registration.RateLimit, cfg.Registration.RateWindow, s.logger)
	links := notify.LinkBuilder{Protocol: cfg.Site.Protocol, Domain: cfg.Site.Domain}

	// === Services ===
	registration := service.NewRegistrationService(s.db, passwords, policy, limiter,
		o.dispatcher, links, cfg.Registration.PendingTTL, s.logger)
	activation := service.NewActivationService(s.db, s.logger)
	authService := service.NewAuthService(s.db, passwords, tokens, s.logger)
	profiles := service.NewProfileService(s.db, s.logger)
	s.reaper = service.NewReaper(s.db, cfg.Reaper.InactiveAfter, cfg.Reaper.BatchSize, s.logger)

	registrationHandler := handler.NewRegistrationHandler(registration, activation, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	profileHandler := handler.NewProfileHandler(profiles, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Global Middleware ===
	// Order: request id first so every later middleware can log it,
	// RealIP before anything reads RemoteAddr.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(requestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// === Operational Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === API Routes ===
	s.router.Route("/api/users", func(r chi.Router) {
		r.Post("/register", registrationHandler.HandleRegister)
		r.Get("/activate/{token}", registrationHandler.HandleActivate)
		r.Post("/activation/resend", registrationHandler.HandleResend)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/token/refresh", authHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Get("/profile", profileHandler.HandleGet)
			r.Put("/profile", profileHandler.HandleUpdate)
		})
	})

	return nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP and runs the reaper until SIGINT/SIGTERM, then shuts
// down gracefully and releases all resources.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	runner := scheduler.NewRunner("reaper", s.cfg.Reaper.Interval, 0, s.reaper.RunOnce, s.logger)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		runner.Run(bgCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("database", s.cfg.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		} else {
			s.logger.Info("server stopped gracefully")
		}
	}

	stopBackground()
	<-reaperDone
	return runErr
}

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
		s.rdb = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}
