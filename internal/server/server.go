// Package server is the composition root of the HTTP service: it opens the
// database, builds the engine and the services, and maps routes to handlers.
//
// DEPENDENCY CHAIN:
//
//	sqlite.DB ─┐
//	storage ───┼→ FragmentService ─→ FragmentHandler
//	engine ────┴→ RenderService ───→ ExecuteHandler
//
// Handlers see services, services see repository interfaces, and nothing
// below the server knows about HTTP routing.
package server

import (
	"context"
	"errors"
	"fmt"
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

	"github.com/sakif/fragments/internal/auth"
	"github.com/sakif/fragments/internal/config"
	"github.com/sakif/fragments/internal/dispatch"
	"github.com/sakif/fragments/internal/handler"
	"github.com/sakif/fragments/internal/middleware"
	sqliteRepo "github.com/sakif/fragments/internal/repository/sqlite"
	"github.com/sakif/fragments/internal/service"
	"github.com/sakif/fragments/internal/storage"
)

// Server owns the database connection and the router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	thumbs *storage.FileStore
}

// New wires every dependency from cfg. Call Close (or Run, which closes on
// return) to release the database.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Storage.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	thumbs, err := storage.NewFileStore(cfg.Storage.ThumbnailDir, cfg.Storage.ThumbnailURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		thumbs: thumbs,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes:
//
//	GET    /healthz
//	GET    /thumbnails/*
//	GET    /api/fragments
//	POST   /api/fragments
//	GET    /api/fragments/{id}
//	DELETE /api/fragments/{id}
//	POST   /api/fragments/{id}/resonances
//	DELETE /api/fragments/{id}/resonances
//	GET    /api/fragments/{id}/whispers
//	POST   /api/fragments/{id}/whispers
//	POST   /api/execute
//	POST   /api/classify
//	GET    /api/executors
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	engine := dispatch.NewEngine(s.cfg, s.logger)
	renderer := service.NewRenderService(engine, service.RenderConfig{
		DefaultWidth:  s.cfg.Engine.ThumbnailWidth,
		DefaultHeight: s.cfg.Engine.ThumbnailHeight,
		FrameInterval: s.cfg.Engine.FrameInterval,
		MaxConcurrent: s.cfg.Server.MaxConcurrentRenders,
	}, s.logger)
	fragments := service.NewFragmentService(service.FragmentDeps{
		Fragments:  s.db,
		Resonances: s.db,
		Whispers:   s.db,
		Hasher:     auth.NewHasher(auth.DefaultCost),
		Renderer:   renderer,
		Thumbnails: s.thumbs,
		Thumbnail: service.ThumbnailSpec{
			Width:  s.cfg.Engine.ThumbnailWidth,
			Height: s.cfg.Engine.ThumbnailHeight,
			Settle: s.cfg.Engine.ThumbnailSettle,
		},
	}, s.logger)

	fragmentHandler := handler.NewFragmentHandler(fragments, s.logger)
	executeHandler := handler.NewExecuteHandler(renderer, engine, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	prefix := "/" + strings.Trim(s.cfg.Storage.ThumbnailURL, "/") + "/"
	s.router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.thumbs.Dir()))))

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/fragments", func(r chi.Router) {
			r.Get("/", fragmentHandler.HandleList)
			r.Post("/", fragmentHandler.HandleCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", fragmentHandler.HandleGet)
				r.Delete("/", fragmentHandler.HandleDelete)
				r.Post("/resonances", fragmentHandler.HandleResonate)
				r.Delete("/resonances", fragmentHandler.HandleUnresonate)
				r.Get("/whispers", fragmentHandler.HandleListWhispers)
				r.Post("/whispers", fragmentHandler.HandleWhisper)
			})
		})
		r.Post("/execute", executeHandler.HandleExecute)
		r.Post("/classify", executeHandler.HandleClassify)
		r.Get("/executors", executeHandler.HandleExecutors)
	})
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done. In-flight requests get the configured
// shutdown timeout to finish; the database is closed on return.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Executions may run up to the longest executor timeout plus settle.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Server.Port)),
			slog.String("database", s.cfg.Storage.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
