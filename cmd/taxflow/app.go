package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	app "github.com/levyline/taxflow"
	"github.com/levyline/taxflow/internal/client"
	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/internal/events"
	"github.com/levyline/taxflow/internal/functions"
	"github.com/levyline/taxflow/internal/script"
	"github.com/levyline/taxflow/internal/server"
	"github.com/levyline/taxflow/internal/store"
	"github.com/levyline/taxflow/internal/tracker"
	"github.com/levyline/taxflow/pkg/log"
)

// taxflow holds the components of a running engine process
type taxflow struct {
	cfg        *config.Config
	backend    store.Backend
	archive    *store.Archive
	tracker    *tracker.Tracker
	hub        *events.Hub
	registry   *prometheus.Registry
	builder    *functions.Builder
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
}

var (
	ErrOpenStore       = errors.New("failed to open store")
	ErrOpenArchive     = errors.New("failed to open archive")
	ErrLoadDefinitions = errors.New("failed to load definitions")
	ErrBuildFunction   = errors.New("failed to build function")
)

func newTaxflow(cfg *config.Config) *taxflow {
	return &taxflow{cfg: cfg}
}

func (s *taxflow) setupLogging(w io.Writer) {
	level := log.ParseLevel(s.cfg.LogLevel)
	env := os.Getenv("ENV")
	logger := log.NewWithWriter(w, app.Name, env, app.Version, level)
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		slog.String("log_level", s.cfg.LogLevel),
		slog.String("store_type", s.cfg.Store.Type),
		slog.String("redis_addr", s.cfg.Store.Addr),
		slog.Int("redis_db", s.cfg.Store.DB),
		slog.String("definitions_dir", s.cfg.DefinitionsDir),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *taxflow) initialize(ctx context.Context) error {
	if err := s.initializeStores(ctx); err != nil {
		return err
	}
	if err := s.initializeEngine(); err != nil {
		s.close()
		return err
	}
	if err := s.loadDefinitions(); err != nil {
		s.close()
		return err
	}
	return nil
}

func (s *taxflow) initializeStores(ctx context.Context) error {
	var err error
	s.backend, err = store.Open(ctx, &s.cfg.Store)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenStore, err)
	}

	opts := []tracker.Option{}
	if s.cfg.ArchiveBucketURL != "" {
		s.archive, err = store.OpenArchive(
			ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix,
		)
		if err != nil {
			_ = s.backend.Close()
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
		opts = append(opts, tracker.WithArchive(s.archive))
	}

	s.tracker = tracker.New(s.backend, s.cfg.TrackerCacheSize, opts...)
	return nil
}

func (s *taxflow) initializeEngine() error {
	s.hub = events.NewHub()
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := engine.New(s.cfg, engine.Dependencies{
		Tracker:     s.tracker,
		Definitions: s.backend,
		Events:      s.hub,
		Metrics:     engine.NewMetrics(s.registry),
	})
	if err != nil {
		return err
	}
	s.engine = eng

	s.builder = functions.NewBuilder(
		script.NewLuaEnv(),
		script.NewAleEnv(),
		client.NewHTTPClient(s.cfg.StepTimeoutDuration()),
	)

	var props functions.PropertyStore
	if s.cfg.PropertyDataFile != "" {
		fixtures, err := functions.LoadPropertyFixtures(s.cfg.PropertyDataFile)
		if err != nil {
			return err
		}
		props = fixtures
	}
	functions.RegisterBuiltins(s.engine, props)
	return nil
}

func (s *taxflow) loadDefinitions() error {
	if s.cfg.DefinitionsDir == "" {
		return nil
	}

	defs, err := store.LoadDefinitionsDir(s.cfg.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadDefinitions, err)
	}

	for _, def := range defs.Functions {
		fn, err := s.builder.Build(def)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBuildFunction, err)
		}
		s.engine.RegisterFunction(def.Name, fn)
	}

	register := s.engine.RegisterWorkflow
	if s.cfg.ReplaceWorkflows {
		register = s.engine.ReplaceWorkflow
	}
	for _, def := range defs.Workflows {
		if err := register(def); err != nil {
			return fmt.Errorf("%w: %w", ErrLoadDefinitions, err)
		}
	}

	slog.Info("Definitions loaded",
		slog.String("dir", s.cfg.DefinitionsDir),
		slog.Int("functions", len(defs.Functions)),
		slog.Int("workflows", len(defs.Workflows)))
	return nil
}

func (s *taxflow) startServer() {
	s.apiServer = server.NewServer(s.engine, s.hub, s.builder, s.registry)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: s.apiServer.SetupRoutes(),
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *taxflow) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Shutdown failed", log.Error(err))
		}
	}
	if s.apiServer != nil {
		s.apiServer.CloseWebSockets()
	}
	s.close()

	slog.Info("Server exited")
}

func (s *taxflow) close() {
	if s.engine != nil {
		if err := s.engine.Stop(); err != nil {
			slog.Error("Engine shutdown failed", log.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.archive != nil {
		_ = s.archive.Close()
	}
	if s.backend != nil {
		_ = s.backend.Close()
	}
}
