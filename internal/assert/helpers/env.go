package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"gocloud.dev/blob/memblob"

	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/internal/events"
	"github.com/levyline/taxflow/internal/store"
	"github.com/levyline/taxflow/internal/tracker"
	"github.com/levyline/taxflow/pkg/api"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine   *engine.Engine
	Redis    *miniredis.Miniredis
	Store    *store.Redis
	Archive  *store.Archive
	Tracker  *tracker.Tracker
	Config   *config.Config
	EventHub *events.Hub
	Registry *prometheus.Registry
	Cleanup  func()
}

const testExecutionTTL = time.Hour

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.StepTimeout = 5 * api.Second
	cfg.WorkflowTimeout = 30 * api.Second
	cfg.TrackerCacheSize = 100
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// NewTestEngine creates a fully configured test engine environment backed by
// an in-memory Redis server and an in-memory archive bucket
func NewTestEngine(t *testing.T) *TestEngineEnv {
	t.Helper()
	return NewTestEngineWithConfig(t, NewTestConfig())
}

// NewTestEngineWithConfig creates a test engine environment using cfg
func NewTestEngineWithConfig(
	t *testing.T, cfg *config.Config,
) *TestEngineEnv {
	t.Helper()

	server, err := miniredis.Run()
	assert.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	st := store.NewRedis(client, "test", testExecutionTTL)
	archive := store.NewArchive(memblob.OpenBucket(nil), "executions/")

	trk := tracker.New(st, cfg.TrackerCacheSize, tracker.WithArchive(archive))
	hub := events.NewHub()
	reg := prometheus.NewRegistry()

	eng, err := engine.New(cfg, engine.Dependencies{
		Tracker:     trk,
		Definitions: st,
		Events:      hub,
		Metrics:     engine.NewMetrics(reg),
	})
	assert.NoError(t, err)

	env := &TestEngineEnv{
		Engine:   eng,
		Redis:    server,
		Store:    st,
		Archive:  archive,
		Tracker:  trk,
		Config:   cfg,
		EventHub: hub,
		Registry: reg,
	}
	env.Cleanup = func() {
		_ = eng.Stop()
		hub.Close()
		_ = archive.Close()
		_ = st.Close()
		server.Close()
	}
	return env
}

// NewEngineInstance creates a second engine sharing the same stores, as a
// process restart would
func (e *TestEngineEnv) NewEngineInstance(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(e.Config, engine.Dependencies{
		Tracker:     tracker.New(e.Store, e.Config.TrackerCacheSize),
		Definitions: e.Store,
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = eng.Stop() })
	return eng
}

// WaitForStatus polls until the execution reaches a terminal status
func (e *TestEngineEnv) WaitForStatus(
	t *testing.T, id api.ExecutionID, timeout time.Duration,
) *api.Execution {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ex, err := e.Engine.GetExecution(context.Background(), id)
		if err == nil && ex.IsTerminal() {
			return ex
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for execution %s", id)
	return nil
}
