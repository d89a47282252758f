package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/internal/store"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Store
		backend, err := store.Open(ctx, &cfg)
		require.NoError(t, err)
		defer func() { _ = backend.Close() }()
		assert.IsType(t, &store.Memory{}, backend)
	})

	t.Run("redis", func(t *testing.T) {
		server := miniredis.RunT(t)
		cfg := config.NewDefaultConfig().Store
		cfg.Type = config.StoreTypeRedis
		cfg.Addr = server.Addr()

		backend, err := store.Open(ctx, &cfg)
		require.NoError(t, err)
		defer func() { _ = backend.Close() }()
		assert.IsType(t, &store.Redis{}, backend)
		require.NoError(t, backend.CreateExecution(ctx, newExecution("ex-1")))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		server := miniredis.RunT(t)
		cfg := config.NewDefaultConfig().Store
		cfg.Type = config.StoreTypeRedis
		cfg.Addr = server.Addr()
		server.Close()

		_, err := store.Open(ctx, &cfg)
		assert.ErrorIs(t, err, store.ErrConnectRedis)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Store
		cfg.Type = "etcd"
		_, err := store.Open(ctx, &cfg)
		assert.ErrorIs(t, err, config.ErrInvalidStoreType)
	})
}
