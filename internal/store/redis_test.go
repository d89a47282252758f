package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/internal/store"
	"github.com/levyline/taxflow/pkg/api"
)

func newRedis(t *testing.T) (*store.Redis, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	st := store.NewRedis(client, "test", time.Hour)
	t.Cleanup(func() {
		_ = st.Close()
		server.Close()
	})
	return st, server
}

func TestRedisExecutions(t *testing.T) {
	ctx := context.Background()
	st, server := newRedis(t)

	ex := newExecution("ex-1")
	require.NoError(t, st.CreateExecution(ctx, ex))
	assert.ErrorIs(t, st.CreateExecution(ctx, ex), store.ErrExecutionExists)
	assert.True(t, server.Exists("test:execution:ex-1"))

	ex.Apply(api.Complete(api.Args{"tax_due": 6127.5}, ex.StartedAt))
	require.NoError(t, st.UpdateExecution(ctx, ex))

	got, err := st.GetExecution(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, got.Status)
	assert.Equal(t, 6127.5, got.Output["tax_due"])
	assert.Equal(t, "p-100", got.Input["property_id"])

	_, err = st.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, api.ErrExecutionNotFound)
	err = st.UpdateExecution(ctx, newExecution("missing"))
	assert.ErrorIs(t, err, api.ErrExecutionNotFound)
}

func TestRedisExecutionsExpire(t *testing.T) {
	ctx := context.Background()
	st, server := newRedis(t)

	require.NoError(t, st.CreateExecution(ctx, newExecution("ex-1")))
	assert.Equal(t, time.Hour, server.TTL("test:execution:ex-1"))

	server.FastForward(2 * time.Hour)
	_, err := st.GetExecution(ctx, "ex-1")
	assert.ErrorIs(t, err, api.ErrExecutionNotFound)
}

func TestRedisDefinitions(t *testing.T) {
	ctx := context.Background()
	st, server := newRedis(t)

	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, st.Create(ctx, helpers.NewSimpleWorkflow("b", "f")))
	require.NoError(t, st.Create(ctx, helpers.NewSimpleWorkflow("a", "f")))
	err = st.Create(ctx, helpers.NewSimpleWorkflow("a", "g"))
	assert.ErrorIs(t, err, api.ErrWorkflowExists)

	def, err := st.GetByName(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, api.FunctionName("f"), def.Steps[0].Function)

	_, err = st.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, api.ErrWorkflowNotFound)

	require.NoError(t, server.Set("test:workflow:b", "{corrupt"))
	list, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, api.WorkflowName("a"), list[0].Name)
}
