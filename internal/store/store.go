package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/pkg/api"
)

type (
	// ExecutionStore is the durable counterpart of the execution tracker
	ExecutionStore interface {
		CreateExecution(ctx context.Context, ex *api.Execution) error
		UpdateExecution(ctx context.Context, ex *api.Execution) error
		GetExecution(
			ctx context.Context, id api.ExecutionID,
		) (*api.Execution, error)
	}

	// DefinitionStore persists workflow definitions by name
	DefinitionStore interface {
		GetByName(
			ctx context.Context, name api.WorkflowName,
		) (*api.WorkflowDefinition, error)
		Create(ctx context.Context, def *api.WorkflowDefinition) error
		List(ctx context.Context) ([]*api.WorkflowDefinition, error)
	}

	// Backend is a store that serves both executions and definitions
	Backend interface {
		ExecutionStore
		DefinitionStore
		io.Closer
	}
)

var (
	ErrExecutionExists = errors.New("execution already exists")
	ErrConnectRedis    = errors.New("failed to connect to redis")
)

// Open creates the backend selected by the store configuration
func Open(ctx context.Context, cfg *config.StoreConfig) (Backend, error) {
	switch cfg.Type {
	case config.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectRedis, err)
		}
		return NewRedis(client, cfg.Prefix, cfg.ExecutionTTLDuration()), nil
	case config.StoreTypeMemory:
		return NewMemory(cfg.MemorySize), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidStoreType, cfg.Type)
	}
}
