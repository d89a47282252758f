package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

// Redis stores executions and workflow definitions as JSON documents.
// Executions expire after the configured TTL, refreshed on every update;
// definitions do not expire
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const (
	keyExecution = "execution"
	keyWorkflow  = "workflow"
	keyWorkflows = "workflows"
)

var (
	_ ExecutionStore  = (*Redis)(nil)
	_ DefinitionStore = (*Redis)(nil)
)

// NewRedis creates a store over an established client
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) CreateExecution(ctx context.Context, ex *api.Execution) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.executionKey(ex.ID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionExists, ex.ID)
	}
	return nil
}

func (r *Redis) UpdateExecution(ctx context.Context, ex *api.Execution) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, r.executionKey(ex.ID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrExecutionNotFound, ex.ID)
	}
	return nil
}

func (r *Redis) GetExecution(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	data, err := r.client.Get(ctx, r.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", api.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var ex api.Execution
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *Redis) GetByName(
	ctx context.Context, name api.WorkflowName,
) (*api.WorkflowDefinition, error) {
	data, err := r.client.Get(ctx, r.workflowKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return decodeDefinition(data)
}

func (r *Redis) Create(
	ctx context.Context, def *api.WorkflowDefinition,
) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.workflowKey(def.Name), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrWorkflowExists, def.Name)
	}
	return r.client.SAdd(ctx, r.key(keyWorkflows), string(def.Name)).Err()
}

func (r *Redis) List(ctx context.Context) ([]*api.WorkflowDefinition, error) {
	names, err := r.client.SMembers(ctx, r.key(keyWorkflows)).Result()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []*api.WorkflowDefinition{}, nil
	}
	slices.Sort(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = r.workflowKey(api.WorkflowName(name))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*api.WorkflowDefinition, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		def, err := decodeDefinition([]byte(s))
		if err != nil {
			slog.Warn("Skipping undecodable workflow definition",
				log.WorkflowID(names[i]),
				log.Error(err))
			continue
		}
		res = append(res, def)
	}
	return res, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) executionKey(id api.ExecutionID) string {
	return r.key(keyExecution, string(id))
}

func (r *Redis) workflowKey(name api.WorkflowName) string {
	return r.key(keyWorkflow, string(name))
}

func (r *Redis) key(parts ...string) string {
	res := r.prefix
	for _, p := range parts {
		res += ":" + p
	}
	return res
}

func decodeDefinition(data []byte) (*api.WorkflowDefinition, error) {
	var def api.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
