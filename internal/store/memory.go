package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/util"
)

// Memory is a process-local store for executions and workflow definitions.
// Executions are bounded by capacity, evicting the least recently used
type Memory struct {
	executions  *util.LRUCache[api.ExecutionID, *api.Execution]
	definitions map[api.WorkflowName]*api.WorkflowDefinition
	mu          sync.RWMutex
}

var (
	_ ExecutionStore  = (*Memory)(nil)
	_ DefinitionStore = (*Memory)(nil)
)

// NewMemory creates a memory store retaining at most capacity executions
func NewMemory(capacity int) *Memory {
	return &Memory{
		executions:  util.NewLRUCache[api.ExecutionID, *api.Execution](capacity),
		definitions: map[api.WorkflowName]*api.WorkflowDefinition{},
	}
}

func (m *Memory) CreateExecution(_ context.Context, ex *api.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions.Peek(ex.ID); ok {
		return fmt.Errorf("%w: %s", ErrExecutionExists, ex.ID)
	}
	m.executions.Put(ex.ID, ex.Clone())
	return nil
}

func (m *Memory) UpdateExecution(_ context.Context, ex *api.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions.Peek(ex.ID); !ok {
		return fmt.Errorf("%w: %s", api.ErrExecutionNotFound, ex.ID)
	}
	m.executions.Put(ex.ID, ex.Clone())
	return nil
}

func (m *Memory) GetExecution(
	_ context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.executions.Peek(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrExecutionNotFound, id)
	}
	return ex.Clone(), nil
}

func (m *Memory) GetByName(
	_ context.Context, name api.WorkflowName,
) (*api.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, name)
	}
	return def.Clone(), nil
}

func (m *Memory) Create(
	_ context.Context, def *api.WorkflowDefinition,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[def.Name]; ok {
		return fmt.Errorf("%w: %s", api.ErrWorkflowExists, def.Name)
	}
	m.definitions[def.Name] = def.Clone()
	return nil
}

func (m *Memory) List(_ context.Context) ([]*api.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]*api.WorkflowDefinition, 0, len(m.definitions))
	for _, name := range slices.Sorted(maps.Keys(m.definitions)) {
		res = append(res, m.definitions[name].Clone())
	}
	return res, nil
}

func (m *Memory) Close() error {
	return nil
}
