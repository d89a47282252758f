package engine

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/levyline/taxflow/pkg/api"
)

type (
	// WorkflowRegistry holds validated, immutable workflow definitions
	WorkflowRegistry struct {
		entries map[api.WorkflowName]*workflowEntry
		mu      sync.RWMutex
	}

	workflowEntry struct {
		def       *api.WorkflowDefinition
		persisted bool
	}
)

// NewWorkflowRegistry creates an empty workflow registry
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{
		entries: map[api.WorkflowName]*workflowEntry{},
	}
}

// Register validates and stores a copy of def. A name that is already
// registered is rejected with ErrWorkflowExists
func (r *WorkflowRegistry) Register(def *api.WorkflowDefinition) error {
	return r.put(def, false, false)
}

// Replace validates and stores a copy of def, overwriting any definition
// registered under the same name
func (r *WorkflowRegistry) Replace(def *api.WorkflowDefinition) error {
	return r.put(def, true, false)
}

// Get returns a copy of the named definition
func (r *WorkflowRegistry) Get(
	name api.WorkflowName,
) (*api.WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.def.Clone(), true
}

// List returns copies of all definitions, sorted by name
func (r *WorkflowRegistry) List() []*api.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*api.WorkflowDefinition, 0, len(r.entries))
	for _, name := range slices.Sorted(maps.Keys(r.entries)) {
		res = append(res, r.entries[name].def.Clone())
	}
	return res
}

// Len returns the number of registered workflows
func (r *WorkflowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *WorkflowRegistry) adopt(def *api.WorkflowDefinition) error {
	err := r.put(def, false, true)
	if err != nil && !isExists(err) {
		return err
	}
	return nil
}

func (r *WorkflowRegistry) isPersisted(name api.WorkflowName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return ok && entry.persisted
}

func (r *WorkflowRegistry) markPersisted(name api.WorkflowName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[name]; ok {
		entry.persisted = true
	}
}

func (r *WorkflowRegistry) put(
	def *api.WorkflowDefinition, replace, persisted bool,
) error {
	if def == nil {
		return fmt.Errorf("%w: nil workflow", api.ErrInvalidRequest)
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[def.Name]; ok && !replace {
		return fmt.Errorf("%w: %s", api.ErrWorkflowExists, def.Name)
	}
	r.entries[def.Name] = &workflowEntry{
		def:       def.Clone(),
		persisted: persisted,
	}
	return nil
}
