package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/levyline/taxflow/pkg/api"
)

type (
	// Invocable is a named unit of work the engine can dispatch. Results are
	// treated as opaque values, inspected only for output projection
	Invocable interface {
		Invoke(ctx context.Context, params api.Args) (any, error)
	}

	// Describer is implemented by functions that can describe themselves
	// in function listings
	Describer interface {
		Info() api.FunctionInfo
	}

	// FunctionHandler adapts a plain function to the Invocable interface
	FunctionHandler func(ctx context.Context, params api.Args) (any, error)

	// FunctionRegistry holds the functions available to workflows and
	// direct calls. It is safe for concurrent use
	FunctionRegistry struct {
		entries map[api.FunctionName]Invocable
		mu      sync.RWMutex
	}
)

var _ Invocable = FunctionHandler(nil)

// NewFunctionRegistry creates an empty function registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		entries: map[api.FunctionName]Invocable{},
	}
}

// Invoke calls the handler
func (h FunctionHandler) Invoke(ctx context.Context, params api.Args) (any, error) {
	return h(ctx, params)
}

// Register makes fn callable under name, replacing any prior entry
func (r *FunctionRegistry) Register(name api.FunctionName, fn Invocable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = fn
}

// RegisterFunc registers a plain function under name
func (r *FunctionRegistry) RegisterFunc(
	name api.FunctionName, fn FunctionHandler,
) {
	r.Register(name, fn)
}

// Unregister removes the named function, reporting whether it existed
func (r *FunctionRegistry) Unregister(name api.FunctionName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	return ok
}

// Lookup returns the function registered under name
func (r *FunctionRegistry) Lookup(name api.FunctionName) (Invocable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.entries[name]
	return fn, ok
}

// Invoke calls the named function exactly once with params. A missing
// function fails with ErrFunctionNotFound; handler errors and panics are
// wrapped in ErrFunctionExecution
func (r *FunctionRegistry) Invoke(
	ctx context.Context, name api.FunctionName, params api.Args,
) (res any, err error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrFunctionNotFound, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("%w: %s: panic: %v",
				api.ErrFunctionExecution, name, rec)
		}
	}()

	res, err = fn.Invoke(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", api.ErrFunctionExecution, name, err)
	}
	return res, nil
}

// Names returns the registered function names in sorted order
func (r *FunctionRegistry) Names() []api.FunctionName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// List describes every registered function, sorted by name
func (r *FunctionRegistry) List() []api.FunctionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]api.FunctionInfo, 0, len(r.entries))
	for _, name := range slices.Sorted(maps.Keys(r.entries)) {
		info := api.FunctionInfo{Name: name}
		if d, ok := r.entries[name].(Describer); ok {
			info = d.Info()
			info.Name = name
		}
		res = append(res, info)
	}
	return res
}

// Len returns the number of registered functions
func (r *FunctionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
