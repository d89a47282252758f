package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/levyline/taxflow/internal/client"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/internal/script"
	"github.com/levyline/taxflow/pkg/api"
)

type (
	// Builder turns function definitions into engine functions
	Builder struct {
		lua    *script.LuaEnv
		ale    *script.AleEnv
		client client.Client
	}

	scriptFunction struct {
		def *api.FunctionDefinition
		run func(api.Args) (any, error)
	}

	httpFunction struct {
		def    *api.FunctionDefinition
		client client.Client
	}
)

var (
	_ engine.Invocable = (*scriptFunction)(nil)
	_ engine.Describer = (*scriptFunction)(nil)
	_ engine.Invocable = (*httpFunction)(nil)
	_ engine.Describer = (*httpFunction)(nil)
)

// NewBuilder creates a Builder running Lua scripts in lua, Ale scripts in
// ale, and HTTP functions through cl
func NewBuilder(
	lua *script.LuaEnv, ale *script.AleEnv, cl client.Client,
) *Builder {
	return &Builder{lua: lua, ale: ale, client: cl}
}

// Build validates def and returns its engine function. Scripts are
// compiled eagerly so syntax errors surface at registration
func (b *Builder) Build(def *api.FunctionDefinition) (engine.Invocable, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	switch def.Type {
	case api.FunctionTypeScript:
		run, err := b.compileScript(def)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w",
				api.ErrInvalidRequest, def.Name, err)
		}
		return &scriptFunction{def: def, run: run}, nil
	default:
		return &httpFunction{def: def, client: b.client}, nil
	}
}

// compileScript picks the environment by language. Lua is the default
func (b *Builder) compileScript(
	def *api.FunctionDefinition,
) (func(api.Args) (any, error), error) {
	switch strings.ToLower(def.Script.Language) {
	case api.ScriptLangAle:
		p, err := b.ale.Compile(def)
		if err != nil {
			return nil, err
		}
		return func(args api.Args) (any, error) {
			return b.ale.Execute(p, args)
		}, nil
	default:
		c, err := b.lua.Compile(def)
		if err != nil {
			return nil, err
		}
		return func(args api.Args) (any, error) {
			return b.lua.Execute(c, args)
		}, nil
	}
}

func (f *scriptFunction) Invoke(_ context.Context, params api.Args) (any, error) {
	return f.run(params)
}

func (f *scriptFunction) Info() api.FunctionInfo {
	return f.def.Info()
}

func (f *httpFunction) Invoke(ctx context.Context, params api.Args) (any, error) {
	return f.client.Invoke(ctx, f.def.HTTP, params)
}

func (f *httpFunction) Info() api.FunctionInfo {
	return f.def.Info()
}
