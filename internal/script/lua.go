package script

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/util"
)

type (
	// LuaEnv compiles and runs Lua function scripts. Compiled bytecode is
	// cached and interpreter states are pooled between calls
	LuaEnv struct {
		cache     *util.LRUCache[string, *Compiled]
		statePool chan *lua.State
	}

	// Compiled is a Lua script compiled to bytecode, along with the
	// parameter names bound to its leading locals
	Compiled struct {
		bytecode []byte
		argNames []string
	}
)

const (
	luaCacheSize       = 1024
	luaStatePoolSize   = 10
	luaGlobalTableName = "_G"
	luaArgTemplate     = "local %s = select(%d, ...)"
	luaChunkName       = "function"
	luaSeparator       = "\n"
	cacheKeySeparator  = "\x00"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported script language")
	ErrInvalidParamName    = errors.New("invalid script parameter name")
	ErrLuaCompile          = errors.New("lua compile error")
	ErrLuaLoad             = errors.New("lua load error")
	ErrLuaExecution        = errors.New("lua execution error")
)

var (
	luaExclude = [...]string{
		"io", "os", "debug", "package", "require", "dofile", "loadfile",
		"load",
	}

	luaIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// NewLuaEnv creates a Lua environment
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		cache:     util.NewLRUCache[string, *Compiled](luaCacheSize),
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// Compile compiles the script of a function definition. Each declared
// parameter is bound to a local variable of the same name
func (e *LuaEnv) Compile(def *api.FunctionDefinition) (*Compiled, error) {
	if def.Script == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrScriptRequired, def.Name)
	}
	lang := strings.ToLower(def.Script.Language)
	if lang != "" && lang != api.ScriptLangLua {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	argNames := def.SortedParams()
	for _, name := range argNames {
		if !luaIdentifier.MatchString(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParamName, name)
		}
	}

	key := strings.Join([]string{
		string(def.Name), strings.Join(argNames, ","), def.Script.Script,
	}, cacheKeySeparator)
	return e.cache.Get(key, func() (*Compiled, error) {
		return e.compile(wrapSource(def.Script.Script, argNames), argNames)
	})
}

// Execute runs a compiled script with args and returns its first result.
// Tables become maps or slices; numbers are returned as float64
func (e *LuaEnv) Execute(c *Compiled, args api.Args) (any, error) {
	L := e.getState()
	defer e.returnState(L)

	setupSandbox(L)
	err := L.Load(bytes.NewReader(c.bytecode), luaChunkName, "b")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	for _, name := range c.argNames {
		if v, ok := args[api.Name(name)]; ok {
			goToLua(L, v)
			continue
		}
		L.PushNil()
	}

	if err := L.ProtectedCall(len(c.argNames), 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	res := luaToGo(L, -1)
	L.Pop(1)
	return res, nil
}

func (e *LuaEnv) compile(src string, argNames []string) (*Compiled, error) {
	L := lua.NewState()
	setupSandbox(L)

	if err := lua.LoadString(L, src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaCompile, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaCompile, err)
	}
	return &Compiled{
		bytecode: buf.Bytes(),
		argNames: argNames,
	}, nil
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case e.statePool <- L:
	default:
	}
}

func wrapSource(script string, argNames []string) string {
	lines := make([]string, 0, len(argNames)+1)
	for i, name := range argNames {
		lines = append(lines, fmt.Sprintf(luaArgTemplate, name, i+1))
	}
	return strings.Join(append(lines, script), luaSeparator)
}

func setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(-2, name)
	}
	L.Pop(1)
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		L.PushNil()
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case []any:
		L.CreateTable(len(v), 0)
		for i, item := range v {
			goToLua(L, item)
			L.RawSetInt(-2, i+1)
		}
	case map[string]any:
		L.CreateTable(0, len(v))
		for k, item := range v {
			goToLua(L, item)
			L.SetField(-2, k)
		}
	case api.Args:
		L.CreateTable(0, len(v))
		for k, item := range v {
			goToLua(L, item)
			L.SetField(-2, string(k))
		}
	default:
		if f, ok := api.ToFloat(v); ok {
			L.PushNumber(f)
			return
		}
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := L.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToGo(L, L.AbsIndex(index))
	default:
		return nil
	}
}

func luaTableToGo(L *lua.State, index int) any {
	length := L.RawLength(index)
	keys := 0
	L.PushNil()
	for L.Next(index) {
		keys++
		L.Pop(1)
	}

	if length > 0 && keys == length {
		res := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(index, i)
			res[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return res
	}

	res := make(map[string]any, keys)
	L.PushNil()
	for L.Next(index) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		res[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return res
}
