package script

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/util"
)

type (
	// AleEnv compiles Ale function bodies into procedures. Each script
	// becomes a lambda over the function's sorted parameter names
	AleEnv struct {
		env   *env.Environment
		cache *util.LRUCache[string, *AleProgram]
	}

	// AleProgram is a compiled Ale procedure and the parameter names it
	// takes, in call order
	AleProgram struct {
		proc     data.Procedure
		argNames []string
	}
)

const (
	aleCacheSize      = 1024
	aleLambdaTemplate = "(lambda (%s) %s)"
)

var (
	ErrAleCompile      = errors.New("ale compile error")
	ErrAleNotProcedure = errors.New("ale script is not a procedure")
	ErrAleExecution    = errors.New("ale execution error")
)

var aleSymbol = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// NewAleEnv creates an Ale environment with the core library loaded
func NewAleEnv() *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{
		env:   e,
		cache: util.NewLRUCache[string, *AleProgram](aleCacheSize),
	}
}

// Compile compiles the script of a function definition. Programs are
// cached by function name, parameter names, and script hash
func (e *AleEnv) Compile(def *api.FunctionDefinition) (*AleProgram, error) {
	if def.Script == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrScriptRequired, def.Name)
	}
	if lang := strings.ToLower(def.Script.Language); lang != api.ScriptLangAle {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	argNames := def.SortedParams()
	for _, name := range argNames {
		if !aleSymbol.MatchString(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParamName, name)
		}
	}

	key := aleCacheKey(def.Name, argNames, def.Script.Script)
	return e.cache.Get(key, func() (*AleProgram, error) {
		proc, err := e.compile(def.Script.Script, argNames)
		if err != nil {
			return nil, err
		}
		return &AleProgram{proc: proc, argNames: argNames}, nil
	})
}

// Execute calls a compiled program with args. Absent parameters are
// passed as null; objects with keyword keys come back as maps
func (e *AleEnv) Execute(p *AleProgram, args api.Args) (any, error) {
	vals := make(data.Vector, 0, len(p.argNames))
	for _, name := range p.argNames {
		vals = append(vals, goToAle(args[api.Name(name)]))
	}

	res, err := catchPanic(ErrAleExecution, func() (ale.Value, error) {
		return p.proc.Call(vals...), nil
	})
	if err != nil {
		return nil, err
	}
	return aleToGo(res), nil
}

func (e *AleEnv) compile(
	script string, argNames []string,
) (data.Procedure, error) {
	src := fmt.Sprintf(aleLambdaTemplate, strings.Join(argNames, " "), script)
	return catchPanic(ErrAleCompile, func() (data.Procedure, error) {
		ns := e.env.GetAnonymous()
		res, err := eval.String(ns, data.String(src))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAleCompile, err)
		}
		proc, ok := res.(data.Procedure)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrAleNotProcedure, res)
		}
		return proc, nil
	})
}

func aleCacheKey(
	name api.FunctionName, argNames []string, script string,
) string {
	sum := sha256.Sum256([]byte(script))
	return strings.Join([]string{
		string(name), strings.Join(argNames, ","),
		hex.EncodeToString(sum[:8]),
	}, cacheKeySeparator)
}

func goToAle(value any) ale.Value {
	switch v := value.(type) {
	case nil:
		return data.Null
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = goToAle(item)
		}
		return vec
	case map[string]any:
		obj := data.NewObject()
		for k, item := range v {
			pair := data.NewCons(data.Keyword(k), goToAle(item))
			obj = obj.Put(pair).(*data.Object)
		}
		return obj
	case api.Args:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[string(k)] = item
		}
		return goToAle(m)
	default:
		if f, ok := api.ToFloat(v); ok {
			return data.Float(f)
		}
		return data.String(fmt.Sprintf("%v", v))
	}
}

func aleToGo(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.String:
		return string(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return float64(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = aleToGo(item)
		}
		return res
	case *data.List:
		res := []any{}
		for l := v; !l.IsEmpty(); {
			head, tail, ok := l.Split()
			if !ok {
				break
			}
			res = append(res, aleToGo(head))
			l = tail.(*data.List)
		}
		return res
	case *data.Object:
		res := map[string]any{}
		for _, pair := range v.Pairs() {
			key := fmt.Sprintf("%v", aleToGo(pair.Car()))
			res[key] = aleToGo(pair.Cdr())
		}
		return res
	default:
		if value == data.Null {
			return nil
		}
		return fmt.Sprintf("%v", value)
	}
}

func catchPanic[T any](base error, fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %w", base, e)
				return
			}
			err = fmt.Errorf("%w: %v", base, r)
		}
	}()
	return fn()
}
