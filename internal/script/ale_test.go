package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/script"
	"github.com/levyline/taxflow/pkg/api"
)

func aleFunction(src string, params ...api.Name) *api.FunctionDefinition {
	return &api.FunctionDefinition{
		Name:   "ale_fn",
		Type:   api.FunctionTypeScript,
		Params: params,
		Script: &api.ScriptConfig{
			Language: api.ScriptLangAle,
			Script:   src,
		},
	}
}

func TestAleExecuteScalar(t *testing.T) {
	env := script.NewAleEnv()
	p, err := env.Compile(aleFunction("(+ tax penalty)", "tax", "penalty"))
	require.NoError(t, err)

	res, err := env.Execute(p, api.Args{"tax": 6127.5, "penalty": 91.5})
	require.NoError(t, err)
	assert.Equal(t, 6219.0, res)
}

func TestAleExecuteObject(t *testing.T) {
	env := script.NewAleEnv()
	p, err := env.Compile(aleFunction(
		"{:owner owner :doubled (* value 2)}", "owner", "value",
	))
	require.NoError(t, err)

	res, err := env.Execute(p, api.Args{
		"owner": "Rivera Holdings LLC", "value": 10,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"owner":   "Rivera Holdings LLC",
		"doubled": 20.0,
	}, res)
}

func TestAleExecuteVector(t *testing.T) {
	env := script.NewAleEnv()
	p, err := env.Compile(aleFunction("[b a]", "a", "b"))
	require.NoError(t, err)

	res, err := env.Execute(p, api.Args{"a": "first", "b": true})
	require.NoError(t, err)
	assert.Equal(t, []any{true, "first"}, res)
}

func TestAleCompileErrors(t *testing.T) {
	env := script.NewAleEnv()

	_, err := env.Compile(aleFunction("(+ a", "a"))
	assert.ErrorIs(t, err, script.ErrAleCompile)

	_, err = env.Compile(aleFunction("a", "not valid"))
	assert.ErrorIs(t, err, script.ErrInvalidParamName)

	def := aleFunction("1")
	def.Script.Language = api.ScriptLangLua
	_, err = env.Compile(def)
	assert.ErrorIs(t, err, script.ErrUnsupportedLanguage)

	def = aleFunction("1")
	def.Script = nil
	_, err = env.Compile(def)
	assert.ErrorIs(t, err, api.ErrScriptRequired)
}

func TestAleCompileCached(t *testing.T) {
	env := script.NewAleEnv()
	def := aleFunction("(* amount 2)", "amount")

	p1, err := env.Compile(def)
	require.NoError(t, err)
	p2, err := env.Compile(def)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	renamed := aleFunction("(* amount 2)", "amount")
	renamed.Name = "other_fn"
	p3, err := env.Compile(renamed)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}
