package api

import (
	"errors"
	"fmt"
	"slices"
)

type (
	// FunctionInfo describes a registered function for listings
	FunctionInfo struct {
		Name        FunctionName `json:"name"`
		Description string       `json:"description,omitempty"`
		Params      []Name       `json:"params,omitempty"`
	}

	// FunctionDefinition declares a function implemented outside of Go code,
	// either as a script or as a remote HTTP endpoint
	FunctionDefinition struct {
		Script      *ScriptConfig `json:"script,omitempty"`
		HTTP        *HTTPConfig   `json:"http,omitempty"`
		Name        FunctionName  `json:"name"`
		Description string        `json:"description,omitempty"`
		Type        FunctionType  `json:"type"`
		Params      []Name        `json:"params,omitempty"`
	}

	// FunctionType selects how a function definition is executed
	FunctionType string

	// ScriptConfig holds the source of a script function
	ScriptConfig struct {
		Language string `json:"language"`
		Script   string `json:"script"`
	}

	// HTTPConfig holds the endpoint of a remote function
	HTTPConfig struct {
		Endpoint string `json:"endpoint"`
		Timeout  int64  `json:"timeout,omitempty"`
	}
)

const (
	FunctionTypeScript FunctionType = "script"
	FunctionTypeHTTP   FunctionType = "http"

	ScriptLangLua = "lua"
	ScriptLangAle = "ale"
)

var (
	ErrFunctionNameInvalid = errors.New("function name invalid")
	ErrInvalidFunctionType = errors.New("invalid function type")
	ErrScriptRequired      = errors.New("script required")
	ErrHTTPRequired        = errors.New("http endpoint required")
)

// Validate checks that the definition carries the configuration its type
// requires
func (d *FunctionDefinition) Validate() error {
	if !ValidName(d.Name) {
		return fmt.Errorf("%w: %q", ErrFunctionNameInvalid, d.Name)
	}
	switch d.Type {
	case FunctionTypeScript:
		if d.Script == nil || d.Script.Script == "" {
			return fmt.Errorf("%w: %s", ErrScriptRequired, d.Name)
		}
	case FunctionTypeHTTP:
		if d.HTTP == nil || d.HTTP.Endpoint == "" {
			return fmt.Errorf("%w: %s", ErrHTTPRequired, d.Name)
		}
		if d.HTTP.Timeout < 0 {
			return fmt.Errorf("%w: function %s", ErrNegativeTimeout, d.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFunctionType, d.Type)
	}
	return nil
}

// SortedParams returns the declared parameter names in sorted order
func (d *FunctionDefinition) SortedParams() []string {
	res := make([]string, len(d.Params))
	for i, p := range d.Params {
		res[i] = string(p)
	}
	slices.Sort(res)
	return res
}

// Info returns the listing description of the definition
func (d *FunctionDefinition) Info() FunctionInfo {
	return FunctionInfo{
		Name:        d.Name,
		Description: d.Description,
		Params:      slices.Clone(d.Params),
	}
}
