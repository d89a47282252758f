package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type (
	// Param is a step parameter binding. It is either a literal value, a
	// reference into the workflow input, or a reference into the raw result
	// of a prior step
	Param struct {
		Value any
		Step  StepName
		Path  string
		Kind  ParamKind
	}

	// ParamKind discriminates the Param union
	ParamKind string

	// Params maps parameter names to their bindings
	Params map[Name]Param
)

const (
	ParamLiteral ParamKind = "literal"
	ParamInput   ParamKind = "input"
	ParamStep    ParamKind = "step"
)

const (
	paramKeyLiteral = "literal"
	paramKeyInput   = "input"
	paramKeyStep    = "step"
	paramKeyPath    = "path"
)

var (
	ErrInvalidParamKind = errors.New("invalid parameter kind")
	ErrStepRefEmpty     = errors.New("step reference has no step name")
)

// Literal creates a parameter that passes its value through unchanged
func Literal(value any) Param {
	return Param{Kind: ParamLiteral, Value: value}
}

// InputRef creates a parameter that reads a dotted path from the workflow
// input. An empty path refers to the entire input
func InputRef(path string) Param {
	return Param{Kind: ParamInput, Path: path}
}

// StepRef creates a parameter that reads a dotted path from the raw result
// of a prior step. An empty path refers to the entire result
func StepRef(step StepName, path string) Param {
	return Param{Kind: ParamStep, Step: step, Path: path}
}

// IsRef reports whether the parameter must be resolved at execution time
func (p Param) IsRef() bool {
	return p.Kind == ParamInput || p.Kind == ParamStep
}

// Validate checks that the parameter is a well-formed union member
func (p Param) Validate() error {
	switch p.Kind {
	case ParamLiteral, ParamInput:
		return nil
	case ParamStep:
		if p.Step == "" {
			return ErrStepRefEmpty
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidParamKind, p.Kind)
	}
}

// String renders the parameter for log output
func (p Param) String() string {
	switch p.Kind {
	case ParamInput:
		return joinPath("input", p.Path)
	case ParamStep:
		return joinPath("steps."+string(p.Step), p.Path)
	default:
		return fmt.Sprintf("%v", p.Value)
	}
}

// MarshalJSON encodes references as single-purpose objects and literals as
// their raw value. Literal objects are wrapped so they cannot be mistaken
// for references when decoded
func (p Param) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ParamInput:
		return json.Marshal(map[string]string{paramKeyInput: p.Path})
	case ParamStep:
		return json.Marshal(map[string]string{
			paramKeyStep: string(p.Step),
			paramKeyPath: p.Path,
		})
	default:
		switch p.Value.(type) {
		case map[string]any, Args:
			return json.Marshal(map[string]any{paramKeyLiteral: p.Value})
		default:
			return json.Marshal(p.Value)
		}
	}
}

// UnmarshalJSON decodes the wire forms produced by MarshalJSON. Any value
// that is not exactly a reference object is treated as a literal
func (p *Param) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ParseParam(raw)
	return p.Validate()
}

// ParseParam interprets a decoded JSON or YAML value as a Param
func ParseParam(raw any) Param {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Literal(raw)
	}

	switch len(obj) {
	case 1:
		if v, ok := obj[paramKeyLiteral]; ok {
			return Literal(v)
		}
		if path, ok := obj[paramKeyInput].(string); ok {
			return InputRef(path)
		}
		if step, ok := obj[paramKeyStep].(string); ok {
			return StepRef(StepName(step), "")
		}
	case 2:
		step, okStep := obj[paramKeyStep].(string)
		path, okPath := obj[paramKeyPath].(string)
		if okStep && okPath {
			return StepRef(StepName(step), path)
		}
	}
	return Literal(raw)
}

func joinPath(root, path string) string {
	if path == "" {
		return root
	}
	return strings.Join([]string{root, path}, ".")
}
