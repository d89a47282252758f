package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/levyline/taxflow/pkg/api"
)

// StepResults maps step names to the raw results of completed steps
type StepResults map[api.StepName]any

const pathSeparator = "."

// Resolve evaluates a parameter binding. Literals are returned unchanged;
// references are traversed into the workflow input or a prior step result.
// A missing root or key yields false rather than an error
func Resolve(p api.Param, input api.Args, results StepResults) (any, bool) {
	switch p.Kind {
	case api.ParamInput:
		return LookupPath(input, p.Path)
	case api.ParamStep:
		root, ok := results[p.Step]
		if !ok {
			return nil, false
		}
		return LookupPath(root, p.Path)
	default:
		return p.Value, true
	}
}

// ResolveAll builds the argument bag for a call. Parameters that resolve to
// nothing are omitted so the function sees them as absent. Resolved values
// are copied so functions cannot mutate workflow state
func ResolveAll(
	params api.Params, input api.Args, results StepResults,
) api.Args {
	res := make(api.Args, len(params))
	for name, p := range params {
		if v, ok := Resolve(p, input, results); ok {
			res[name] = api.CloneValue(v)
		}
	}
	return res
}

// LookupPath walks a dotted path through maps and slices. An empty path
// returns root. Values that are neither maps nor slices are traversed
// through their JSON encoding
func LookupPath(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}

	segments := strings.Split(path, pathSeparator)
	cur := root
	for i, seg := range segments {
		switch v := cur.(type) {
		case nil:
			return nil, false
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case map[api.Name]any:
			next, ok := v[api.Name(seg)]
			if !ok {
				return nil, false
			}
			cur = next
		case api.Args:
			next, ok := v[api.Name(seg)]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			rest := strings.Join(segments[i:], pathSeparator)
			return lookupJSON(v, rest)
		}
	}
	return cur, true
}

func lookupJSON(v any, path string) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}
