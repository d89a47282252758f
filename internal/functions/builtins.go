package functions

import (
	"context"

	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/pkg/api"
)

type (
	// Registrar accepts named functions
	Registrar interface {
		RegisterFunction(name api.FunctionName, fn engine.Invocable)
	}

	builtin struct {
		handler engine.FunctionHandler
		info    api.FunctionInfo
	}
)

const (
	CalculateName       api.FunctionName = "calculate"
	GetPropertyName     api.FunctionName = "get_property"
	LatestValuationName api.FunctionName = "latest_valuation"
	ComputeTaxName      api.FunctionName = "compute_tax"
)

var _ engine.Describer = (*builtin)(nil)

// RegisterBuiltins registers the numeric and tax functions. The property
// lookups are registered only when props is not nil
func RegisterBuiltins(r Registrar, props PropertyStore) {
	r.RegisterFunction(CalculateName, &builtin{
		handler: Calculate,
		info: api.FunctionInfo{
			Name: CalculateName,
			Description: "Applies add, subtract, multiply, divide, sum, " +
				"average, min, or max to a list of values",
			Params: []api.Name{"operation", "values"},
		},
	})
	r.RegisterFunction(ComputeTaxName, &builtin{
		handler: ComputeTax,
		info: api.FunctionInfo{
			Name:        ComputeTaxName,
			Description: "Computes the tax due on an assessed value",
			Params:      []api.Name{"assessed_value", "exemptions", "mill_rate"},
		},
	})

	if props == nil {
		return
	}
	r.RegisterFunction(GetPropertyName, &builtin{
		handler: GetPropertyFunc(props),
		info: api.FunctionInfo{
			Name:        GetPropertyName,
			Description: "Looks up a property by id",
			Params:      []api.Name{"property_id"},
		},
	})
	r.RegisterFunction(LatestValuationName, &builtin{
		handler: LatestValuationFunc(props),
		info: api.FunctionInfo{
			Name:        LatestValuationName,
			Description: "Returns the most recent valuation of a property",
			Params:      []api.Name{"property_id"},
		},
	})
}

func (b *builtin) Invoke(ctx context.Context, params api.Args) (any, error) {
	return b.handler(ctx, params)
}

func (b *builtin) Info() api.FunctionInfo {
	return b.info
}
