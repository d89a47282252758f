package functions

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/levyline/taxflow/pkg/api"
)

const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpMultiply = "multiply"
	OpDivide   = "divide"
	OpSum      = "sum"
	OpAverage  = "average"
	OpMin      = "min"
	OpMax      = "max"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrValuesRequired   = errors.New("values must be a non-empty list")
	ErrNotANumber       = errors.New("value is not a number")
	ErrDivideByZero     = errors.New("division by zero")
)

// Calculate applies operation to a list of numbers. add and sum total the
// values; subtract and divide fold left from the first value
func Calculate(_ context.Context, params api.Args) (any, error) {
	op := params.GetString("operation", "")
	values, err := numbers(params)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpAdd, OpSum:
		return total(values), nil
	case OpSubtract:
		res := values[0]
		for _, v := range values[1:] {
			res -= v
		}
		return res, nil
	case OpMultiply:
		res := 1.0
		for _, v := range values {
			res *= v
		}
		return res, nil
	case OpDivide:
		res := values[0]
		for _, v := range values[1:] {
			if v == 0 {
				return nil, ErrDivideByZero
			}
			res /= v
		}
		return res, nil
	case OpAverage:
		return total(values) / float64(len(values)), nil
	case OpMin:
		res := math.Inf(1)
		for _, v := range values {
			res = math.Min(res, v)
		}
		return res, nil
	case OpMax:
		res := math.Inf(-1)
		for _, v := range values {
			res = math.Max(res, v)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

func numbers(params api.Args) ([]float64, error) {
	raw, ok := params.GetSlice("values")
	if !ok || len(raw) == 0 {
		return nil, ErrValuesRequired
	}
	res := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := api.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: values[%d] = %v", ErrNotANumber, i, v)
		}
		res[i] = f
	}
	return res, nil
}

func total(values []float64) float64 {
	var res float64
	for _, v := range values {
		res += v
	}
	return res
}
