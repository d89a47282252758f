package functions

import (
	"context"
	"errors"
	"math"

	"github.com/levyline/taxflow/pkg/api"
)

// MillDivisor converts a mill rate into a fraction of value
const MillDivisor = 1000

var (
	ErrAssessedValueRequired = errors.New("assessed_value must be a number")
	ErrMillRateRequired      = errors.New("mill_rate must be a number")
	ErrNegativeAmount        = errors.New("tax inputs cannot be negative")
)

// ComputeTax computes the levy on an assessed value. Exemptions reduce the
// taxable value, which never drops below zero
func ComputeTax(_ context.Context, params api.Args) (any, error) {
	assessed, ok := params.GetFloat("assessed_value", 0)
	if !ok {
		return nil, ErrAssessedValueRequired
	}
	rate, ok := params.GetFloat("mill_rate", 0)
	if !ok {
		return nil, ErrMillRateRequired
	}
	exemptions, _ := params.GetFloat("exemptions", 0)
	if assessed < 0 || rate < 0 || exemptions < 0 {
		return nil, ErrNegativeAmount
	}

	taxable := math.Max(0, assessed-exemptions)
	amount := math.Round(taxable*rate/MillDivisor*100) / 100
	return map[string]any{
		"assessed_value": assessed,
		"exemptions":     exemptions,
		"taxable_value":  taxable,
		"mill_rate":      rate,
		"amount":         amount,
	}, nil
}
