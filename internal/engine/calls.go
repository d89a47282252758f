package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

// InvokeFunction calls a single function outside of any workflow. The
// parameters are passed through without reference resolution
func (e *Engine) InvokeFunction(
	ctx context.Context, req *api.FunctionCallRequest,
) *api.FunctionCallResponse {
	callID := req.CallID
	if callID == "" {
		callID = api.NewCallID()
	}

	res := &api.FunctionCallResponse{CallID: callID}
	if req.FunctionName == "" {
		res.Status = api.StatusFailed
		res.Error = api.NewErrorDetail(
			fmt.Errorf("%w: function_name required", api.ErrInvalidRequest),
		)
		res.Timestamp = e.now()
		return res
	}

	params := req.Parameters.Clone()
	if params == nil {
		params = api.Args{}
	}

	result, err := e.callFunction(
		ctx, req.FunctionName, params, e.stepTimeout(nil),
	)
	res.Timestamp = e.now()
	if err != nil {
		res.Status = api.StatusFailed
		res.Error = api.NewErrorDetail(err)
		e.metrics.functionCalled(req.FunctionName, api.StatusFailed)
		slog.Warn("Function call failed",
			log.CallID(callID),
			log.FunctionName(req.FunctionName),
			log.Error(err))
		return res
	}

	res.Status = api.StatusCompleted
	res.Result = result
	e.metrics.functionCalled(req.FunctionName, api.StatusCompleted)
	slog.Debug("Function call completed",
		log.CallID(callID),
		log.FunctionName(req.FunctionName))
	return res
}
