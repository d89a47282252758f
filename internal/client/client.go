package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/levyline/taxflow"
	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

type (
	// Client invokes functions hosted behind HTTP endpoints
	Client interface {
		Invoke(
			ctx context.Context, cfg *api.HTTPConfig, args api.Args,
		) (any, error)
	}

	// HTTPClient posts function arguments as JSON and decodes the
	// function's result envelope
	HTTPClient struct {
		httpClient *http.Client
	}
)

var (
	ErrFunctionUnsuccessful = errors.New("function returned success=false")
	ErrHTTPError            = errors.New("function returned HTTP error")
	ErrNoHTTPConfig         = errors.New("function has no HTTP configuration")
)

var (
	_ Client = (*HTTPClient)(nil)

	userAgent = taxflow.Name + "/" + taxflow.Version
)

// NewHTTPClient creates a client whose requests are bounded by timeout.
// A per-function timeout further limits individual calls
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Invoke posts args to the configured endpoint and returns the result
func (c *HTTPClient) Invoke(
	ctx context.Context, cfg *api.HTTPConfig, args api.Args,
) (any, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, ErrNoHTTPConfig
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(
			ctx, time.Duration(cfg.Timeout)*time.Millisecond,
		)
		defer cancel()
	}

	body, err := json.Marshal(api.FunctionInvocation{Arguments: args})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	dur := time.Since(start)
	if err != nil {
		slog.Error("HTTP request failed",
			slog.String("endpoint", cfg.Endpoint),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("HTTP error",
			slog.String("endpoint", cfg.Endpoint),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPError, resp.StatusCode)
	}

	var res api.FunctionResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		if res.Error == "" {
			return nil, ErrFunctionUnsuccessful
		}
		return nil, fmt.Errorf("%w: %s", ErrFunctionUnsuccessful, res.Error)
	}

	slog.Debug("HTTP function returned",
		slog.String("endpoint", cfg.Endpoint),
		slog.Duration("duration", dur))
	return res.Result, nil
}
