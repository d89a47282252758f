package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/client"
	"github.com/levyline/taxflow/pkg/api"
)

func respond(res api.FunctionResult) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}
}

func TestSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "taxflow/0.4.2", r.Header.Get("User-Agent"))

			var req api.FunctionInvocation
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "p-100", req.Arguments["property_id"])

			respond(api.FunctionResult{
				Success: true,
				Result:  map[string]any{"assessed_value": 310000.0},
			})(w, r)
		},
	))
	defer server.Close()

	cl := client.NewHTTPClient(5 * time.Second)
	res, err := cl.Invoke(context.Background(),
		&api.HTTPConfig{Endpoint: server.URL},
		api.Args{"property_id": "p-100"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"assessed_value": 310000.0}, res)
}

func TestNoHTTPConfig(t *testing.T) {
	cl := client.NewHTTPClient(time.Second)

	_, err := cl.Invoke(context.Background(), nil, api.Args{})
	assert.ErrorIs(t, err, client.ErrNoHTTPConfig)

	_, err = cl.Invoke(context.Background(), &api.HTTPConfig{}, api.Args{})
	assert.ErrorIs(t, err, client.ErrNoHTTPConfig)
}

func TestHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		},
	))
	defer server.Close()

	cl := client.NewHTTPClient(5 * time.Second)
	_, err := cl.Invoke(context.Background(),
		&api.HTTPConfig{Endpoint: server.URL}, api.Args{},
	)
	assert.ErrorIs(t, err, client.ErrHTTPError)
	assert.Contains(t, err.Error(), "502")
}

func TestUnsuccessful(t *testing.T) {
	tests := []struct {
		name     string
		result   api.FunctionResult
		contains string
	}{
		{
			name:     "with_message",
			result:   api.FunctionResult{Error: "property not found"},
			contains: "property not found",
		},
		{
			name:     "without_message",
			result:   api.FunctionResult{},
			contains: "success=false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(respond(tt.result))
			defer server.Close()

			cl := client.NewHTTPClient(5 * time.Second)
			_, err := cl.Invoke(context.Background(),
				&api.HTTPConfig{Endpoint: server.URL}, api.Args{},
			)
			assert.ErrorIs(t, err, client.ErrFunctionUnsuccessful)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
	))
	defer server.Close()

	cl := client.NewHTTPClient(5 * time.Second)
	_, err := cl.Invoke(context.Background(),
		&api.HTTPConfig{Endpoint: server.URL}, api.Args{},
	)
	assert.Error(t, err)
}

func TestFunctionTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	))
	defer server.Close()
	defer close(release)

	cl := client.NewHTTPClient(5 * time.Second)
	_, err := cl.Invoke(context.Background(),
		&api.HTTPConfig{Endpoint: server.URL, Timeout: 50},
		api.Args{},
	)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
