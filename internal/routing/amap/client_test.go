package amap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tohomedistance/tohomedistance/internal/geo"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	return client, &calls
}

func request(t *testing.T, mode routing.Mode) routing.DirectionsRequest {
	t.Helper()
	origin, err := geo.NewCoordinate("116.397128", "39.916527")
	require.NoError(t, err)
	destination, err := geo.NewCoordinate("116.407417", "39.904030")
	require.NoError(t, err)
	return routing.DirectionsRequest{
		APIKey:      "test-key",
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
	}
}

func TestClient_GetDirections_Driving(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v3/direction/driving", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "116.397128,39.916527", r.URL.Query().Get("origin"))
		assert.Equal(t, "116.407417,39.90403", r.URL.Query().Get("destination"))
		assert.Empty(t, r.URL.Query().Get("city"))

		_, _ = w.Write([]byte(`{"status":"1","info":"OK","route":{"paths":[{"distance":"1234","duration":"567"},{"distance":"9","duration":"9"}]}}`))
	})

	result, err := client.GetDirections(context.Background(), request(t, routing.ModeDriving))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1234.0, result.DistanceMeters)
	assert.Equal(t, 567.0, result.DurationSeconds)
	assert.Equal(t, ProviderName, result.Provider)
}

func TestClient_GetDirections_NumericValues(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[{"distance":812.5,"duration":630}]}}`))
	})

	result, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	require.NoError(t, err)
	assert.Equal(t, 812.5, result.DistanceMeters)
	assert.Equal(t, 630.0, result.DurationSeconds)
}

func TestClient_GetDirections_RejectsInvalidQuantities(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"nan distance", `{"distance":"NaN","duration":"60"}`},
		{"infinite distance", `{"distance":"+Inf","duration":"60"}`},
		{"negative distance", `{"distance":"-1","duration":"60"}`},
		{"negative numeric duration", `{"distance":"100","duration":-5}`},
		{"infinite duration", `{"distance":"100","duration":"Inf"}`},
		{"missing duration", `{"distance":"100"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[` + tt.path + `]}}`))
			})

			result, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
			assert.Nil(t, result)
			require.ErrorIs(t, err, routing.ErrNoRouteFound)

			var rerr *routing.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, "MALFORMED_PATH", rerr.Code)
		})
	}
}

func TestClient_GetDirections_ZeroIsValid(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[{"distance":"0","duration":"0"}]}}`))
	})

	result, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	require.NoError(t, err)
	assert.Zero(t, result.DistanceMeters)
	assert.Zero(t, result.DurationSeconds)
}

func TestClient_GetDirections_Transit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/direction/transit/integrated", r.URL.Path)
		assert.Equal(t, "北京", r.URL.Query().Get("city"))
		_, _ = w.Write([]byte(`{"status":"1","route":{"distance":"3000","transits":[{"distance":"3500","duration":"1800"}]}}`))
	})

	req := request(t, routing.ModeTransit)
	req.City = "北京"

	result, err := client.GetDirections(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3500.0, result.DistanceMeters)
	assert.Equal(t, 1800.0, result.DurationSeconds)
}

func TestClient_GetDirections_Bicycling(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/direction/bicycling", r.URL.Path)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"OK","data":{"paths":[{"distance":2100,"duration":540}]}}`))
	})

	result, err := client.GetDirections(context.Background(), request(t, routing.ModeBicycling))
	require.NoError(t, err)
	assert.Equal(t, 2100.0, result.DistanceMeters)
	assert.Equal(t, 540.0, result.DurationSeconds)
}

func TestClient_GetDirections_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		mode    routing.Mode
		body    string
		message string
	}{
		{
			name:    "v3 status 0",
			mode:    routing.ModeDriving,
			body:    `{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`,
			message: "INVALID_USER_KEY",
		},
		{
			name:    "v4 errcode",
			mode:    routing.ModeBicycling,
			body:    `{"errcode":30001,"errmsg":"ENGINE_RESPONSE_DATA_ERROR","data":{}}`,
			message: "ENGINE_RESPONSE_DATA_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := client.GetDirections(context.Background(), request(t, tt.mode))
			assert.Nil(t, result)
			require.ErrorIs(t, err, routing.ErrProviderRejected)

			var rerr *routing.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.message, rerr.Message)
			assert.False(t, rerr.IsTransient())
		})
	}
}

func TestClient_GetDirections_EmptyPaths(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[]}}`))
	})

	_, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
}

func TestClient_GetDirections_MalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestClient_GetDirections_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestClient_GetDirections_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewClient(ClientConfig{BaseURL: baseURL, Logger: zerolog.Nop()})

	_, err := client.GetDirections(context.Background(), request(t, routing.ModeWalking))
	require.ErrorIs(t, err, routing.ErrProviderUnavailable)

	var rerr *routing.Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.IsTransient())
}

func TestClient_GetDirections_UnknownModeSendsNothing(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1"}`))
	})

	_, err := client.GetDirections(context.Background(), request(t, routing.Mode(9)))
	assert.ErrorIs(t, err, routing.ErrUnknownMode)
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_ValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"accepted", http.StatusOK, `{"status":"1","info":"OK","infocode":"10000"}`, false},
		{"invalid key", http.StatusOK, `{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`, true},
		{"other rejection is not a key problem", http.StatusOK, `{"status":"0","info":"DAILY_QUERY_OVER_LIMIT","infocode":"10003"}`, false},
		{"no infocode", http.StatusOK, `{}`, true},
		{"not json", http.StatusOK, `oops`, true},
		{"server error", http.StatusInternalServerError, ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v3/ip", r.URL.Path)
				assert.Equal(t, "candidate", r.URL.Query().Get("key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.ValidateKey(context.Background(), "candidate")
			assert.Equal(t, int32(1), calls.Load())
			if tt.wantErr {
				assert.ErrorIs(t, err, routing.ErrInvalidAPIKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEndpointPath(t *testing.T) {
	path, ok := EndpointPath(routing.ModeTransit)
	assert.True(t, ok)
	assert.Equal(t, "/v3/direction/transit/integrated", path)

	_, ok = EndpointPath(routing.Mode(0))
	assert.False(t, ok)
}
