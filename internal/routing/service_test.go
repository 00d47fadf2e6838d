package routing

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/geo"
	"github.com/tohomedistance/tohomedistance/internal/provider/resilience"
)

// mockProvider is a mock directions provider for testing.
type mockProvider struct {
	name      string
	result    *RouteResult
	err       error
	callCount atomic.Int32
	lastReq   DirectionsRequest
}

func (m *mockProvider) GetDirections(_ context.Context, req DirectionsRequest) (*RouteResult, error) {
	m.callCount.Add(1)
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func mustCoordinate(t *testing.T, lng, lat string) geo.Coordinate {
	t.Helper()
	c, err := geo.NewCoordinate(lng, lat)
	if err != nil {
		t.Fatalf("unexpected coordinate error: %v", err)
	}
	return c
}

func testRequest(t *testing.T) DirectionsRequest {
	return DirectionsRequest{
		APIKey:      "k",
		Origin:      mustCoordinate(t, "116.397128", "39.916527"),
		Destination: mustCoordinate(t, "116.407417", "39.904030"),
		Mode:        ModeDriving,
	}
}

func TestService_Route_Success(t *testing.T) {
	provider := &mockProvider{
		name:   "test-provider",
		result: &RouteResult{DistanceMeters: 1234, DurationSeconds: 567, Provider: "test-provider", FetchedAt: time.Now()},
	}
	service := NewService(ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	result := service.Route(context.Background(), testRequest(t))

	if result == nil {
		t.Fatal("expected a route result")
	}
	if result.DistanceMeters != 1234 || result.DurationSeconds != 567 {
		t.Errorf("unexpected result: %+v", result)
	}
	if provider.lastReq.Mode != ModeDriving {
		t.Errorf("expected mode to be passed through, got %v", provider.lastReq.Mode)
	}
}

func TestService_Route_FailureBecomesAbsence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", &Error{Provider: "p", Code: "REQUEST_FAILED", Message: "timeout", Err: ErrProviderUnavailable}},
		{"rejected", &Error{Provider: "p", Code: "10001", Message: "INVALID_USER_KEY", Err: ErrProviderRejected}},
		{"no route", &Error{Provider: "p", Code: "NO_ROUTE", Message: "empty paths", Err: ErrNoRouteFound}},
		{"untyped", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{name: "p", err: tt.err}
			service := NewService(ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

			if result := service.Route(context.Background(), testRequest(t)); result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
			if provider.callCount.Load() != 1 {
				t.Errorf("expected 1 provider call, got %d", provider.callCount.Load())
			}
		})
	}
}

func TestService_Route_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	provider := &mockProvider{
		name: "p",
		err:  &Error{Provider: "p", Code: "REQUEST_FAILED", Message: "connection refused", Err: ErrProviderUnavailable},
	}
	service := NewService(ServiceConfig{Provider: provider, Logger: zerolog.New(&buf)})

	if result := service.Route(context.Background(), testRequest(t)); result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}

	logged := buf.String()
	for _, want := range []string{
		`"level":"error"`,
		"failed to fetch directions",
		"connection refused",
		`"code":"REQUEST_FAILED"`,
		`"mode":"` + ModeDriving.String() + `"`,
	} {
		if !strings.Contains(logged, want) {
			t.Errorf("expected log to contain %q, got %s", want, logged)
		}
	}
}

func TestService_Route_MissingCoordinateSkipsProvider(t *testing.T) {
	provider := &mockProvider{name: "p", result: &RouteResult{}}
	service := NewService(ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	req := testRequest(t)
	req.Destination = geo.Coordinate{}

	if result := service.Route(context.Background(), req); result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
	if provider.callCount.Load() != 0 {
		t.Errorf("expected no provider call, got %d", provider.callCount.Load())
	}
}

func TestService_Route_RecordsHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "p", Registry: registry})

	provider := &mockProvider{name: "p", err: &Error{Provider: "p", Message: "boom", Err: ErrProviderRejected}}
	service := NewService(ServiceConfig{Provider: provider, Logger: zerolog.Nop(), Registry: registry})

	service.Route(context.Background(), testRequest(t))

	health := registry.GetHealth("p")
	if health == nil || health.LastFailureAt == nil {
		t.Fatal("expected failure to be recorded")
	}
	if health.LastSuccessAt != nil {
		t.Error("did not expect a recorded success")
	}

	provider.err = nil
	provider.result = &RouteResult{DistanceMeters: 1}
	service.Route(context.Background(), testRequest(t))

	if registry.GetHealth("p").LastSuccessAt == nil {
		t.Error("expected success to be recorded")
	}
}

func TestMode(t *testing.T) {
	if !ModeBicycling.Valid() || Mode(0).Valid() || Mode(5).Valid() {
		t.Error("unexpected mode validity")
	}
	if ModeTransit.String() != "transit" {
		t.Errorf("unexpected name %q", ModeTransit.String())
	}
	if ModeWalking.Label() != "步行" || ModeDriving.Label() != "驾车" {
		t.Error("unexpected labels")
	}
	if len(Modes()) != 4 {
		t.Errorf("expected 4 modes, got %d", len(Modes()))
	}
}

func TestError_IsTransient(t *testing.T) {
	if !(&Error{Err: ErrProviderUnavailable}).IsTransient() {
		t.Error("unavailable should be transient")
	}
	if (&Error{Err: ErrProviderRejected}).IsTransient() {
		t.Error("rejected should not be transient")
	}
}
