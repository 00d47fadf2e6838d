package routing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tohomedistance/tohomedistance/internal/provider/resilience"
)

const meterName = "github.com/tohomedistance/tohomedistance/internal/routing"

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the directions provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Registry records the outcome of each call for health reporting (optional).
	Registry *resilience.Registry

	// Meter for request metrics. Defaults to the global meter.
	Meter metric.Meter
}

// Service computes routes and turns every provider failure into a logged absence.
type Service struct {
	provider Provider
	logger   zerolog.Logger
	registry *resilience.Registry

	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	s := &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		registry: cfg.Registry,
	}

	var err error
	s.requestTotal, err = meter.Int64Counter(
		"routing.provider.request.total",
		metric.WithDescription("Total number of directions requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create routing request counter")
	}

	s.requestDuration, err = meter.Float64Histogram(
		"routing.provider.request.duration",
		metric.WithDescription("Duration of directions requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create routing duration histogram")
	}

	return s
}

// Route returns the first route between req.Origin and req.Destination, or
// nil when the route could not be computed. Failures are logged, never returned.
func (s *Service) Route(ctx context.Context, req DirectionsRequest) *RouteResult {
	if req.Origin.IsZero() || req.Destination.IsZero() {
		s.logger.Warn().
			Str("mode", req.Mode.String()).
			Msg("skipping directions request without origin or destination")
		return nil
	}

	s.logger.Debug().
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Str("mode", req.Mode.String()).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	start := time.Now()
	result, err := s.provider.GetDirections(ctx, req)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
	}
	s.record(ctx, req.Mode, outcome, elapsed)

	if err != nil {
		if s.registry != nil {
			s.registry.RecordFailure(s.provider.Name(), err)
		}

		event := s.logger.Error().Err(err)
		var rerr *Error
		if errors.As(err, &rerr) {
			event = event.Str("code", rerr.Code).Str("info", rerr.Message)
		}
		event.
			Str("origin", req.Origin.String()).
			Str("destination", req.Destination.String()).
			Str("mode", req.Mode.String()).
			Dur("elapsed", elapsed).
			Msg("failed to fetch directions")
		return nil
	}

	if s.registry != nil {
		s.registry.RecordSuccess(s.provider.Name())
	}

	s.logger.Debug().
		Float64("distance_meters", result.DistanceMeters).
		Float64("duration_seconds", result.DurationSeconds).
		Dur("elapsed", elapsed).
		Msg("received directions")

	return result
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func (s *Service) record(ctx context.Context, mode Mode, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", s.provider.Name()),
		attribute.String("mode", mode.String()),
		attribute.String("outcome", outcome),
	)
	if s.requestTotal != nil {
		s.requestTotal.Add(ctx, 1, attrs)
	}
	if s.requestDuration != nil {
		s.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	case errors.Is(err, ErrNoRouteFound):
		return "no_route"
	case errors.Is(err, ErrUnknownMode):
		return "unknown_mode"
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid_coordinates"
	default:
		return "error"
	}
}
