// Package sensor computes and publishes the distance and travel time between a
// tracked device and home.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/format"
	"github.com/tohomedistance/tohomedistance/internal/geo"
	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

const tracerName = "github.com/tohomedistance/tohomedistance/internal/sensor"

// Published attribute names.
const (
	AttrDuration        = "duration"
	AttrMode            = "mode"
	AttrDistanceMeters  = "distance_meters"
	AttrDurationSeconds = "duration_seconds"
	AttrOrigin          = "origin"
	AttrDestination     = "destination"
	AttrDeviceTracker   = "device_tracker"
	AttrFriendlyName    = homeassistant.AttrFriendlyName
	AttrAtHome          = "at_home"
)

// StateReader reads entity states from the host.
type StateReader interface {
	GetState(ctx context.Context, entityID string) (*homeassistant.Entity, error)
}

// Router computes a route, returning nil when none could be computed.
type Router interface {
	Route(ctx context.Context, req routing.DirectionsRequest) *routing.RouteResult
}

// Publisher delivers a sensor state to its consumers.
type Publisher interface {
	Publish(ctx context.Context, state State) error
}

// State is a published sensor state.
type State struct {
	EntityID   string         `json:"entity_id"`
	EntryID    string         `json:"entry_id"`
	Value      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Phase is the step of an update cycle a sensor is in.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseRequesting
	PhaseUpdating
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseRequesting:
		return "requesting"
	case PhaseUpdating:
		return "updating"
	default:
		return "idle"
	}
}

// Config holds the collaborators of a sensor.
type Config struct {
	Entry     *entry.Entry
	States    StateReader
	Router    Router
	Publisher Publisher
	Logger    zerolog.Logger
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sensor is the to-home sensor of one entry. Update cycles are serialized so
// at most one directions request is outstanding.
type Sensor struct {
	entry     *entry.Entry
	states    StateReader
	router    Router
	publisher Publisher
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	cycle sync.Mutex
	phase atomic.Int32

	mu    sync.RWMutex
	state *State
}

// New creates a sensor for cfg.Entry.
func New(cfg Config) *Sensor {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sensor{
		entry:     cfg.Entry,
		states:    cfg.States,
		router:    cfg.Router,
		publisher: cfg.Publisher,
		logger: cfg.Logger.With().
			Str("entry_id", cfg.Entry.ID).
			Str("sensor", cfg.Entry.SensorEntityID).
			Logger(),
		tracer: tracer,
		now:    now,
	}
}

// Entry returns the configuration the sensor was built from.
func (s *Sensor) Entry() *entry.Entry {
	return s.entry
}

// Phase returns the current cycle step.
func (s *Sensor) Phase() Phase {
	return Phase(s.phase.Load())
}

// State returns the last published state, if any.
func (s *Sensor) State() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return State{}, false
	}
	return cloneState(s.state), true
}

// Update runs one cycle: read the tracked entity, resolve home, request the
// route and publish. It reports whether a new state was published; on any
// failure the previous state is kept.
func (s *Sensor) Update(ctx context.Context) (State, bool) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	ctx, span := s.tracer.Start(ctx, "sensor.update", trace.WithAttributes(
		attribute.String("sensor.entity_id", s.entry.SensorEntityID),
		attribute.String("sensor.trigger", "update"),
	))
	defer span.End()

	s.setPhase(PhaseResolving)
	tracker, err := s.states.GetState(ctx, s.entry.DeviceTrackerEntityID)
	if err != nil {
		return s.abort(span, err, "failed to read tracked entity")
	}
	return s.run(ctx, span, tracker)
}

// HandleStateChange reacts to a state change of the tracked entity. Changes
// of other entities and removals are ignored. Arriving home publishes a zero
// distance without contacting the provider.
func (s *Sensor) HandleStateChange(ctx context.Context, change homeassistant.StateChange) (State, bool) {
	if change.EntityID != s.entry.DeviceTrackerEntityID || change.NewState == nil {
		return s.current()
	}

	s.cycle.Lock()
	defer s.cycle.Unlock()

	ctx, span := s.tracer.Start(ctx, "sensor.update", trace.WithAttributes(
		attribute.String("sensor.entity_id", s.entry.SensorEntityID),
		attribute.String("sensor.trigger", "state_change"),
		attribute.String("tracker.state", change.NewState.State),
	))
	defer span.End()

	if change.NewState.State == homeassistant.StateHome {
		defer s.setPhase(PhaseIdle)
		span.SetAttributes(attribute.Bool("sensor.at_home", true))
		return s.publish(ctx, span, s.atHomeState())
	}

	s.setPhase(PhaseResolving)
	return s.run(ctx, span, change.NewState)
}

func (s *Sensor) run(ctx context.Context, span trace.Span, tracker *homeassistant.Entity) (State, bool) {
	defer s.setPhase(PhaseIdle)

	origin, err := tracker.Coordinate()
	if err != nil {
		return s.abort(span, err, "tracked entity has no valid location")
	}

	destination, err := s.home(ctx)
	if err != nil {
		return s.abort(span, err, "failed to resolve home location")
	}

	s.setPhase(PhaseRequesting)
	result := s.router.Route(ctx, routing.DirectionsRequest{
		APIKey:      s.entry.APIKey,
		Origin:      origin,
		Destination: destination,
		Mode:        s.entry.Mode,
		City:        s.entry.City,
	})
	if result == nil {
		return s.abort(span, routing.ErrNoRouteFound, "no route computed")
	}

	return s.publish(ctx, span, s.routeState(origin, destination, result))
}

// home returns the static home location, else the home zone's location.
func (s *Sensor) home(ctx context.Context) (geo.Coordinate, error) {
	if s.entry.HasStaticHome() {
		return geo.NewCoordinate(s.entry.HomeLongitude, s.entry.HomeLatitude)
	}

	zone, err := s.states.GetState(ctx, s.entry.HomeZoneEntityID)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return zone.Coordinate()
}

func (s *Sensor) publish(ctx context.Context, span trace.Span, state State) (State, bool) {
	s.setPhase(PhaseUpdating)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, state); err != nil {
			return s.abort(span, err, "failed to publish sensor state")
		}
	}

	s.mu.Lock()
	s.state = &state
	s.mu.Unlock()

	span.SetAttributes(attribute.String("sensor.state", state.Value))
	s.logger.Info().
		Str("state", state.Value).
		Interface(AttrDuration, state.Attributes[AttrDuration]).
		Msg("sensor updated")

	return cloneState(&state), true
}

func (s *Sensor) abort(span trace.Span, err error, msg string) (State, bool) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	event := s.logger.Warn()
	if errors.Is(err, homeassistant.ErrUnavailable) || errors.Is(err, homeassistant.ErrUnauthorized) {
		event = s.logger.Error()
	}
	event.Err(err).Msg(msg)

	s.setPhase(PhaseIdle)
	return s.current()
}

func (s *Sensor) current() (State, bool) {
	st, _ := s.State()
	return st, false
}

func (s *Sensor) routeState(origin, destination geo.Coordinate, result *routing.RouteResult) State {
	return State{
		EntityID: s.entry.SensorEntityID,
		EntryID:  s.entry.ID,
		Value:    format.Distance(result.DistanceMeters),
		Attributes: map[string]any{
			AttrDuration:        format.Duration(result.DurationSeconds),
			AttrMode:            s.entry.Mode.Label(),
			AttrDistanceMeters:  result.DistanceMeters,
			AttrDurationSeconds: result.DurationSeconds,
			AttrOrigin:          origin.String(),
			AttrDestination:     destination.String(),
			AttrDeviceTracker:   s.entry.DeviceTrackerEntityID,
			AttrFriendlyName:    s.entry.Title,
			AttrAtHome:          false,
		},
		UpdatedAt: s.now().UTC(),
	}
}

func (s *Sensor) atHomeState() State {
	return State{
		EntityID: s.entry.SensorEntityID,
		EntryID:  s.entry.ID,
		Value:    format.Distance(0),
		Attributes: map[string]any{
			AttrDuration:        format.Duration(0),
			AttrMode:            s.entry.Mode.Label(),
			AttrDistanceMeters:  0.0,
			AttrDurationSeconds: 0.0,
			AttrDeviceTracker:   s.entry.DeviceTrackerEntityID,
			AttrFriendlyName:    s.entry.Title,
			AttrAtHome:          true,
		},
		UpdatedAt: s.now().UTC(),
	}
}

func (s *Sensor) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

func cloneState(st *State) State {
	c := *st
	c.Attributes = maps.Clone(st.Attributes)
	return c
}

// String identifies the sensor in logs.
func (s *Sensor) String() string {
	return fmt.Sprintf("%s(%s)", s.entry.SensorEntityID, s.entry.ID)
}
