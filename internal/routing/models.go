// Package routing computes travel distance and duration between two points
// for a mode of transportation.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tohomedistance/tohomedistance/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the provider could not be reached or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrProviderRejected indicates the provider answered with a non-success status.
	ErrProviderRejected = errors.New("routing provider rejected the request")
	// ErrNoRouteFound indicates a successful response that carried no path.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrInvalidCoordinates indicates a missing origin or destination.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnknownMode indicates a mode with no entry in the mode table.
	ErrUnknownMode = errors.New("unknown mode of transportation")
	// ErrInvalidAPIKey indicates the provider did not accept the API key.
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// Provider defines the interface for directions providers.
type Provider interface {
	// GetDirections returns the distance and duration of the first route
	// between the request's origin and destination.
	GetDirections(ctx context.Context, req DirectionsRequest) (*RouteResult, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Mode is a mode of transportation. The integer values are the codes users
// choose from during setup.
type Mode int

const (
	ModeWalking   Mode = 1
	ModeTransit   Mode = 2
	ModeDriving   Mode = 3
	ModeBicycling Mode = 4
)

// DefaultMode is used when setup input leaves the mode empty.
const DefaultMode = ModeWalking

var modeNames = map[Mode]string{
	ModeWalking:   "walking",
	ModeTransit:   "transit",
	ModeDriving:   "driving",
	ModeBicycling: "bicycling",
}

var modeLabels = map[Mode]string{
	ModeWalking:   "步行",
	ModeTransit:   "公交/地铁",
	ModeDriving:   "驾车",
	ModeBicycling: "骑行",
}

// Modes returns all known modes in code order.
func Modes() []Mode {
	return []Mode{ModeWalking, ModeTransit, ModeDriving, ModeBicycling}
}

// Valid reports whether m is one of the four known codes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// String returns the mode name, e.g. "driving".
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Label returns the display label published as a sensor attribute.
func (m Mode) Label() string {
	return modeLabels[m]
}

// DirectionsRequest is the request for a single route computation.
type DirectionsRequest struct {
	APIKey      string
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Mode        Mode
	// City is required by the provider for transit routing; ignored otherwise.
	City string
}

// RouteResult holds the first route returned by the provider.
type RouteResult struct {
	DistanceMeters  float64
	DurationSeconds float64
	Provider        string
	FetchedAt       time.Time
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the next trigger may succeed without any change in input.
func (e *Error) IsTransient() bool {
	return errors.Is(e.Err, ErrProviderUnavailable)
}
