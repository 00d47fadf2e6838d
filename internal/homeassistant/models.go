// Package homeassistant talks to a Home Assistant instance: entity states over
// the REST API and state_changed events over the WebSocket API.
package homeassistant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tohomedistance/tohomedistance/internal/geo"
)

// Sentinel errors for Home Assistant operations.
var (
	// ErrEntityNotFound indicates the entity does not exist.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnauthorized indicates the access token was rejected.
	ErrUnauthorized = errors.New("home assistant rejected the access token")
	// ErrUnavailable indicates Home Assistant could not be reached.
	ErrUnavailable = errors.New("home assistant unavailable")
	// ErrNoLocation indicates an entity without usable longitude/latitude attributes.
	ErrNoLocation = errors.New("entity has no location")
)

// Attribute names read from tracked entities and zones.
const (
	AttrLongitude    = "longitude"
	AttrLatitude     = "latitude"
	AttrFriendlyName = "friendly_name"
)

// StateHome is the state a device tracker reports inside the home zone.
const StateHome = "home"

// Entity is the state object Home Assistant returns for an entity.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the part of the entity id before the first dot.
func (e *Entity) Domain() string {
	return Domain(e.EntityID)
}

// Coordinate reads the longitude and latitude attributes.
func (e *Entity) Coordinate() (geo.Coordinate, error) {
	lng, ok := geo.FromAttribute(e.Attributes[AttrLongitude])
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %s has no %s", ErrNoLocation, e.EntityID, AttrLongitude)
	}
	lat, ok := geo.FromAttribute(e.Attributes[AttrLatitude])
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %s has no %s", ErrNoLocation, e.EntityID, AttrLatitude)
	}
	return geo.NewCoordinate(lng, lat)
}

// StateUpdate is the body of a state write.
type StateUpdate struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// StateChange is the payload of a state_changed event.
type StateChange struct {
	EntityID string  `json:"entity_id"`
	OldState *Entity `json:"old_state"`
	NewState *Entity `json:"new_state"`
}

// Domain returns the part of entityID before the first dot.
func Domain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}
