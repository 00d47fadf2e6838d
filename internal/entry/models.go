// Package entry holds the configured to-home sensors: their setup validation,
// persistence and change notification.
package entry

import (
	"errors"
	"strings"
	"time"

	"github.com/tohomedistance/tohomedistance/internal/routing"
)

// Entry errors.
var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrDuplicate     = errors.New("an entry for this tracker already exists")
)

// Defaults applied to empty setup fields.
const (
	DefaultTitle                 = "To Home Distance"
	DefaultHomeZoneEntityID      = "zone.home"
	DefaultUpdateIntervalMinutes = 5
	DefaultMode                  = routing.DefaultMode
	DefaultTrigger               = TriggerInterval
)

// Entity domains accepted during setup.
const (
	DomainDeviceTracker = "device_tracker"
	DomainZone          = "zone"
	DomainSensor        = "sensor"
)

// Trigger selects what starts an update cycle.
type Trigger string

const (
	// TriggerInterval updates on a fixed period.
	TriggerInterval Trigger = "interval"
	// TriggerStateChange updates whenever the tracked entity changes state.
	TriggerStateChange Trigger = "state_change"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	return t == TriggerInterval || t == TriggerStateChange
}

// Entry is a persisted sensor configuration. It does not change after creation.
type Entry struct {
	ID                    string
	Title                 string
	APIKey                string
	DeviceTrackerEntityID string
	SensorEntityID        string
	HomeZoneEntityID      string
	// HomeLongitude and HomeLatitude override the home zone when both are set.
	HomeLongitude         string
	HomeLatitude          string
	Mode                  routing.Mode
	UpdateIntervalMinutes int
	Trigger               Trigger
	City                  string
	CreatedAt             time.Time
}

// Interval returns the update period.
func (e *Entry) Interval() time.Duration {
	return time.Duration(e.UpdateIntervalMinutes) * time.Minute
}

// HasStaticHome reports whether the home location is given as coordinates.
func (e *Entry) HasStaticHome() bool {
	return e.HomeLongitude != "" && e.HomeLatitude != ""
}

// Input is the setup form as submitted. Zero values select defaults.
type Input struct {
	Title                 string
	APIKey                string
	DeviceTrackerEntityID string
	SensorEntityID        string
	HomeZoneEntityID      string
	HomeLongitude         string
	HomeLatitude          string
	Mode                  *int
	UpdateIntervalMinutes *int
	Trigger               string
	City                  string
}

// withDefaults returns a copy of in with every empty optional field defaulted.
func (in Input) withDefaults() Input {
	in.Title = strings.TrimSpace(in.Title)
	in.APIKey = strings.TrimSpace(in.APIKey)
	in.DeviceTrackerEntityID = strings.TrimSpace(in.DeviceTrackerEntityID)
	in.SensorEntityID = strings.TrimSpace(in.SensorEntityID)
	in.HomeZoneEntityID = strings.TrimSpace(in.HomeZoneEntityID)
	in.HomeLongitude = strings.TrimSpace(in.HomeLongitude)
	in.HomeLatitude = strings.TrimSpace(in.HomeLatitude)
	in.City = strings.TrimSpace(in.City)

	if in.Title == "" {
		in.Title = DefaultTitle
	}
	if in.HomeZoneEntityID == "" {
		in.HomeZoneEntityID = DefaultHomeZoneEntityID
	}
	if in.Mode == nil {
		mode := int(DefaultMode)
		in.Mode = &mode
	}
	if in.UpdateIntervalMinutes == nil {
		interval := DefaultUpdateIntervalMinutes
		in.UpdateIntervalMinutes = &interval
	}
	if in.Trigger == "" {
		in.Trigger = string(DefaultTrigger)
	}
	if in.SensorEntityID == "" {
		in.SensorEntityID = defaultSensorEntityID(in.DeviceTrackerEntityID)
	}
	return in
}

// defaultSensorEntityID derives "sensor.<tracker object id>_to_home" from the tracker id.
func defaultSensorEntityID(trackerID string) string {
	_, object, ok := strings.Cut(trackerID, ".")
	if !ok || object == "" {
		object = "tracker"
	}
	return DomainSensor + "." + object + "_to_home"
}

// ValidationError is returned when setup input is rejected. Fields maps each
// offending field to an error code.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
