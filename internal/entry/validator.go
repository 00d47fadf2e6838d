package entry

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/geo"
	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

// Form field names, as reported in validation errors.
const (
	FieldAPIKey                = "api_key"
	FieldDeviceTrackerEntityID = "device_tracker_entity_id"
	FieldSensorEntityID        = "sensor_entity_id"
	FieldHomeZoneEntityID      = "home_zone_entity_id"
	FieldHomeLocation          = "home_location"
	FieldMode                  = "mode_of_transportation"
	FieldUpdateInterval        = "update_interval"
	FieldTrigger               = "trigger"
)

// Validation error codes.
const (
	CodeInvalidDomain         = "invalid_domain"
	CodeInvalidMode           = "invalid_mode"
	CodeInvalidUpdateInterval = "invalid_update_interval"
	CodeInvalidAPIKey         = "invalid_api_key"
	CodeInvalidHomeLocation   = "invalid_home_location"
	CodeInvalidHomeZone       = "invalid_home_zone"
	CodeInvalidSensorEntityID = "invalid_sensor_entity_id"
	CodeInvalidTrigger        = "invalid_trigger"
)

// KeyValidator checks an API key against the directions provider.
type KeyValidator interface {
	ValidateKey(ctx context.Context, key string) error
}

// Validator checks setup input.
type Validator struct {
	keys   KeyValidator
	logger zerolog.Logger
}

// NewValidator creates a validator that checks API keys with keys.
func NewValidator(keys KeyValidator, logger zerolog.Logger) *Validator {
	return &Validator{keys: keys, logger: logger}
}

// Validate returns a field to error code map; an empty map means the input is
// acceptable. Defaults are applied before checking, so omitted optional
// fields never fail. The API key check is one outbound call and any failure
// of that call rejects the key.
func (v *Validator) Validate(ctx context.Context, in Input) map[string]string {
	in = in.withDefaults()
	errs := make(map[string]string)

	if domain, object, _ := strings.Cut(in.DeviceTrackerEntityID, "."); domain != DomainDeviceTracker || object == "" {
		errs[FieldDeviceTrackerEntityID] = CodeInvalidDomain
	}

	if !routing.Mode(*in.Mode).Valid() {
		errs[FieldMode] = CodeInvalidMode
	}

	if *in.UpdateIntervalMinutes <= 0 {
		errs[FieldUpdateInterval] = CodeInvalidUpdateInterval
	}

	if !Trigger(in.Trigger).Valid() {
		errs[FieldTrigger] = CodeInvalidTrigger
	}

	if domain, object, _ := strings.Cut(in.SensorEntityID, "."); domain != DomainSensor || object == "" {
		errs[FieldSensorEntityID] = CodeInvalidSensorEntityID
	}

	if in.HomeLongitude != "" || in.HomeLatitude != "" {
		if _, err := geo.NewCoordinate(in.HomeLongitude, in.HomeLatitude); err != nil {
			errs[FieldHomeLocation] = CodeInvalidHomeLocation
		}
	} else if homeassistant.Domain(in.HomeZoneEntityID) != DomainZone {
		errs[FieldHomeZoneEntityID] = CodeInvalidHomeZone
	}

	if in.APIKey == "" {
		errs[FieldAPIKey] = CodeInvalidAPIKey
	} else if err := v.keys.ValidateKey(ctx, in.APIKey); err != nil {
		v.logger.Info().Err(err).Msg("api key rejected during setup")
		errs[FieldAPIKey] = CodeInvalidAPIKey
	}

	return errs
}
