package models

// SensorState is the last published state of a sensor.
type SensorState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  Timestamp      `json:"updated_at"`
}

// Sensor describes a running sensor.
type Sensor struct {
	EntryID               string       `json:"entry_id"`
	EntityID              string       `json:"entity_id"`
	DeviceTrackerEntityID string       `json:"device_tracker_entity_id"`
	Mode                  string       `json:"mode"`
	Trigger               string       `json:"trigger"`
	UpdateIntervalSeconds int64        `json:"update_interval_seconds"`
	Phase                 string       `json:"phase"`
	State                 *SensorState `json:"state,omitempty"`
}

// SensorList is the body of GET /v1/sensors.
type SensorList struct {
	Items []Sensor `json:"items"`
	Meta  ListMeta `json:"meta"`
}

// RefreshResult is the body of POST /v1/sensors/{entryId}/refresh.
// Updated is false when the cycle failed and the previous state was kept.
type RefreshResult struct {
	Updated bool   `json:"updated"`
	Sensor  Sensor `json:"sensor"`
}
