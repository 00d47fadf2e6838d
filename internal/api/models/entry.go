package models

// EntryCreateRequest is the body of POST /v1/entries. Omitted optional
// fields take their defaults.
type EntryCreateRequest struct {
	Title                 string `json:"title,omitempty"`
	APIKey                string `json:"api_key"`
	DeviceTrackerEntityID string `json:"device_tracker_entity_id"`
	SensorEntityID        string `json:"sensor_entity_id,omitempty"`
	HomeZoneEntityID      string `json:"home_zone_entity_id,omitempty"`
	HomeLongitude         string `json:"home_longitude,omitempty"`
	HomeLatitude          string `json:"home_latitude,omitempty"`
	ModeOfTransportation  *int   `json:"mode_of_transportation,omitempty"`
	UpdateInterval        *int   `json:"update_interval,omitempty"`
	Trigger               string `json:"trigger,omitempty"`
	City                  string `json:"city,omitempty"`
}

// Entry is a configured sensor. The API key is never returned in full.
type Entry struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	APIKey                string    `json:"api_key"`
	DeviceTrackerEntityID string    `json:"device_tracker_entity_id"`
	SensorEntityID        string    `json:"sensor_entity_id"`
	HomeZoneEntityID      string    `json:"home_zone_entity_id,omitempty"`
	HomeLongitude         string    `json:"home_longitude,omitempty"`
	HomeLatitude          string    `json:"home_latitude,omitempty"`
	ModeOfTransportation  int       `json:"mode_of_transportation"`
	Mode                  string    `json:"mode"`
	UpdateInterval        int       `json:"update_interval"`
	Trigger               string    `json:"trigger"`
	City                  string    `json:"city,omitempty"`
	CreatedAt             Timestamp `json:"created_at"`
}

// EntryList is the body of GET /v1/entries.
type EntryList struct {
	Items []Entry  `json:"items"`
	Meta  ListMeta `json:"meta"`
}
