package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/api/models"
	"github.com/tohomedistance/tohomedistance/internal/api/response"
	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/sensor"
)

// SensorService exposes the running sensors.
type SensorService interface {
	Snapshots() []sensor.Snapshot
	Snapshot(id string) (sensor.Snapshot, bool)
	Refresh(ctx context.Context, id string) (sensor.State, bool, error)
}

// SensorHandler handles sensor endpoints.
type SensorHandler struct {
	sensors SensorService
	logger  zerolog.Logger
}

// NewSensorHandler creates a new SensorHandler.
func NewSensorHandler(sensors SensorService, logger zerolog.Logger) *SensorHandler {
	return &SensorHandler{sensors: sensors, logger: logger}
}

// ListSensors handles GET /v1/sensors.
func (h *SensorHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	snaps := h.sensors.Snapshots()
	list := models.SensorList{Items: make([]models.Sensor, 0, len(snaps))}
	for _, s := range snaps {
		list.Items = append(list.Items, toSensorModel(s))
	}
	list.Meta.Count = len(list.Items)
	response.JSON(w, r, http.StatusOK, list)
}

// GetSensor handles GET /v1/sensors/{entryId}.
func (h *SensorHandler) GetSensor(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.sensors.Snapshot(chi.URLParam(r, "entryId"))
	if !ok {
		response.NotFound(w, r, "sensor not found")
		return
	}
	response.JSON(w, r, http.StatusOK, toSensorModel(snap))
}

// RefreshSensor handles POST /v1/sensors/{entryId}/refresh - runs one update
// cycle now. A failed cycle is not an error: the previous state is kept and
// reported with updated=false.
func (h *SensorHandler) RefreshSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryId")

	_, updated, err := h.sensors.Refresh(r.Context(), id)
	if err != nil {
		if errors.Is(err, sensor.ErrSensorNotFound) {
			response.NotFound(w, r, "sensor not found")
			return
		}
		h.logger.Error().Err(err).Str("entry_id", id).Msg("refreshing sensor")
		response.InternalError(w, r, "failed to refresh sensor")
		return
	}

	snap, ok := h.sensors.Snapshot(id)
	if !ok {
		// Removed while refreshing.
		response.NotFound(w, r, "sensor not found")
		return
	}
	response.JSON(w, r, http.StatusOK, models.RefreshResult{Updated: updated, Sensor: toSensorModel(snap)})
}

func toSensorModel(s sensor.Snapshot) models.Sensor {
	out := models.Sensor{
		EntryID:               s.EntryID,
		EntityID:              s.EntityID,
		DeviceTrackerEntityID: s.Tracker,
		Mode:                  s.Mode,
		Trigger:               string(s.Trigger),
		Phase:                 s.Phase.String(),
	}
	if s.Trigger == entry.TriggerInterval {
		out.UpdateIntervalSeconds = int64(s.Interval.Seconds())
	}
	if s.State != nil {
		out.State = &models.SensorState{
			State:      s.State.Value,
			Attributes: s.State.Attributes,
			UpdatedAt:  models.Timestamp(s.State.UpdatedAt),
		}
	}
	return out
}
