package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/api/models"
	"github.com/tohomedistance/tohomedistance/internal/api/response"
	"github.com/tohomedistance/tohomedistance/internal/entry"
)

// maxEntryBodyBytes bounds the body of a create request.
const maxEntryBodyBytes = 64 << 10

// EntryService manages configured entries.
type EntryService interface {
	Create(ctx context.Context, in entry.Input) (*entry.Entry, error)
	Get(ctx context.Context, id string) (*entry.Entry, error)
	List(ctx context.Context) ([]*entry.Entry, error)
	Delete(ctx context.Context, id string) error
}

// EntryHandler handles entry endpoints.
type EntryHandler struct {
	entries EntryService
	logger  zerolog.Logger
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entries EntryService, logger zerolog.Logger) *EntryHandler {
	return &EntryHandler{entries: entries, logger: logger}
}

// ListEntries handles GET /v1/entries.
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing entries")
		response.InternalError(w, r, "failed to list entries")
		return
	}

	list := models.EntryList{Items: make([]models.Entry, 0, len(entries))}
	for _, e := range entries {
		list.Items = append(list.Items, toEntryModel(e))
	}
	list.Meta.Count = len(list.Items)
	response.JSON(w, r, http.StatusOK, list)
}

// CreateEntry handles POST /v1/entries. Rejected fields are reported as a
// validation problem keyed by field name.
func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req models.EntryCreateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntryBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	e, err := h.entries.Create(r.Context(), toEntryInput(req))
	if err != nil {
		var verr *entry.ValidationError
		switch {
		case errors.As(err, &verr):
			response.Validation(w, r, verr.Fields)
		case errors.Is(err, entry.ErrDuplicate):
			response.Conflict(w, r, "a sensor with this entity id is already configured")
		default:
			h.logger.Error().Err(err).Msg("creating entry")
			response.InternalError(w, r, "failed to create entry")
		}
		return
	}

	response.Created(w, r, "/v1/entries/"+e.ID, toEntryModel(e))
}

// GetEntry handles GET /v1/entries/{entryId}.
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.entries.Get(r.Context(), chi.URLParam(r, "entryId"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toEntryModel(e))
}

// DeleteEntry handles DELETE /v1/entries/{entryId}. The entry's sensor stops.
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.Delete(r.Context(), chi.URLParam(r, "entryId")); err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *EntryHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, entry.ErrEntryNotFound) {
		response.NotFound(w, r, "entry not found")
		return
	}
	h.logger.Error().Err(err).Str("entry_id", chi.URLParam(r, "entryId")).Msg("entry lookup")
	response.InternalError(w, r, "failed to load entry")
}

func toEntryInput(req models.EntryCreateRequest) entry.Input {
	return entry.Input{
		Title:                 req.Title,
		APIKey:                req.APIKey,
		DeviceTrackerEntityID: req.DeviceTrackerEntityID,
		SensorEntityID:        req.SensorEntityID,
		HomeZoneEntityID:      req.HomeZoneEntityID,
		HomeLongitude:         req.HomeLongitude,
		HomeLatitude:          req.HomeLatitude,
		Mode:                  req.ModeOfTransportation,
		UpdateIntervalMinutes: req.UpdateInterval,
		Trigger:               req.Trigger,
		City:                  req.City,
	}
}

func toEntryModel(e *entry.Entry) models.Entry {
	return models.Entry{
		ID:                    e.ID,
		Title:                 e.Title,
		APIKey:                maskKey(e.APIKey),
		DeviceTrackerEntityID: e.DeviceTrackerEntityID,
		SensorEntityID:        e.SensorEntityID,
		HomeZoneEntityID:      e.HomeZoneEntityID,
		HomeLongitude:         e.HomeLongitude,
		HomeLatitude:          e.HomeLatitude,
		ModeOfTransportation:  int(e.Mode),
		Mode:                  e.Mode.Label(),
		UpdateInterval:        e.UpdateIntervalMinutes,
		Trigger:               string(e.Trigger),
		City:                  e.City,
		CreatedAt:             models.Timestamp(e.CreatedAt),
	}
}

// maskKey keeps the last four characters of key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
