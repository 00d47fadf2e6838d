package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tohomedistance/tohomedistance/internal/api/handler"
	"github.com/tohomedistance/tohomedistance/internal/api/models"
	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

type fakeKeys struct{}

func (fakeKeys) ValidateKey(_ context.Context, key string) error {
	if key == "amap-key-1234" {
		return nil
	}
	return routing.ErrInvalidAPIKey
}

func newEntryRouter(t *testing.T) (http.Handler, *entry.Service) {
	t.Helper()
	svc := entry.NewService(entry.ServiceConfig{
		Repository: entry.NewInMemoryRepository(),
		Validator:  entry.NewValidator(fakeKeys{}, zerolog.Nop()),
		Logger:     zerolog.Nop(),
	})
	h := handler.NewEntryHandler(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/v1/entries", h.ListEntries)
	r.Post("/v1/entries", h.CreateEntry)
	r.Get("/v1/entries/{entryId}", h.GetEntry)
	r.Delete("/v1/entries/{entryId}", h.DeleteEntry)
	return r, svc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateEntry(t *testing.T) {
	r, _ := newEntryRouter(t)

	rec := do(r, http.MethodPost, "/v1/entries", `{
		"api_key": "amap-key-1234",
		"device_tracker_entity_id": "device_tracker.phone",
		"mode_of_transportation": 3
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got models.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, strings.HasPrefix(got.ID, "ent_"))
	assert.Equal(t, "/v1/entries/"+got.ID, rec.Header().Get("Location"))
	assert.Equal(t, "****1234", got.APIKey)
	assert.Equal(t, "sensor.phone_to_home", got.SensorEntityID)
	assert.Equal(t, "zone.home", got.HomeZoneEntityID)
	assert.Equal(t, 3, got.ModeOfTransportation)
	assert.Equal(t, "驾车", got.Mode)
	assert.Equal(t, 5, got.UpdateInterval)
	assert.Equal(t, "interval", got.Trigger)
}

func TestCreateEntry_Validation(t *testing.T) {
	r, _ := newEntryRouter(t)

	rec := do(r, http.MethodPost, "/v1/entries", `{
		"api_key": "wrong",
		"device_tracker_entity_id": "person.me",
		"mode_of_transportation": 9,
		"update_interval": 0
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, map[string]string{
		entry.FieldAPIKey:                entry.CodeInvalidAPIKey,
		entry.FieldDeviceTrackerEntityID: entry.CodeInvalidDomain,
		entry.FieldMode:                  entry.CodeInvalidMode,
		entry.FieldUpdateInterval:        entry.CodeInvalidUpdateInterval,
	}, problem.Errors)
	assert.Equal(t, "/v1/entries", problem.Instance)
}

func TestCreateEntry_BadBody(t *testing.T) {
	r, _ := newEntryRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"api_key":`},
		{"unknown field", `{"api_key":"amap-key-1234","device_tracker_entity_id":"device_tracker.phone","colour":"red"}`},
		{"wrong type", `{"mode_of_transportation":"walking"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/v1/entries", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateEntry_Duplicate(t *testing.T) {
	r, _ := newEntryRouter(t)
	body := `{"api_key":"amap-key-1234","device_tracker_entity_id":"device_tracker.phone"}`

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/v1/entries", body).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/v1/entries", body).Code)
}

func TestEntryLifecycle(t *testing.T) {
	r, svc := newEntryRouter(t)

	e, err := svc.Create(context.Background(), entry.Input{
		APIKey:                "amap-key-1234",
		DeviceTrackerEntityID: "device_tracker.car",
		HomeLongitude:         "116.4074171",
		HomeLatitude:          "39.9040300",
	})
	require.NoError(t, err)

	rec := do(r, http.MethodGet, "/v1/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.EntryList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Meta.Count)
	assert.Equal(t, "116.407417", list.Items[0].HomeLongitude)

	rec = do(r, http.MethodGet, "/v1/entries/"+e.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"device_tracker_entity_id":"device_tracker.car"`)
	assert.NotContains(t, rec.Body.String(), "amap-key-1234")

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/v1/entries/"+e.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/v1/entries/"+e.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/v1/entries/"+e.ID, "").Code)
}
