package entry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/geo"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

// Listener is notified after entries are created or deleted.
type Listener interface {
	EntryAdded(ctx context.Context, e *Entry)
	EntryRemoved(ctx context.Context, id string)
}

// ServiceConfig holds configuration for the entry service.
type ServiceConfig struct {
	Repository Repository
	Validator  *Validator
	Logger     zerolog.Logger
}

// Service validates, stores and announces entries.
type Service struct {
	repo      Repository
	validator *Validator
	logger    zerolog.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewService creates a new entry service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:      cfg.Repository,
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}
}

// Subscribe registers l for create and delete notifications.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Create validates in and stores it as a new entry. A rejected input returns
// a *ValidationError and stores nothing.
func (s *Service) Create(ctx context.Context, in Input) (*Entry, error) {
	if fields := s.validator.Validate(ctx, in); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	in = in.withDefaults()
	e := &Entry{
		ID:                    "ent_" + uuid.New().String()[:22],
		Title:                 in.Title,
		APIKey:                in.APIKey,
		DeviceTrackerEntityID: in.DeviceTrackerEntityID,
		SensorEntityID:        in.SensorEntityID,
		HomeZoneEntityID:      in.HomeZoneEntityID,
		Mode:                  routing.Mode(*in.Mode),
		UpdateIntervalMinutes: *in.UpdateIntervalMinutes,
		Trigger:               Trigger(in.Trigger),
		City:                  in.City,
		CreatedAt:             time.Now().UTC(),
	}

	if in.HomeLongitude != "" {
		// Validated above; store the rounded form.
		home, err := geo.NewCoordinate(in.HomeLongitude, in.HomeLatitude)
		if err != nil {
			return nil, &ValidationError{Fields: map[string]string{FieldHomeLocation: CodeInvalidHomeLocation}}
		}
		e.HomeLongitude = home.Longitude()
		e.HomeLatitude = home.Latitude()
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("entry_id", e.ID).
		Str("tracker", e.DeviceTrackerEntityID).
		Str("sensor", e.SensorEntityID).
		Str("mode", e.Mode.String()).
		Msg("entry created")

	for _, l := range s.snapshotListeners() {
		l.EntryAdded(ctx, e)
	}
	return e, nil
}

// Get retrieves an entry by ID.
func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves all entries.
func (s *Service) List(ctx context.Context) ([]*Entry, error) {
	return s.repo.List(ctx)
}

// Delete removes an entry and stops its sensor.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("entry_id", id).Msg("entry deleted")

	for _, l := range s.snapshotListeners() {
		l.EntryRemoved(ctx, id)
	}
	return nil
}

// Bootstrap creates the entry described by in unless an entry already
// publishes to the same sensor. It reports whether an entry was created.
func (s *Service) Bootstrap(ctx context.Context, in Input) (*Entry, bool, error) {
	sensorID := in.withDefaults().SensorEntityID

	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.SensorEntityID == sensorID {
			return e, false, nil
		}
	}

	e, err := s.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Load announces every stored entry to the listeners, used once at startup.
func (s *Service) Load(ctx context.Context) (int, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	listeners := s.snapshotListeners()
	for _, e := range entries {
		for _, l := range listeners {
			l.EntryAdded(ctx, e)
		}
	}
	return len(entries), nil
}

func (s *Service) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Listener(nil), s.listeners...)
}
