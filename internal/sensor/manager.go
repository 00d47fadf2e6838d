package sensor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/tohomedistance/tohomedistance/internal/entry"
	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
)

// ErrSensorNotFound is returned for an unknown entry id.
var ErrSensorNotFound = errors.New("sensor not found")

// ManagerConfig holds the collaborators shared by every sensor.
type ManagerConfig struct {
	States    StateReader
	Router    Router
	Publisher Publisher
	Logger    zerolog.Logger
	Tracer    trace.Tracer

	// RefreshTimeout bounds a single update cycle (default: 30s).
	RefreshTimeout time.Duration
}

// Snapshot describes a sensor for inspection.
type Snapshot struct {
	EntryID  string
	EntityID string
	Tracker  string
	Mode     string
	Trigger  entry.Trigger
	Interval time.Duration
	Phase    Phase
	State    *State
}

// Manager runs one sensor per entry and routes triggers to them.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu      sync.RWMutex
	runners map[string]*runner
	ctx     context.Context // set while Run is active
	wg      sync.WaitGroup
}

type runner struct {
	sensor  *Sensor
	refresh chan struct{}
	changes chan homeassistant.StateChange
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a manager with no sensors.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		runners: make(map[string]*runner),
	}
}

// Add starts a sensor for e, replacing any sensor with the same entry id.
func (m *Manager) Add(e *entry.Entry) {
	s := New(Config{
		Entry:     e,
		States:    m.cfg.States,
		Router:    m.cfg.Router,
		Publisher: m.cfg.Publisher,
		Logger:    m.cfg.Logger,
		Tracer:    m.cfg.Tracer,
	})
	r := &runner{
		sensor:  s,
		refresh: make(chan struct{}, 1),
		changes: make(chan homeassistant.StateChange, 1),
	}

	m.mu.Lock()
	old := m.runners[e.ID]
	m.runners[e.ID] = r
	if m.ctx != nil {
		m.start(r)
	}
	m.mu.Unlock()

	if old != nil {
		old.stop()
	}

	m.logger.Info().
		Str("entry_id", e.ID).
		Str("sensor", e.SensorEntityID).
		Str("trigger", string(e.Trigger)).
		Dur("interval", e.Interval()).
		Msg("sensor added")
}

// Remove stops and forgets the sensor of entry id.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	r, ok := m.runners[id]
	delete(m.runners, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	r.stop()
	m.logger.Info().Str("entry_id", id).Msg("sensor removed")
	return true
}

// EntryAdded implements entry.Listener.
func (m *Manager) EntryAdded(_ context.Context, e *entry.Entry) {
	m.Add(e)
}

// EntryRemoved implements entry.Listener.
func (m *Manager) EntryRemoved(_ context.Context, id string) {
	m.Remove(id)
}

// Dispatch hands a state change to every state-change sensor tracking the
// changed entity and returns how many received it. A sensor that is busy
// keeps only the most recent change.
func (m *Manager) Dispatch(change homeassistant.StateChange) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.runners {
		e := r.sensor.Entry()
		if e.Trigger != entry.TriggerStateChange || e.DeviceTrackerEntityID != change.EntityID {
			continue
		}
		offerLatest(r.changes, change)
		n++
	}
	return n
}

// Refresh runs an update cycle of entry id now and returns its outcome.
func (m *Manager) Refresh(ctx context.Context, id string) (State, bool, error) {
	m.mu.RLock()
	r, ok := m.runners[id]
	m.mu.RUnlock()
	if !ok {
		return State{}, false, ErrSensorNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	st, updated := r.sensor.Update(ctx)
	return st, updated, nil
}

// RequestRefresh queues an update cycle of entry id on its runner.
func (m *Manager) RequestRefresh(id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runners[id]
	if !ok {
		return ErrSensorNotFound
	}
	select {
	case r.refresh <- struct{}{}:
	default:
	}
	return nil
}

// State returns the last published state of entry id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.RLock()
	r, ok := m.runners[id]
	m.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return r.sensor.State()
}

// States returns the published states of every sensor, sorted by entity id.
func (m *Manager) States() []State {
	m.mu.RLock()
	states := make([]State, 0, len(m.runners))
	for _, r := range m.runners {
		if st, ok := r.sensor.State(); ok {
			states = append(states, st)
		}
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
	return states
}

// Snapshot describes the sensor of entry id.
func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	m.mu.RLock()
	r, ok := m.runners[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(r.sensor), true
}

// Snapshots describes every sensor, sorted by entity id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	snaps := make([]Snapshot, 0, len(m.runners))
	for _, r := range m.runners {
		snaps = append(snaps, snapshotOf(r.sensor))
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].EntityID < snaps[j].EntityID })
	return snaps
}

// Len returns the number of sensors.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

// Run starts every sensor and blocks until ctx is canceled, then stops them.
// Sensors added while running start immediately.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return errors.New("sensor manager already running")
	}
	m.ctx = ctx
	for _, r := range m.runners {
		m.start(r)
	}
	m.mu.Unlock()

	m.logger.Info().Int("sensors", m.Len()).Msg("sensor manager started")

	<-ctx.Done()

	m.mu.Lock()
	m.ctx = nil
	m.mu.Unlock()
	m.wg.Wait()

	m.logger.Info().Msg("sensor manager stopped")
	return nil
}

// start launches r under the running context. m.mu must be held.
func (m *Manager) start(r *runner) {
	ctx, cancel := context.WithCancel(m.ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		r.loop(ctx, m.cfg.RefreshTimeout)
	}()
}

func (r *runner) stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *runner) loop(ctx context.Context, timeout time.Duration) {
	e := r.sensor.Entry()

	var tick <-chan time.Time
	if e.Trigger == entry.TriggerInterval && e.Interval() > 0 {
		ticker := time.NewTicker(e.Interval())
		defer ticker.Stop()
		tick = ticker.C
	}

	update := func() {
		cycleCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		r.sensor.Update(cycleCtx)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			update()
		case <-r.refresh:
			update()
		case change := <-r.changes:
			cycleCtx, cancel := context.WithTimeout(ctx, timeout)
			r.sensor.HandleStateChange(cycleCtx, change)
			cancel()
		}
	}
}

// offerLatest sends v on a buffered channel, replacing a pending value.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func snapshotOf(s *Sensor) Snapshot {
	e := s.Entry()
	snap := Snapshot{
		EntryID:  e.ID,
		EntityID: e.SensorEntityID,
		Tracker:  e.DeviceTrackerEntityID,
		Mode:     e.Mode.Label(),
		Trigger:  e.Trigger,
		Interval: e.Interval(),
		Phase:    s.Phase(),
	}
	if st, ok := s.State(); ok {
		snap.State = &st
	}
	return snap
}
