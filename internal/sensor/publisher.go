package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/tohomedistance/tohomedistance/internal/homeassistant"
)

// StateWriter writes entity states to the host.
type StateWriter interface {
	SetState(ctx context.Context, entityID string, update homeassistant.StateUpdate) error
}

// HostPublisher publishes sensor states as Home Assistant entity states.
type HostPublisher struct {
	writer StateWriter
}

// NewHostPublisher creates a publisher writing through w.
func NewHostPublisher(w StateWriter) *HostPublisher {
	return &HostPublisher{writer: w}
}

// Publish writes state to the sensor's entity.
func (p *HostPublisher) Publish(ctx context.Context, state State) error {
	err := p.writer.SetState(ctx, state.EntityID, homeassistant.StateUpdate{
		State:      state.Value,
		Attributes: state.Attributes,
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", state.EntityID, err)
	}
	return nil
}

// MultiPublisher publishes to every publisher in order. The first publisher
// is authoritative: its failure fails the publish. Failures of the others
// are passed to onError.
type MultiPublisher struct {
	primary   Publisher
	secondary []Publisher
	onError   func(error)
}

// NewMultiPublisher creates a publisher fanning out from primary to secondary.
func NewMultiPublisher(primary Publisher, onError func(error), secondary ...Publisher) *MultiPublisher {
	return &MultiPublisher{primary: primary, secondary: secondary, onError: onError}
}

// Publish delivers state to the primary publisher, then to the rest.
func (m *MultiPublisher) Publish(ctx context.Context, state State) error {
	if err := m.primary.Publish(ctx, state); err != nil {
		return err
	}

	var errs []error
	for _, p := range m.secondary {
		if err := p.Publish(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && m.onError != nil {
		m.onError(err)
	}
	return nil
}
