package homeassistant

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Store is an in-memory state store with the same read/write surface as Client.
// It backs tests and runs without a Home Assistant instance.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]*Entity),
	}
}

// Put stores a copy of entity, replacing any previous state.
func (s *Store) Put(entity Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.EntityID] = cloneEntity(&entity)
}

// GetState returns a copy of the stored entity.
func (s *Store) GetState(_ context.Context, entityID string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return cloneEntity(e), nil
}

// SetState writes a state, keeping LastChanged when the state string is unchanged.
func (s *Store) SetState(_ context.Context, entityID string, update StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	e, ok := s.entities[entityID]
	if !ok {
		e = &Entity{EntityID: entityID, LastChanged: now}
		s.entities[entityID] = e
	} else if e.State != update.State {
		e.LastChanged = now
	}
	e.State = update.State
	e.Attributes = maps.Clone(update.Attributes)
	e.LastUpdated = now
	return nil
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func cloneEntity(e *Entity) *Entity {
	c := *e
	c.Attributes = maps.Clone(e.Attributes)
	return &c
}
