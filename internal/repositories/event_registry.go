package repositories

import (
	"sync"

	"example.com/flightguild/bot/internal/apperrors"
	"example.com/flightguild/bot/internal/models"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// EventRegistry holds active group events in memory for the life of the process.
// Readers get clones; all mutation goes through Update.
type EventRegistry struct {
	mu     sync.RWMutex
	events map[string]*models.GroupEvent
}

// NewEventRegistry creates an empty registry
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		events: make(map[string]*models.GroupEvent),
	}
}

// Create stores a new event; ids must be unique
func (r *EventRegistry) Create(event *models.GroupEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.ID]; exists {
		return errors.Wrapf(apperrors.ErrInvalidState, "event %s already exists", event.ID)
	}
	stored := event.Clone()
	if stored.Participants == nil {
		stored.Participants = make(map[string]struct{})
	}
	r.events[event.ID] = stored
	return nil
}

// Get returns a copy of the event
func (r *EventRegistry) Get(id string) (*models.GroupEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, false
	}
	return event.Clone(), true
}

// Update applies fn to the stored event under the registry lock and returns a copy of the result.
// If fn returns an error nothing is kept.
func (r *EventRegistry) Update(id string, fn func(event *models.GroupEvent) error) (*models.GroupEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "event %s", id)
	}
	working := event.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.events[id] = working
	return working.Clone(), nil
}

// Delete removes the event and returns its last state
func (r *EventRegistry) Delete(id string) (*models.GroupEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return nil, false
	}
	delete(r.events, id)
	return event, true
}

// AddParticipant inserts memberID; joining twice is a no-op
func (r *EventRegistry) AddParticipant(id, memberID string) (*models.GroupEvent, error) {
	return r.Update(id, func(event *models.GroupEvent) error {
		event.Participants[memberID] = struct{}{}
		return nil
	})
}

// RemoveParticipant removes memberID; leaving without joining is a no-op
func (r *EventRegistry) RemoveParticipant(id, memberID string) (*models.GroupEvent, error) {
	return r.Update(id, func(event *models.GroupEvent) error {
		delete(event.Participants, memberID)
		return nil
	})
}

// Participants returns the live participant ids of the event
func (r *EventRegistry) Participants(id string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, false
	}
	return lo.Keys(event.Participants), true
}

// Len returns the number of events held
func (r *EventRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
