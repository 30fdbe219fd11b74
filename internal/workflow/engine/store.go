package engine

import (
	"sync"
	"time"

	"assessportal/platform/apperr"

	"github.com/google/uuid"
)

// Store owns the canonical timeline per (clientID, serviceID) pair.
// Transitions on different timelines execute fully in parallel; transitions
// on the same timeline serialize on the entry lock. Readers always receive a
// detached deep copy, so a read never observes a half-applied transition.
type Store struct {
	mu      sync.RWMutex
	entries map[timelineKey]*entry

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

type timelineKey struct {
	clientID  uuid.UUID
	serviceID uuid.UUID
}

type entry struct {
	mu sync.RWMutex
	t  *Timeline
}

// NewStore creates an empty timeline store.
func NewStore() *Store {
	return &Store{
		entries: make(map[timelineKey]*entry),
		Now:     time.Now,
	}
}

const timelineNotFoundMessage = "timeline not found for client-service pair"

// Create registers a timeline for a freshly onboarded client-service pair.
// Stage 0 begins in-progress. Creating an existing pair is a conflict: a
// timeline is never recreated while the mapping exists, only rewound.
func (s *Store) Create(clientID, serviceID, manager, tester uuid.UUID) (*Timeline, error) {
	if clientID == uuid.Nil || serviceID == uuid.Nil {
		return nil, apperr.Validation("clientId and serviceId are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := timelineKey{clientID: clientID, serviceID: serviceID}
	if _, exists := s.entries[k]; exists {
		return nil, apperr.Conflict("timeline already exists for this client-service pair")
	}

	t := NewTimeline(clientID, serviceID, manager, tester, s.Now())
	s.entries[k] = &entry{t: t}
	return t.Clone(), nil
}

// Get returns a consistent snapshot of one timeline.
func (s *Store) Get(clientID, serviceID uuid.UUID) (*Timeline, error) {
	e, err := s.lookup(clientID, serviceID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.t.Clone(), nil
}

// List returns snapshots of every timeline, for the projection layer.
func (s *Store) List() []*Timeline {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Timeline, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.t.Clone())
		e.mu.RUnlock()
	}
	return out
}

// Apply is the single write path. The transition runs against a private
// clone; only a fully successful transition is swapped in, so a failed
// apply leaves no partial state behind.
func (s *Store) Apply(clientID, serviceID uuid.UUID, actor Actor, action Action) (*Timeline, *Outcome, error) {
	e, err := s.lookup(clientID, serviceID)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if action.ExpectedVersion != 0 && action.ExpectedVersion != e.t.Version {
		return nil, nil, apperr.Conflict("timeline was modified concurrently; re-fetch and retry")
	}

	next := e.t.Clone()
	outcome, err := apply(next, actor, action, s.Now())
	if err != nil {
		return nil, nil, err
	}

	next.LastUpdated = s.Now()
	e.t = next
	return next.Clone(), outcome, nil
}

// Restore loads persisted snapshots into the store at startup, replacing
// any in-memory state for the same pairs.
func (s *Store) Restore(snapshots []*Timeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range snapshots {
		if t == nil {
			continue
		}
		k := timelineKey{clientID: t.ClientID, serviceID: t.ServiceID}
		s.entries[k] = &entry{t: t.Clone()}
	}
}

func (s *Store) lookup(clientID, serviceID uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[timelineKey{clientID: clientID, serviceID: serviceID}]
	if !ok {
		return nil, apperr.NotFound(timelineNotFoundMessage)
	}
	return e, nil
}
