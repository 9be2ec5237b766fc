package ledger

import (
	"context"
	"sync"
	"time"

	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
)

// MemoryStore is the in-memory Store used by unit tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[id.DocumentID][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[id.DocumentID][]Event)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.events[event.DocumentID]
	// The conditional-insert contract: sequence must be exactly one past the
	// current tail or the write lost a race.
	if event.Sequence != int64(len(chain))+1 {
		return sentinel.ErrConflict
	}
	s.events[event.DocumentID] = append(chain, event)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, documentID id.DocumentID) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.events[documentID]
	if len(chain) == 0 {
		return Event{}, sentinel.ErrNotFound
	}
	return chain[len(chain)-1], nil
}

func (s *MemoryStore) List(_ context.Context, documentID id.DocumentID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[documentID]...), nil
}

func (s *MemoryStore) AnonymizeContextBefore(_ context.Context, documentID id.DocumentID, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	chain := s.events[documentID]
	for i := range chain {
		if chain[i].Timestamp.Before(cutoff) && !chain[i].Context.IsZero() {
			chain[i].Context = chain[i].Context.Anonymized()
			n++
		}
	}
	return n, nil
}

// tamper overwrites a stored event in place. Only integrity tests use this;
// it exists to simulate backing-store corruption, never as API.
func (s *MemoryStore) tamper(documentID id.DocumentID, index int, mutate func(*Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.events[documentID][index])
}
