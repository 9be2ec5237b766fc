package document

import (
	"context"
	"sort"
	"sync"

	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
)

// MemoryStore is the in-memory Store used by unit tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[id.DocumentID]Document
	signers map[id.DocumentID][]Signer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[id.DocumentID]Document),
		signers: make(map[id.DocumentID][]Signer),
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, documentID id.DocumentID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return Document{}, sentinel.ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) AddSigners(_ context.Context, signers []Signer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, signer := range signers {
		s.signers[signer.DocumentID] = append(s.signers[signer.DocumentID], signer)
	}
	return nil
}

func (s *MemoryStore) ListSigners(_ context.Context, documentID id.DocumentID) ([]Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Signer{}, s.signers[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) GetSigner(_ context.Context, documentID id.DocumentID, email string) (Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, signer := range s.signers[documentID] {
		if signer.Email == email {
			return signer, nil
		}
	}
	return Signer{}, sentinel.ErrNotFound
}

func (s *MemoryStore) UpdateSigner(_ context.Context, signer Signer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.signers[signer.DocumentID]
	for i := range chain {
		if chain[i].ID == signer.ID {
			chain[i] = signer
			return nil
		}
	}
	return sentinel.ErrNotFound
}
