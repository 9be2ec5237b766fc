package certificate

import (
	"context"
	"sync"

	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
)

// MemoryStore is the in-memory Store used by tests and digest-only
// deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[id.CertificateID]Certificate
	byDocument map[id.DocumentID]id.CertificateID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[id.CertificateID]Certificate),
		byDocument: make(map[id.DocumentID]id.CertificateID),
	}
}

func (s *MemoryStore) Create(_ context.Context, cert Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDocument[cert.DocumentID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[cert.ID] = cert
	s.byDocument[cert.DocumentID] = cert.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, certificateID id.CertificateID) (Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byID[certificateID]
	if !ok {
		return Certificate{}, sentinel.ErrNotFound
	}
	return cert, nil
}

func (s *MemoryStore) GetByDocument(_ context.Context, documentID id.DocumentID) (Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	certID, ok := s.byDocument[documentID]
	if !ok {
		return Certificate{}, sentinel.ErrNotFound
	}
	return s.byID[certID], nil
}

func (s *MemoryStore) IncrementVerifications(_ context.Context, certificateID id.CertificateID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[certificateID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	cert.VerificationCount++
	s.byID[certificateID] = cert
	return cert.VerificationCount, nil
}

// tamper mutates a stored certificate in place. Test hook for integrity
// scenarios.
func (s *MemoryStore) tamper(certificateID id.CertificateID, mutate func(*Certificate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert := s.byID[certificateID]
	mutate(&cert)
	s.byID[certificateID] = cert
}
