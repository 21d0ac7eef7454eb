package memory

import (
	"context"
	"crypto/subtle"
	"sync"

	"assessment-engine/internal/domain"
)

// CertificateStore is an append-only in-memory certificate table.
type CertificateStore struct {
	mu        sync.RWMutex
	byID      map[string]domain.Certificate
	byAttempt map[string]string
	byNumber  map[string]string
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		byID:      make(map[string]domain.Certificate),
		byAttempt: make(map[string]string),
		byNumber:  make(map[string]string),
	}
}

func (s *CertificateStore) CreateCertificate(_ context.Context, cert domain.Certificate) (domain.Certificate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byAttempt[cert.GrandtestAttemptID]; ok {
		return s.byID[id], false, nil
	}
	if _, taken := s.byNumber[cert.CertificateNumber]; taken {
		return domain.Certificate{}, false, domain.ErrCertificateNumberTaken
	}
	s.byID[cert.ID] = cert
	s.byAttempt[cert.GrandtestAttemptID] = cert.ID
	s.byNumber[cert.CertificateNumber] = cert.ID
	return cert, true, nil
}

func (s *CertificateStore) CertificateByAttempt(_ context.Context, attemptID string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAttempt[attemptID]
	if !ok {
		return domain.Certificate{}, domain.NotFound("certificate", "", domain.ErrCertificateNotFound)
	}
	return s.byID[id], nil
}

func (s *CertificateStore) FindCertificate(_ context.Context, number, code string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if ok {
		cert := s.byID[id]
		if cert.IsValid && subtle.ConstantTimeCompare([]byte(cert.VerificationCode), []byte(code)) == 1 {
			return cert, nil
		}
	}
	return domain.Certificate{}, domain.NotFound("certificate", "", domain.ErrCertificateNotFound)
}

func (s *CertificateStore) ListCertificates(_ context.Context, userID, courseID string) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Certificate
	for _, cert := range s.byID {
		if cert.UserID == userID && cert.CourseID == courseID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (s *CertificateStore) InvalidateCertificate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[id]
	if !ok {
		return domain.NotFound("certificate", id, domain.ErrCertificateNotFound)
	}
	cert.IsValid = false
	s.byID[id] = cert
	return nil
}
