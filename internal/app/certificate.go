package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"assessment-engine/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	numberAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	numberSuffixLen   = 8
	verificationBytes = 16
	maxNumberRetries  = 5
)

// CertificateIssuer creates and verifies grandtest certificates.
type CertificateIssuer struct {
	store   CertificateStore
	random  io.Reader
	now     func() time.Time
	log     *zap.Logger
	metrics Recorder
}

func NewCertificateIssuer(store CertificateStore) *CertificateIssuer {
	return &CertificateIssuer{
		store:   store,
		random:  rand.Reader,
		now:     time.Now,
		log:     zap.NewNop(),
		metrics: nopRecorder{},
	}
}

// Issue returns the certificate for a passed grandtest attempt, creating it on first call.
func (i *CertificateIssuer) Issue(ctx context.Context, attempt domain.Attempt) (domain.Certificate, error) {
	if attempt.Kind != domain.Grandtest || !attempt.Passed || !attempt.Status.Scored() {
		return domain.Certificate{}, domain.Invalid("attempt", "certificates are only issued for passed grandtest attempts")
	}
	existing, err := i.store.CertificateByAttempt(ctx, attempt.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Certificate{}, err
	}

	for try := 0; try < maxNumberRetries; try++ {
		issuedAt := i.now()
		number, err := i.newNumber(issuedAt)
		if err != nil {
			return domain.Certificate{}, err
		}
		code, err := i.newVerificationCode()
		if err != nil {
			return domain.Certificate{}, err
		}
		cert, created, err := i.store.CreateCertificate(ctx, domain.Certificate{
			ID:                 uuid.NewString(),
			UserID:             attempt.UserID,
			CourseID:           attempt.CourseID,
			EnrollmentID:       attempt.EnrollmentID,
			GrandtestAttemptID: attempt.ID,
			CertificateNumber:  number,
			VerificationCode:   code,
			IssuedAt:           issuedAt,
			IsValid:            true,
		})
		if errors.Is(err, domain.ErrCertificateNumberTaken) {
			continue
		}
		if err != nil {
			return domain.Certificate{}, err
		}
		if created {
			i.metrics.CertificateIssued()
			i.log.Info("certificate issued",
				zap.String("certificate_number", cert.CertificateNumber),
				zap.String("attempt_id", attempt.ID),
				zap.String("user_id", attempt.UserID))
		}
		return cert, nil
	}
	return domain.Certificate{}, domain.Persistence("issue certificate", errors.New("could not allocate a unique certificate number"))
}

// Verify checks a (number, code) pair. Every mismatch yields the same invalid result.
func (i *CertificateIssuer) Verify(ctx context.Context, number, code string) (domain.Verification, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	code = strings.ToLower(strings.TrimSpace(code))
	if number == "" || code == "" {
		i.metrics.CertificateVerified(false)
		return domain.Verification{}, nil
	}
	cert, err := i.store.FindCertificate(ctx, number, code)
	if errors.Is(err, domain.ErrNotFound) {
		i.metrics.CertificateVerified(false)
		return domain.Verification{}, nil
	}
	if err != nil {
		return domain.Verification{}, err
	}
	if !cert.IsValid || subtle.ConstantTimeCompare([]byte(cert.VerificationCode), []byte(code)) != 1 {
		i.metrics.CertificateVerified(false)
		return domain.Verification{}, nil
	}
	i.metrics.CertificateVerified(true)
	issuedAt := cert.IssuedAt
	return domain.Verification{
		Valid:    true,
		UserID:   cert.UserID,
		CourseID: cert.CourseID,
		IssuedAt: &issuedAt,
	}, nil
}

// ForAttempt returns the certificate issued for a grandtest attempt.
func (i *CertificateIssuer) ForAttempt(ctx context.Context, attemptID string) (domain.Certificate, error) {
	return i.store.CertificateByAttempt(ctx, attemptID)
}

// Invalidate revokes a certificate. It stays stored for audit.
func (i *CertificateIssuer) Invalidate(ctx context.Context, id string) error {
	if err := i.store.InvalidateCertificate(ctx, id); err != nil {
		return err
	}
	i.log.Warn("certificate invalidated", zap.String("certificate_id", id))
	return nil
}

// newNumber formats CERT-<year>-<day of year>-<random suffix>.
func (i *CertificateIssuer) newNumber(at time.Time) (string, error) {
	buf := make([]byte, numberSuffixLen)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("certificate number: %w", err)
	}
	suffix := make([]byte, numberSuffixLen)
	for k, b := range buf {
		suffix[k] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	at = at.UTC()
	return fmt.Sprintf("CERT-%04d-%03d-%s", at.Year(), at.YearDay(), suffix), nil
}

// newVerificationCode draws an independent token; it shares no bits with the number.
func (i *CertificateIssuer) newVerificationCode() (string, error) {
	buf := make([]byte, verificationBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("verification code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
