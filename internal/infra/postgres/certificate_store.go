package postgres

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"

	"assessment-engine/internal/domain"
)

// CreateCertificate relies on the unique index over grandtest_attempt_id for idempotency;
// a clash on certificate_number surfaces as domain.ErrCertificateNumberTaken.
func (s *Store) CreateCertificate(ctx context.Context, cert domain.Certificate) (domain.Certificate, bool, error) {
	row := &certificateRow{
		ID:                 cert.ID,
		UserID:             cert.UserID,
		CourseID:           cert.CourseID,
		EnrollmentID:       cert.EnrollmentID,
		GrandtestAttemptID: cert.GrandtestAttemptID,
		CertificateNumber:  cert.CertificateNumber,
		VerificationCode:   cert.VerificationCode,
		IssuedAt:           cert.IssuedAt,
		IsValid:            cert.IsValid,
	}
	res, err := s.db.NewInsert().Model(row).
		On("CONFLICT (grandtest_attempt_id) DO NOTHING").
		Exec(ctx)
	if isUniqueViolation(err) {
		return domain.Certificate{}, false, domain.ErrCertificateNumberTaken
	}
	if err != nil {
		return domain.Certificate{}, false, domain.Persistence("create certificate", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := s.CertificateByAttempt(ctx, cert.GrandtestAttemptID)
		return existing, false, err
	}
	return cert, true, nil
}

func (s *Store) CertificateByAttempt(ctx context.Context, attemptID string) (domain.Certificate, error) {
	var row certificateRow
	err := s.db.NewSelect().Model(&row).Where("grandtest_attempt_id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, domain.NotFound("certificate", "", domain.ErrCertificateNotFound)
	}
	if err != nil {
		return domain.Certificate{}, domain.Persistence("load certificate", err)
	}
	return row.domain(), nil
}

func (s *Store) FindCertificate(ctx context.Context, number, code string) (domain.Certificate, error) {
	var row certificateRow
	err := s.db.NewSelect().Model(&row).
		Where("certificate_number = ?", number).
		Where("is_valid").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, domain.NotFound("certificate", "", domain.ErrCertificateNotFound)
	}
	if err != nil {
		return domain.Certificate{}, domain.Persistence("find certificate", err)
	}
	if subtle.ConstantTimeCompare([]byte(row.VerificationCode), []byte(code)) != 1 {
		return domain.Certificate{}, domain.NotFound("certificate", "", domain.ErrCertificateNotFound)
	}
	return row.domain(), nil
}

func (s *Store) ListCertificates(ctx context.Context, userID, courseID string) ([]domain.Certificate, error) {
	var rows []certificateRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Persistence("list certificates", err)
	}
	out := make([]domain.Certificate, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) InvalidateCertificate(ctx context.Context, id string) error {
	res, err := s.db.NewUpdate().Model((*certificateRow)(nil)).
		Set("is_valid = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return domain.Persistence("invalidate certificate", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("certificate", id, domain.ErrCertificateNotFound)
	}
	return nil
}
