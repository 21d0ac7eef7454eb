package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"assessment-engine/internal/domain"
)

func (s *Store) CompletedLessons(ctx context.Context, userID, courseID string) (map[string]bool, error) {
	var rows []lessonProgressRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Scan(ctx)
	if err != nil {
		return nil, domain.Persistence("list completed lessons", err)
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.LessonID] = true
	}
	return out, nil
}

// MarkLessonCompleted keeps the first completion time on repeats.
func (s *Store) MarkLessonCompleted(ctx context.Context, userID, courseID, lessonID string, at time.Time) error {
	row := &lessonProgressRow{UserID: userID, CourseID: courseID, LessonID: lessonID, CompletedAt: at}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return domain.Persistence("mark lesson completed", err)
	}
	return nil
}

func (s *Store) SaveCompletion(ctx context.Context, status domain.CourseCompletionStatus) error {
	row := &completionRow{
		UserID:            status.UserID,
		CourseID:          status.CourseID,
		EnrollmentID:      status.EnrollmentID,
		LessonsCompleted:  status.LessonsCompleted,
		TotalLessons:      status.TotalLessons,
		QuizzesCompleted:  status.QuizzesCompleted,
		TotalQuizzes:      status.TotalQuizzes,
		IsCourseCompleted: status.IsCourseCompleted,
		GrandtestEligible: status.GrandtestEligible,
		GrandtestPassed:   status.GrandtestPassed,
		CertificateIssued: status.CertificateIssued,
		LastUpdated:       status.LastUpdated,
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id, course_id, enrollment_id) DO UPDATE").
		Set("lessons_completed = EXCLUDED.lessons_completed").
		Set("total_lessons = EXCLUDED.total_lessons").
		Set("quizzes_completed = EXCLUDED.quizzes_completed").
		Set("total_quizzes = EXCLUDED.total_quizzes").
		Set("is_course_completed = EXCLUDED.is_course_completed").
		Set("grandtest_eligible = EXCLUDED.grandtest_eligible").
		Set("grandtest_passed = EXCLUDED.grandtest_passed").
		Set("certificate_issued = EXCLUDED.certificate_issued").
		Set("last_updated = EXCLUDED.last_updated").
		Exec(ctx)
	if err != nil {
		return domain.Persistence("save completion", err)
	}
	return nil
}

func (s *Store) GetCompletion(ctx context.Context, userID, courseID, enrollmentID string) (domain.CourseCompletionStatus, error) {
	var row completionRow
	err := s.db.NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Where("enrollment_id = ?", enrollmentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CourseCompletionStatus{}, domain.NotFound("completion", userID, domain.ErrCompletionNotFound)
	}
	if err != nil {
		return domain.CourseCompletionStatus{}, domain.Persistence("load completion", err)
	}
	return row.domain(), nil
}
