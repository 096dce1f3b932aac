package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edusmart/assessment/core/enrollment"
)

type (
	enrollmentRepository struct {
		db *sqlx.DB
	}

	enrollmentRow struct {
		StudentID       string    `db:"student_id"`
		QuizID          string    `db:"quiz_id"`
		Completed       bool      `db:"completed"`
		ScorePercentage float64   `db:"score_percentage"`
		UpdatedAt       null.Time `db:"updated_at"` // NULL for rows seeded by the roster service
	}
)

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo enrollmentRepository) UpsertEnrollment(ctx context.Context, e enrollment.Enrollment) error {
	row := enrollmentRow{
		StudentID:       e.StudentID,
		QuizID:          e.QuizID,
		Completed:       e.Completed,
		ScorePercentage: e.ScorePercentage,
		UpdatedAt:       null.NewTime(e.UpdatedAt.UTC(), !e.UpdatedAt.IsZero()),
	}
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO enrollments (student_id, quiz_id, completed, score_percentage, updated_at)
VALUES (:student_id, :quiz_id, :completed, :score_percentage, :updated_at)
ON CONFLICT (student_id, quiz_id) DO UPDATE
SET completed = EXCLUDED.completed, score_percentage = EXCLUDED.score_percentage, updated_at = EXCLUDED.updated_at
WHERE enrollments.updated_at IS NULL OR enrollments.updated_at <= EXCLUDED.updated_at`, row)
	return errors.Wrap(err, "upserting enrollment")
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, studentID, quizID string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT student_id, quiz_id, completed, score_percentage, updated_at FROM enrollments WHERE student_id = $1 AND quiz_id = $2`,
		studentID, quizID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "selecting enrollment")
	}
	return enrollment.Enrollment{
		StudentID:       row.StudentID,
		QuizID:          row.QuizID,
		Completed:       row.Completed,
		ScorePercentage: row.ScorePercentage,
		UpdatedAt:       row.UpdatedAt.Time.UTC(),
	}, nil
}
