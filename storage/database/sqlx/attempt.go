package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
)

const attemptColumns = `id, quiz_id, student_id, score, total_marks, completed, status, duration_minutes, started_at, completed_at`

// insertAttemptQuery inserts the attempt only if the student has no attempt in progress on the quiz
// and has completed fewer than $7 attempts ($7 <= 0 means unlimited).
// The partial unique index quiz_attempts_one_active_idx backs the first condition under concurrency.
const insertAttemptQuery = `
INSERT INTO quiz_attempts (id, quiz_id, student_id, score, total_marks, completed, status, duration_minutes, started_at)
SELECT $1::text, $2::text, $3::text, 0, 0, FALSE, $4::text, $5::integer, $6::timestamptz
WHERE NOT EXISTS (
    SELECT 1 FROM quiz_attempts WHERE quiz_id = $2 AND student_id = $3 AND NOT completed
) AND (
    $7::integer <= 0 OR (SELECT count(*) FROM quiz_attempts WHERE quiz_id = $2 AND student_id = $3 AND completed) < $7::integer
)
RETURNING ` + attemptColumns

var attemptOrderColumns = map[string]string{
	"started_at":   "started_at",
	"completed_at": "completed_at",
	"score":        "score",
}

type (
	attemptRepository struct {
		db *sqlx.DB
	}

	attemptRow struct {
		ID              string    `db:"id"`
		QuizID          string    `db:"quiz_id"`
		StudentID       string    `db:"student_id"`
		Score           int       `db:"score"`
		TotalMarks      int       `db:"total_marks"`
		Completed       bool      `db:"completed"`
		Status          string    `db:"status"`
		DurationMinutes int       `db:"duration_minutes"`
		StartedAt       time.Time `db:"started_at"`
		CompletedAt     null.Time `db:"completed_at"`
	}
)

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *sqlx.DB) *attemptRepository {
	return &attemptRepository{db: db}
}

func (row attemptRow) toAttempt() attempt.Attempt {
	a := attempt.Attempt{
		ID:              row.ID,
		QuizID:          row.QuizID,
		StudentID:       row.StudentID,
		Score:           row.Score,
		TotalMarks:      row.TotalMarks,
		Completed:       row.Completed,
		Status:          attempt.Status(row.Status),
		DurationMinutes: row.DurationMinutes,
		StartedAt:       row.StartedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		completedAt := row.CompletedAt.Time.UTC()
		a.CompletedAt = &completedAt
	}
	return a
}

func toAttempts(rows []attemptRow) []attempt.Attempt {
	attempts := make([]attempt.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.toAttempt())
	}
	return attempts
}

func (repo attemptRepository) CreateAttempt(ctx context.Context, a attempt.Attempt, maxAttempts int) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.QueryRowxContext(ctx, insertAttemptQuery,
		uuid.New().String(), a.QuizID, a.StudentID, string(a.Status), a.DurationMinutes, a.StartedAt.UTC(), maxAttempts,
	).StructScan(&row)

	switch {
	case err == nil:
		return row.toAttempt(), nil
	case isUniqueViolation(err):
		return attempt.Attempt{}, attempt.ErrActiveAttemptExists
	case err != sql.ErrNoRows:
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}

	// nothing inserted: tell which condition failed
	if _, err = repo.GetActiveAttempt(ctx, a.QuizID, a.StudentID); err == nil {
		return attempt.Attempt{}, attempt.ErrActiveAttemptExists
	} else if !errors.Is(err, attempt.ErrNotFound) {
		return attempt.Attempt{}, err
	}
	return attempt.Attempt{}, attempt.ErrAttemptLimitExceeded
}

func (repo attemptRepository) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, id)
	if err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "selecting attempt")
	}
	return row.toAttempt(), nil
}

func (repo attemptRepository) GetActiveAttempt(ctx context.Context, quizID, studentID string) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2 AND NOT completed`,
		quizID, studentID)
	if err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "selecting active attempt")
	}
	return row.toAttempt(), nil
}

func (repo attemptRepository) CountCompletedAttempts(ctx context.Context, quizID, studentID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT count(*) FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2 AND completed`,
		quizID, studentID)
	return count, errors.Wrap(err, "counting completed attempts")
}

func (repo attemptRepository) QueryAttempts(ctx context.Context, filter attempt.QueryFilter, ordering []core.DBOrdering) ([]attempt.Attempt, error) {
	var where whereClause
	if filter.StudentID != "" {
		where.add("student_id = ?", filter.StudentID)
	}
	if filter.QuizID != "" {
		where.add("quiz_id = ?", filter.QuizID)
	}
	if filter.Completed != nil {
		where.add("completed = ?", *filter.Completed)
	}

	q := `SELECT ` + attemptColumns + ` FROM quiz_attempts` + where.String() +
		orderBy(ordering, attemptOrderColumns, "started_at DESC, id ASC")

	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attempts")
	}
	return toAttempts(rows), nil
}

func (repo attemptRepository) TopScorers(ctx context.Context, quizID string, limit int) ([]attempt.Attempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE quiz_id = $1 AND completed
ORDER BY score DESC, completed_at ASC, id ASC LIMIT ` + strconv.Itoa(limit)

	var rows []attemptRow
	if err := repo.db.SelectContext(ctx, &rows, q, quizID); err != nil {
		return nil, errors.Wrap(err, "selecting top scorers")
	}
	return toAttempts(rows), nil
}

func (repo attemptRepository) UpdateAttempt(ctx context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	var row attemptRow
	err := repo.db.QueryRowxContext(ctx,
		`UPDATE quiz_attempts SET score = $2, total_marks = $3, completed = $4, status = $5, completed_at = $6
WHERE id = $1 RETURNING `+attemptColumns,
		a.ID, a.Score, a.TotalMarks, a.Completed, string(a.Status), null.TimeFromPtr(a.CompletedAt),
	).StructScan(&row)
	if err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "updating attempt")
	}
	return row.toAttempt(), nil
}

func (repo attemptRepository) CompleteIfActive(ctx context.Context, a attempt.Attempt) (bool, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE quiz_attempts SET score = $2, total_marks = $3, completed = $4, status = $5, completed_at = $6
WHERE id = $1 AND NOT completed`,
		a.ID, a.Score, a.TotalMarks, a.Completed, string(a.Status), null.TimeFromPtr(a.CompletedAt),
	)
	if err != nil {
		return false, errors.Wrap(err, "completing attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "completing attempt")
	}
	return n == 1, nil
}
