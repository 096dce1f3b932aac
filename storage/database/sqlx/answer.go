package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/quiz"
)

type (
	answerRepository struct {
		db *sqlx.DB
	}

	answerRow struct {
		ID             string    `db:"id"`
		AttemptID      string    `db:"attempt_id"`
		QuestionID     string    `db:"question_id"`
		SelectedOption string    `db:"selected_option"`
		IsCorrect      bool      `db:"is_correct"`
		AnsweredAt     time.Time `db:"answered_at"`
	}
)

var _ attempt.AnswerRepository = (*answerRepository)(nil) // interface compliance check

func NewAnswerRepository(db *sqlx.DB) *answerRepository {
	return &answerRepository{db: db}
}

func (row answerRow) toAnswer() attempt.Answer {
	return attempt.Answer{
		ID:             row.ID,
		AttemptID:      row.AttemptID,
		QuestionID:     row.QuestionID,
		SelectedOption: quiz.Option(row.SelectedOption),
		IsCorrect:      row.IsCorrect,
		AnsweredAt:     row.AnsweredAt.UTC(),
	}
}

func (repo answerRepository) CreateAnswer(ctx context.Context, ans attempt.Answer) (attempt.Answer, error) {
	ans.ID = uuid.New().String()
	row := answerRow{
		ID:             ans.ID,
		AttemptID:      ans.AttemptID,
		QuestionID:     ans.QuestionID,
		SelectedOption: string(ans.SelectedOption),
		IsCorrect:      ans.IsCorrect,
		AnsweredAt:     ans.AnsweredAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
INSERT INTO quiz_answers (id, attempt_id, question_id, selected_option, is_correct, answered_at)
VALUES (:id, :attempt_id, :question_id, :selected_option, :is_correct, :answered_at)`, row)
	if err != nil {
		return attempt.Answer{}, errors.Wrap(err, "inserting answer")
	}
	return row.toAnswer(), nil
}

func (repo answerRepository) where(filter attempt.AnswerFilter) whereClause {
	var where whereClause
	if filter.AttemptID != "" {
		where.add("ans.attempt_id = ?", filter.AttemptID)
	}
	if filter.StudentID != "" {
		where.add("att.student_id = ?", filter.StudentID)
	}
	if filter.QuizID != "" {
		where.add("att.quiz_id = ?", filter.QuizID)
	}
	return where
}

func (repo answerRepository) QueryAnswers(ctx context.Context, filter attempt.AnswerFilter) ([]attempt.Answer, error) {
	where := repo.where(filter)
	q := `SELECT ans.id, ans.attempt_id, ans.question_id, ans.selected_option, ans.is_correct, ans.answered_at
FROM quiz_answers ans JOIN quiz_attempts att ON att.id = ans.attempt_id` + where.String() +
		` ORDER BY ans.answered_at ASC, ans.seq ASC`

	var rows []answerRow
	if err := repo.db.SelectContext(ctx, &rows, q, where.args...); err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	answers := make([]attempt.Answer, 0, len(rows))
	for _, row := range rows {
		answers = append(answers, row.toAnswer())
	}
	return answers, nil
}

func (repo answerRepository) CountAnswers(ctx context.Context, filter attempt.AnswerFilter) (int, error) {
	where := repo.where(filter)
	q := `SELECT count(*) FROM quiz_answers ans JOIN quiz_attempts att ON att.id = ans.attempt_id` + where.String()

	var count int
	err := repo.db.GetContext(ctx, &count, q, where.args...)
	return count, errors.Wrap(err, "counting answers")
}
