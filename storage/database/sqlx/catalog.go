package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
)

const questionColumns = `id, quiz_id, text, option_a, option_b, option_c, option_d, correct_option, marks`

type (
	// catalogRepository reads the quiz, question & student tables owned by the course and user services.
	catalogRepository struct {
		db *sqlx.DB
	}

	questionRow struct {
		ID            string `db:"id"`
		QuizID        string `db:"quiz_id"`
		Text          string `db:"text"`
		OptionA       string `db:"option_a"`
		OptionB       string `db:"option_b"`
		OptionC       string `db:"option_c"`
		OptionD       string `db:"option_d"`
		CorrectOption string `db:"correct_option"`
		Marks         int    `db:"marks"`
	}
)

var (
	_ quiz.Repository   = (*catalogRepository)(nil) // interface compliance check
	_ student.Directory = (*catalogRepository)(nil)
)

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (row questionRow) toQuestion() quiz.Question {
	return quiz.Question{
		ID:            row.ID,
		QuizID:        row.QuizID,
		Text:          row.Text,
		Options:       [4]string{row.OptionA, row.OptionB, row.OptionC, row.OptionD},
		CorrectOption: quiz.NormalizeOption(row.CorrectOption),
		Marks:         row.Marks,
	}
}

func (repo catalogRepository) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	var qz quiz.Quiz
	err := repo.db.GetContext(ctx, &qz,
		`SELECT id, course_id, title, duration_minutes, total_marks, max_attempts FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrNotFound, "selecting quiz")
	}
	return qz, nil
}

func (repo catalogRepository) GetQuestion(ctx context.Context, id string) (quiz.Question, error) {
	var row questionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err != nil {
		return quiz.Question{}, trapNoRowsErr(err, quiz.ErrQuestionNotFound, "selecting question")
	}
	return row.toQuestion(), nil
}

func (repo catalogRepository) GetQuestionsForQuiz(ctx context.Context, quizID string) ([]quiz.Question, error) {
	if _, err := repo.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = $1 ORDER BY position ASC, id ASC`, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	questions := make([]quiz.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toQuestion())
	}
	return questions, nil
}

func (repo catalogRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var s student.Student
	err := repo.db.GetContext(ctx, &s, `SELECT id, name, email FROM students WHERE id = $1`, id)
	if err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "selecting student")
	}
	return s, nil
}
