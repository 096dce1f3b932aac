package attempt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core/quiz"
)

// RecordAnswer appends the student's answer to a question of an active attempt they own.
// Answering a question again adds a new record; grading keeps the latest one.
func (svc *Service) RecordAnswer(ctx context.Context, studentID, attemptID, questionID, selected string) (Answer, error) {
	a, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return Answer{}, errors.Wrap(err, "getting attempt")
	}
	if a.StudentID != studentID {
		return Answer{}, ErrNotOwner
	}
	if a.Completed {
		return Answer{}, ErrAttemptCompleted
	}

	q, err := svc.quizzes.GetQuestion(ctx, questionID)
	if err != nil {
		return Answer{}, errors.Wrap(err, "getting question")
	}
	if q.QuizID != a.QuizID {
		return Answer{}, quiz.ErrQuestionNotFound
	}

	ans, err := svc.answers.CreateAnswer(ctx, Answer{
		AttemptID:      a.ID,
		QuestionID:     q.ID,
		SelectedOption: quiz.NormalizeOption(selected),
		IsCorrect:      q.IsCorrect(selected),
		AnsweredAt:     NowFunc().UTC(),
	})
	if err != nil {
		return Answer{}, errors.Wrap(err, "creating answer")
	}

	svc.invalidate(ctx, a)
	return ans, nil
}
