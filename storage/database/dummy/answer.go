package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/edusmart/assessment/core/attempt"
)

type answerRepository struct {
	db       *answerTable
	attempts *attemptTable
}

var _ attempt.AnswerRepository = (*answerRepository)(nil) // interface compliance check

func NewAnswerRepository(db *DB) attempt.AnswerRepository {
	return &answerRepository{db: db.answer, attempts: db.attempt}
}

func (repo *answerRepository) CreateAnswer(_ context.Context, ans attempt.Answer) (attempt.Answer, error) {
	repo.attempts.RLock()
	_, ok := repo.attempts.table[ans.AttemptID]
	repo.attempts.RUnlock()
	if !ok {
		return attempt.Answer{}, attempt.ErrNotFound
	}

	repo.db.Lock()
	defer repo.db.Unlock()

	ans.ID = uuid.New().String()
	repo.db.rows = append(repo.db.rows, ans)
	return ans, nil
}

func (repo *answerRepository) query(filter attempt.AnswerFilter) []attempt.Answer {
	repo.attempts.RLock()
	defer repo.attempts.RUnlock()
	repo.db.RLock()
	defer repo.db.RUnlock()

	answers := make([]attempt.Answer, 0)
	for _, ans := range repo.db.rows {
		if filter.AttemptID != "" && ans.AttemptID != filter.AttemptID {
			continue
		}
		if filter.StudentID != "" || filter.QuizID != "" {
			a, ok := repo.attempts.table[ans.AttemptID]
			if !ok {
				continue
			}
			if filter.StudentID != "" && a.StudentID != filter.StudentID {
				continue
			}
			if filter.QuizID != "" && a.QuizID != filter.QuizID {
				continue
			}
		}
		answers = append(answers, ans)
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].AnsweredAt.Before(answers[j].AnsweredAt) })
	return answers
}

func (repo *answerRepository) QueryAnswers(_ context.Context, filter attempt.AnswerFilter) ([]attempt.Answer, error) {
	return repo.query(filter), nil
}

func (repo *answerRepository) CountAnswers(_ context.Context, filter attempt.AnswerFilter) (int, error) {
	return len(repo.query(filter)), nil
}
