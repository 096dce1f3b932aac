package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
)

type catalogRepository struct {
	db *catalogTable
}

var (
	_ quiz.Repository   = (*catalogRepository)(nil) // interface compliance check
	_ student.Directory = (*catalogRepository)(nil)
)

// NewCatalogRepository serves quizzes, questions and students. Its Add* methods seed the data.
func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db.catalog}
}

func (repo *catalogRepository) AddQuiz(qz quiz.Quiz) quiz.Quiz {
	repo.db.Lock()
	defer repo.db.Unlock()

	if qz.ID == "" {
		qz.ID = uuid.New().String()
	}
	repo.db.quizzes[qz.ID] = &qz
	return qz
}

func (repo *catalogRepository) AddQuestion(q quiz.Question) quiz.Question {
	repo.db.Lock()
	defer repo.db.Unlock()

	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	repo.db.questions = append(repo.db.questions, q)
	return q
}

func (repo *catalogRepository) AddStudent(s student.Student) student.Student {
	repo.db.Lock()
	defer repo.db.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.db.students[s.ID] = &s
	return s
}

func (repo *catalogRepository) GetQuiz(_ context.Context, id string) (quiz.Quiz, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if qz, ok := repo.db.quizzes[id]; ok {
		return *qz, nil
	}
	return quiz.Quiz{}, quiz.ErrNotFound
}

func (repo *catalogRepository) GetQuestion(_ context.Context, id string) (quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, q := range repo.db.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return quiz.Question{}, quiz.ErrQuestionNotFound
}

func (repo *catalogRepository) GetQuestionsForQuiz(_ context.Context, quizID string) ([]quiz.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if _, ok := repo.db.quizzes[quizID]; !ok {
		return nil, quiz.ErrNotFound
	}
	questions := make([]quiz.Question, 0)
	for _, q := range repo.db.questions {
		if q.QuizID == quizID {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

func (repo *catalogRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.students[id]; ok {
		return *s, nil
	}
	return student.Student{}, student.ErrNotFound
}
