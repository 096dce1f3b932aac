package dummydb

import (
	"context"

	"github.com/edusmart/assessment/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db.enrollment}
}

func (repo *enrollmentRepository) UpsertEnrollment(_ context.Context, e enrollment.Enrollment) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := enrollmentKey{studentID: e.StudentID, quizID: e.QuizID}
	if orig, ok := repo.db.table[key]; ok && orig.UpdatedAt.After(e.UpdatedAt) {
		return nil // a later completion already landed
	}
	repo.db.table[key] = &e
	return nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, studentID, quizID string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.table[enrollmentKey{studentID: studentID, quizID: quizID}]; ok {
		return *e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}
