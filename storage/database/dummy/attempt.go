package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
)

type attemptRepository struct {
	db *attemptTable
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) attempt.Repository {
	return &attemptRepository{db: db.attempt}
}

func copyAttempt(a *attempt.Attempt) attempt.Attempt {
	cp := *a
	if a.CompletedAt != nil {
		completedAt := *a.CompletedAt
		cp.CompletedAt = &completedAt
	}
	return cp
}

// forPair returns the attempts of a student on a quiz. The caller must hold the lock.
func (repo *attemptRepository) forPair(quizID, studentID string) []*attempt.Attempt {
	var attempts []*attempt.Attempt
	for _, a := range repo.db.table {
		if a.QuizID == quizID && a.StudentID == studentID {
			attempts = append(attempts, a)
		}
	}
	return attempts
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, a attempt.Attempt, maxAttempts int) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var completed int
	for _, other := range repo.forPair(a.QuizID, a.StudentID) {
		if !other.Completed {
			return attempt.Attempt{}, attempt.ErrActiveAttemptExists
		}
		completed++
	}
	if maxAttempts > 0 && completed >= maxAttempts {
		return attempt.Attempt{}, attempt.ErrAttemptLimitExceeded
	}

	a.ID = uuid.New().String()
	repo.db.table[a.ID] = &a
	return copyAttempt(&a), nil
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return copyAttempt(a), nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) GetActiveAttempt(_ context.Context, quizID, studentID string) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, a := range repo.forPair(quizID, studentID) {
		if !a.Completed {
			return copyAttempt(a), nil
		}
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) CountCompletedAttempts(_ context.Context, quizID, studentID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, a := range repo.forPair(quizID, studentID) {
		if a.Completed {
			count++
		}
	}
	return count, nil
}

func (repo *attemptRepository) QueryAttempts(_ context.Context, filter attempt.QueryFilter, ordering []core.DBOrdering) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]attempt.Attempt, 0)
	for _, a := range repo.db.table {
		if filter.StudentID != "" && a.StudentID != filter.StudentID {
			continue
		}
		if filter.QuizID != "" && a.QuizID != filter.QuizID {
			continue
		}
		if filter.Completed != nil && a.Completed != *filter.Completed {
			continue
		}
		attempts = append(attempts, copyAttempt(a))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "started_at"}}
	}
	sort.SliceStable(attempts, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareAttempts(attempts[i], attempts[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return attempts[i].ID < attempts[j].ID
	})
	return attempts, nil
}

func (repo *attemptRepository) TopScorers(_ context.Context, quizID string, limit int) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	attempts := make([]attempt.Attempt, 0)
	for _, a := range repo.db.table {
		if a.QuizID == quizID && a.Completed {
			attempts = append(attempts, copyAttempt(a))
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].Score != attempts[j].Score {
			return attempts[i].Score > attempts[j].Score
		}
		if cmp := compareAttempts(attempts[i], attempts[j], "completed_at"); cmp != 0 {
			return cmp < 0
		}
		return attempts[i].ID < attempts[j].ID
	})
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, nil
}

func (repo *attemptRepository) UpdateAttempt(_ context.Context, a attempt.Attempt) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[a.ID]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	repo.setCompletion(orig, a)
	return copyAttempt(orig), nil
}

func (repo *attemptRepository) CompleteIfActive(_ context.Context, a attempt.Attempt) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[a.ID]
	if !ok {
		return false, attempt.ErrNotFound
	}
	if orig.Completed {
		return false, nil
	}
	repo.setCompletion(orig, a)
	return true, nil
}

// setCompletion only saves the mutable fields; startedAt and ownership never change.
func (repo *attemptRepository) setCompletion(orig *attempt.Attempt, a attempt.Attempt) {
	orig.Score = a.Score
	orig.TotalMarks = a.TotalMarks
	orig.Completed = a.Completed
	orig.Status = a.Status
	if a.CompletedAt != nil {
		completedAt := *a.CompletedAt
		orig.CompletedAt = &completedAt
	} else {
		orig.CompletedAt = nil
	}
}

// compareAttempts compares a field of two attempts; fields unknown to the dummy DB compare equal.
func compareAttempts(a, b attempt.Attempt, field string) int {
	switch field {
	case "score":
		return a.Score - b.Score
	case "started_at":
		return compareTimes(a.StartedAt.UnixNano(), b.StartedAt.UnixNano())
	case "completed_at":
		var at, bt int64
		if a.CompletedAt != nil {
			at = a.CompletedAt.UnixNano()
		}
		if b.CompletedAt != nil {
			bt = b.CompletedAt.UnixNano()
		}
		return compareTimes(at, bt)
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
