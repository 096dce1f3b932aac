package attempt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
)

const (
	defaultTopScorers = 10
	maxTopScorers     = 100
)

func (svc *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id)
}

// GetAttemptForStudent returns the attempt if `studentID` owns it, ErrNotOwner otherwise.
func (svc *Service) GetAttemptForStudent(ctx context.Context, studentID, id string) (Attempt, error) {
	a, err := svc.repo.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, errors.Wrap(err, "getting attempt")
	}
	if a.StudentID != studentID {
		return Attempt{}, ErrNotOwner
	}
	return a, nil
}

func (svc *Service) AttemptsByStudent(ctx context.Context, studentID string, ordering []core.DBOrdering) ([]Attempt, error) {
	var attempts []Attempt
	key := "attempts" + orderingKey(ordering)
	err := svc.cached(ctx, core.StudentPartition(studentID), key, &attempts, func() (err error) {
		attempts, err = svc.repo.QueryAttempts(ctx, QueryFilter{StudentID: studentID}, ordering)
		return err
	})
	return attempts, errors.Wrap(err, "querying student attempts")
}

func (svc *Service) CompletedAttemptsByStudent(ctx context.Context, studentID string) ([]Attempt, error) {
	var attempts []Attempt
	completed := true
	err := svc.cached(ctx, core.StudentPartition(studentID), "completed-attempts", &attempts, func() (err error) {
		attempts, err = svc.repo.QueryAttempts(ctx, QueryFilter{StudentID: studentID, Completed: &completed}, nil)
		return err
	})
	return attempts, errors.Wrap(err, "querying completed student attempts")
}

// LatestAttemptByStudent returns the most recently started attempt of the student, on any quiz.
func (svc *Service) LatestAttemptByStudent(ctx context.Context, studentID string) (Attempt, error) {
	attempts, err := svc.AttemptsByStudent(ctx, studentID, nil)
	if err != nil {
		return Attempt{}, err
	}
	if len(attempts) == 0 {
		return Attempt{}, ErrNotFound
	}
	return attempts[0], nil
}

func (svc *Service) AttemptsByQuiz(ctx context.Context, quizID string, ordering []core.DBOrdering) ([]Attempt, error) {
	var attempts []Attempt
	key := "attempts" + orderingKey(ordering)
	err := svc.cached(ctx, core.QuizPartition(quizID), key, &attempts, func() (err error) {
		attempts, err = svc.repo.QueryAttempts(ctx, QueryFilter{QuizID: quizID}, ordering)
		return err
	})
	return attempts, errors.Wrap(err, "querying quiz attempts")
}

// ActiveAttempts lists every attempt still in progress. It is meant for expiry sweeps and skips the cache.
func (svc *Service) ActiveAttempts(ctx context.Context) ([]Attempt, error) {
	completed := false
	attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{Completed: &completed}, nil)
	return attempts, errors.Wrap(err, "querying active attempts")
}

// TopScorers returns up to `limit` best completed attempts of the quiz (10 when limit <= 0, at most 100).
func (svc *Service) TopScorers(ctx context.Context, quizID string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = defaultTopScorers
	} else if limit > maxTopScorers {
		limit = maxTopScorers
	}

	var attempts []Attempt
	err := svc.cached(ctx, core.QuizPartition(quizID), "top:"+strconv.Itoa(limit), &attempts, func() (err error) {
		attempts, err = svc.repo.TopScorers(ctx, quizID, limit)
		return err
	})
	return attempts, errors.Wrap(err, "querying top scorers")
}

func (svc *Service) QuizStats(ctx context.Context, quizID string) (Stats, error) {
	if _, err := svc.quizzes.GetQuiz(ctx, quizID); err != nil {
		return Stats{}, errors.Wrap(err, "getting quiz")
	}

	var stats Stats
	err := svc.cached(ctx, core.QuizPartition(quizID), "stats", &stats, func() error {
		attempts, err := svc.repo.QueryAttempts(ctx, QueryFilter{QuizID: quizID}, nil)
		stats = ComputeStats(attempts)
		return err
	})
	return stats, errors.Wrap(err, "computing quiz stats")
}

// AnswersByAttempt returns every answer recorded on the attempt, oldest first, re-answers included.
func (svc *Service) AnswersByAttempt(ctx context.Context, studentID, attemptID string) ([]Answer, error) {
	if _, err := svc.GetAttemptForStudent(ctx, studentID, attemptID); err != nil {
		return nil, err
	}

	var answers []Answer
	err := svc.cached(ctx, core.StudentPartition(studentID), "answers:"+attemptID, &answers, func() (err error) {
		answers, err = svc.answers.QueryAnswers(ctx, AnswerFilter{AttemptID: attemptID})
		return err
	})
	return answers, errors.Wrap(err, "querying attempt answers")
}

func (svc *Service) AnswersByStudentAndQuiz(ctx context.Context, studentID, quizID string) ([]Answer, error) {
	var answers []Answer
	err := svc.cached(ctx, core.StudentPartition(studentID), "quiz-answers:"+quizID, &answers, func() (err error) {
		answers, err = svc.answers.QueryAnswers(ctx, AnswerFilter{StudentID: studentID, QuizID: quizID})
		return err
	})
	return answers, errors.Wrap(err, "querying student quiz answers")
}

func (svc *Service) AnswerCountByStudent(ctx context.Context, studentID string) (int, error) {
	var count int
	err := svc.cached(ctx, core.StudentPartition(studentID), "answer-count", &count, func() (err error) {
		count, err = svc.answers.CountAnswers(ctx, AnswerFilter{StudentID: studentID})
		return err
	})
	return count, errors.Wrap(err, "counting student answers")
}

// LatestAnswersByStudent returns the answers of the student's most recent attempt, or none if they never started one.
func (svc *Service) LatestAnswersByStudent(ctx context.Context, studentID string) ([]Answer, error) {
	latest, err := svc.LatestAttemptByStudent(ctx, studentID)
	if errors.Is(err, ErrNotFound) {
		return []Answer{}, nil
	} else if err != nil {
		return nil, err
	}
	return svc.AnswersByAttempt(ctx, studentID, latest.ID)
}

// cached reads dest from the cache, or fills it with load and stores it.
// Cache failures only degrade to a direct load.
func (svc *Service) cached(ctx context.Context, partition core.CachePartition, key string, dest interface{}, load func() error) error {
	// taken before loading: if a write invalidates the partition meanwhile, the result is stored
	// under a dead generation
	gen, err := svc.cache.Generation(ctx, partition)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cache generation %s: %v", partition, err), err)
		return load()
	}

	found, err := svc.cache.Get(ctx, partition, gen, key, dest)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cache %s/%s: %v", partition, key, err), err)
	} else if found {
		return nil
	}

	if err = load(); err != nil {
		return err
	}
	if err = svc.cache.Set(ctx, partition, gen, key, dest); err != nil {
		svc.logger.Warn(fmt.Sprintf("writing cache %s/%s: %v", partition, key, err), err)
	}
	return nil
}

func orderingKey(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return "?" + strings.Join(parts, ",")
}
