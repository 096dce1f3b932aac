// Package notification emails students the outcome of their completed attempts.
package notification

import (
	"context"
	"fmt"
	"net/mail"
	"sync"

	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/enrollment"
	"github.com/edusmart/assessment/core/quiz"
	"github.com/edusmart/assessment/core/student"
)

const resultTemplate = "attempt_result"

type (
	ResultNotifier struct {
		students student.Directory
		quizzes  quiz.Repository
		mailSvc  core.EmailService
		logger   core.Logger
		inflight sync.WaitGroup
	}

	resultData struct {
		StudentName string
		QuizID      string
		QuizTitle   string
		Score       int
		TotalMarks  int
		Percentage  float64
	}
)

var _ attempt.CompletionPublisher = (*ResultNotifier)(nil)

func NewResultNotifier(students student.Directory, quizzes quiz.Repository, mailSvc core.EmailService, logger core.Logger) *ResultNotifier {
	return &ResultNotifier{
		students: students,
		quizzes:  quizzes,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

func (n *ResultNotifier) Publish(evt attempt.Completed) {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		if err := n.Notify(context.Background(), evt); err != nil {
			n.logger.Error(fmt.Sprintf("notifying attempt result: %v", err), err, evt)
		}
	}()
}

// Wait blocks until the published results are emailed, or until ctx is done.
func (n *ResultNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		n.mailSvc.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for result emails")
	}
}

// Notify sends the result email of a completed attempt to its student.
func (n *ResultNotifier) Notify(ctx context.Context, evt attempt.Completed) error {
	stdt, err := n.students.GetStudent(ctx, evt.StudentID)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	if stdt.Email == "" {
		return nil
	}
	qz, err := n.quizzes.GetQuiz(ctx, evt.QuizID)
	if err != nil {
		return errors.Wrap(err, "getting quiz")
	}

	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{stdt.Address()},
		Subject:      "Your result for " + qz.Title,
		TemplateName: resultTemplate,
		TemplateData: resultData{
			StudentName: stdt.Name,
			QuizID:      qz.ID,
			QuizTitle:   qz.Title,
			Score:       evt.Score,
			TotalMarks:  evt.TotalMarks,
			Percentage:  enrollment.ScorePercentage(evt.Score, evt.TotalMarks),
		},
	})
	return nil
}
