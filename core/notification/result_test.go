package notification_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/notification"
	"github.com/edusmart/assessment/core/student"
	emailsvc "github.com/edusmart/assessment/services/email"
	"github.com/edusmart/assessment/tests"
)

func TestResultNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)

	env := testutil.NewEnv(t)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	notifier := notification.NewResultNotifier(env.Catalog, env.Catalog, mailSvc, logger)

	qz, _ := env.CreateQuiz(t, 0, 0, 2, 2)
	stdt := env.CreateStudent(t, "Grace")
	silent := env.Catalog.AddStudent(student.Student{ID: "no-email", Name: "Silent"})

	tests := []struct {
		name      string
		studentID string
		quizID    string
		wantErr   error
		wantSent  int
	}{
		{name: "unknown student", studentID: "nope", quizID: qz.ID, wantErr: student.ErrNotFound},
		{name: "no email", studentID: silent.ID, quizID: qz.ID},
		{name: "sent", studentID: stdt.ID, quizID: qz.ID, wantSent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := notifier.Notify(ctx, attempt.Completed{
				AttemptID:   "a1",
				QuizID:      tt.quizID,
				StudentID:   tt.studentID,
				Score:       3,
				TotalMarks:  4,
				CompletedAt: time.Now(),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, mailSvc.SentMessages(), tt.wantSent)
		})
	}

	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, stdt.Email, msg.To[0].Address)
	assert.Equal(t, "Your result for "+qz.Title, msg.Subject)
	assert.Contains(t, msg.TextContent, "Score: 3 / 4 (75.0%)")
	assert.Contains(t, msg.TextContent, conf.FrontendBaseURL+"/quizzes/"+qz.ID+"/attempts")
	assert.Empty(t, logger.Entries("error"))
}

// heldMailService holds every send until release is closed.
type heldMailService struct {
	*emailsvc.ConsoleServiceMock
	release chan struct{}
}

func (svc heldMailService) SendMessages(messages ...*core.EmailMessage) {
	<-svc.release
	svc.ConsoleServiceMock.SendMessages(messages...)
}

func TestResultNotifier_Wait(t *testing.T) {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(conf, logger)

	env := testutil.NewEnv(t)
	mailSvc := heldMailService{ConsoleServiceMock: emailsvc.NewConsoleServiceMock(conf, logger), release: make(chan struct{})}
	notifier := notification.NewResultNotifier(env.Catalog, env.Catalog, mailSvc, logger)

	qz, _ := env.CreateQuiz(t, 0, 0, 4)
	const n = 3
	for i := 0; i < n; i++ {
		stdt := env.CreateStudent(t, fmt.Sprintf("Student%d", i))
		notifier.Publish(attempt.Completed{
			AttemptID:   fmt.Sprintf("a%d", i),
			QuizID:      qz.ID,
			StudentID:   stdt.ID,
			Score:       i,
			TotalMarks:  4,
			CompletedAt: time.Now(),
		})
	}

	// sends are held: the wait gives up with its context
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := notifier.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, mailSvc.SentMessages())

	close(mailSvc.release)
	require.NoError(t, notifier.Wait(context.Background()))
	assert.Len(t, mailSvc.SentMessages(), n)
	assert.Empty(t, logger.Entries("error"))
}
