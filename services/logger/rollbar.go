package logsvc

import (
	"context"
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/student"
)

// RollbarLogger reports to Rollbar and echoes every entry to a standard logger.
type RollbarLogger struct {
	client *rollbar.Client
	std    *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{client: client, std: std}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled)
}

// Close flushes the reports still queued.
func (l *RollbarLogger) Close() error {
	return l.client.Close()
}

// report is what a log call sends to Rollbar, picked out of its args:
// the first error, the acting student and the attempt it is about.
type report struct {
	err    error
	person *rollbar.Person
	extras map[string]interface{}
}

func newReport(args []interface{}) report {
	r := report{extras: make(map[string]interface{})}
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			if r.err == nil {
				r.err = v
			}
		case student.Student:
			if r.person == nil {
				r.person = &rollbar.Person{Id: v.ID, Username: v.Name, Email: v.Email}
			}
		case attempt.Attempt:
			r.extras["attempt_id"] = v.ID
			r.extras["quiz_id"] = v.QuizID
			r.extras["student_id"] = v.StudentID
			r.extras["status"] = v.Status
		case attempt.Completed:
			r.extras["attempt_id"] = v.AttemptID
			r.extras["quiz_id"] = v.QuizID
			r.extras["student_id"] = v.StudentID
			r.extras["score"] = v.Score
			r.extras["total_marks"] = v.TotalMarks
		case map[string]interface{}:
			for k, x := range v {
				r.extras[k] = x
			}
		}
	}
	if id, ok := r.extras["student_id"].(string); ok && r.person == nil {
		r.person = &rollbar.Person{Id: id}
	}
	return r
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	r := newReport(args)
	ctx := context.Background()
	if r.person != nil {
		ctx = rollbar.NewPersonContext(ctx, r.person)
	}

	if r.err != nil {
		r.extras["message"] = msg
		l.client.ErrorWithExtrasAndContext(ctx, level, r.err, r.extras)
	} else {
		l.client.MessageWithExtrasAndContext(ctx, level, msg, r.extras)
	}

	l.std.Printf("%s %s", strings.ToUpper(level), msg)
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.client.Wait()
	l.std.Fatal(msg)
}
