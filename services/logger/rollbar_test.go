package logsvc

import (
	"bytes"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
	"github.com/edusmart/assessment/core/student"
)

// recordingTransport keeps the items instead of posting them to Rollbar.
type recordingTransport struct {
	mu    sync.Mutex
	items []map[string]interface{}
}

func (tr *recordingTransport) Send(body map[string]interface{}) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.items = append(tr.items, body["data"].(map[string]interface{}))
	return nil
}

func (tr *recordingTransport) last() map[string]interface{} {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.items) == 0 {
		return nil
	}
	return tr.items[len(tr.items)-1]
}

func (tr *recordingTransport) Close() error                           { return nil }
func (tr *recordingTransport) Wait()                                  {}
func (tr *recordingTransport) SetToken(string)                        {}
func (tr *recordingTransport) SetEndpoint(string)                     {}
func (tr *recordingTransport) SetLogger(rollbar.ClientLogger)         {}
func (tr *recordingTransport) SetRetryAttempts(int)                   {}
func (tr *recordingTransport) SetPrintPayloadOnError(printOnErr bool) {}

func newTestLogger() (*RollbarLogger, *recordingTransport, *bytes.Buffer) {
	out := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(out, "", 0), core.NewTestConfig())
	tr := new(recordingTransport)
	logger.client.Transport = tr
	return logger, tr, out
}

func TestRollbarLogger(t *testing.T) {
	grace := student.Student{ID: "stdt-1", Name: "Grace", Email: "grace@example.com"}
	completed := attempt.Completed{
		AttemptID:   "a1",
		QuizID:      "q1",
		StudentID:   "stdt-2",
		Score:       3,
		TotalMarks:  4,
		CompletedAt: time.Now(),
	}

	tests := []struct {
		name       string
		logFn      func(l *RollbarLogger)
		wantLevel  string
		wantTitle  string
		wantPerson map[string]string
		wantCustom map[string]interface{}
	}{
		{
			name:      "plain message",
			logFn:     func(l *RollbarLogger) { l.Info("attempt a1 expired", map[string]interface{}{"attempt_id": "a1"}) },
			wantLevel: rollbar.INFO,
			wantTitle: "attempt a1 expired",
			wantCustom: map[string]interface{}{
				"attempt_id": "a1",
			},
		},
		{
			name: "acting student",
			logFn: func(l *RollbarLogger) {
				l.Error("submitting answer: boom", errors.New("boom"), grace, student.Student{ID: "other"})
			},
			wantLevel:  rollbar.ERR,
			wantTitle:  "boom",
			wantPerson: map[string]string{"id": "stdt-1", "username": "Grace", "email": "grace@example.com"},
			wantCustom: map[string]interface{}{"message": "submitting answer: boom"},
		},
		{
			name:       "completion event",
			logFn:      func(l *RollbarLogger) { l.Warn("enrollment queue full", completed) },
			wantLevel:  rollbar.WARN,
			wantTitle:  "enrollment queue full",
			wantPerson: map[string]string{"id": "stdt-2", "username": "", "email": ""},
			wantCustom: map[string]interface{}{
				"attempt_id":  "a1",
				"quiz_id":     "q1",
				"student_id":  "stdt-2",
				"score":       3,
				"total_marks": 4,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, tr, _ := newTestLogger()
			tt.logFn(logger)

			item := tr.last()
			require.NotNil(t, item)
			assert.Equal(t, tt.wantLevel, item["level"])
			assert.Equal(t, tt.wantTitle, item["title"])
			assert.Equal(t, tt.wantCustom, item["custom"])
			if tt.wantPerson == nil {
				assert.NotContains(t, item, "person")
			} else {
				assert.Equal(t, tt.wantPerson, item["person"])
			}
		})
	}
}

func TestRollbarLogger_disabled(t *testing.T) {
	logger, tr, out := newTestLogger()
	logger.Enable(false)

	logger.Warn("cache unreachable", errors.New("dial tcp: refused"))

	assert.Nil(t, tr.last())
	assert.Contains(t, out.String(), "WARNING cache unreachable")
	assert.Contains(t, out.String(), "dial tcp: refused")
}
