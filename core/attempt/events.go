package attempt

import "time"

type (
	// Completed is emitted once an attempt completion has been persisted.
	// Subscribers may receive the same attempt more than once.
	Completed struct {
		AttemptID   string    `json:"attempt_id"`
		QuizID      string    `json:"quiz_id"`
		StudentID   string    `json:"student_id"`
		Score       int       `json:"score"`
		TotalMarks  int       `json:"total_marks"`
		CompletedAt time.Time `json:"completed_at"`
	}

	// CompletionPublisher hands Completed events to a subscriber.
	// Publish must not block on the subscriber's own work nor report its failures.
	CompletionPublisher interface {
		Publish(evt Completed)
	}

	// Publishers fans an event out to every publisher.
	Publishers []CompletionPublisher
)

func (pubs Publishers) Publish(evt Completed) {
	for _, p := range pubs {
		if p != nil {
			p.Publish(evt)
		}
	}
}

func completedEvent(a Attempt) Completed {
	evt := Completed{
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		StudentID:  a.StudentID,
		Score:      a.Score,
		TotalMarks: a.TotalMarks,
	}
	if a.CompletedAt != nil {
		evt.CompletedAt = *a.CompletedAt
	}
	return evt
}
