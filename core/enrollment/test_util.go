package enrollment

import (
	"context"
	"time"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
)

type SynchronizerMock struct {
	*Synchronizer
}

func NewSynchronizerMock(repo Repository, logger core.Logger) *SynchronizerMock {
	return &SynchronizerMock{
		Synchronizer: NewSynchronizer(repo, logger, Options{MaxRetries: 2, RetryBackoff: time.Millisecond}),
	}
}

func (s *SynchronizerMock) Publish(evt attempt.Completed) {
	// run synchronously
	s.deliver(context.Background(), evt)
}
