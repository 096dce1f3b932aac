package enrollment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/edusmart/assessment/core"
	"github.com/edusmart/assessment/core/attempt"
)

var NowFunc = time.Now // mockable

type (
	Options struct {
		QueueSize    int
		Workers      int
		MaxRetries   int           // retries after the first failed write
		RetryBackoff time.Duration // doubled after every retry
	}

	// Synchronizer propagates attempt completions to enrollments in the background.
	// Its failures are logged and never reach the code that completed the attempt.
	Synchronizer struct {
		repo   Repository
		logger core.Logger
		opts   Options
		events chan attempt.Completed
		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu      sync.RWMutex
		started bool
		stopped bool
	}
)

var _ attempt.CompletionPublisher = (*Synchronizer)(nil)

func NewSynchronizer(repo Repository, logger core.Logger, opts Options) *Synchronizer {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		repo:   repo,
		logger: logger,
		opts:   opts,
		events: make(chan attempt.Completed, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers draining the queue. Events published before Start wait in the queue.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for evt := range s.events {
				s.deliver(s.ctx, evt)
			}
		}()
	}
}

// Stop stops accepting events and waits for the queued ones to be delivered,
// or aborts pending retries once ctx is done.
func (s *Synchronizer) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.events)
	if !s.started {
		// nobody will drain the queue
		for evt := range s.events {
			s.logger.Warn("enrollment synchronizer stopped before start; dropping event", evt)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
}

// Publish queues the event. When the queue is full the event is delivered from its own goroutine.
func (s *Synchronizer) Publish(evt attempt.Completed) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.logger.Warn("enrollment synchronizer stopped; dropping event", evt)
		return
	}
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("enrollment queue full; delivering in background", evt)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(s.ctx, evt)
		}()
	}
}

// SyncCompletion marks the enrollment of the event's student on its quiz as completed, retrying with backoff.
// The final failure is reported as ErrSyncFailed.
func (s *Synchronizer) SyncCompletion(ctx context.Context, evt attempt.Completed) error {
	updatedAt := evt.CompletedAt
	if updatedAt.IsZero() {
		updatedAt = NowFunc().UTC()
	}
	e := Enrollment{
		StudentID:       evt.StudentID,
		QuizID:          evt.QuizID,
		Completed:       true,
		ScorePercentage: ScorePercentage(evt.Score, evt.TotalMarks),
		UpdatedAt:       updatedAt,
	}

	backoff := s.opts.RetryBackoff
	var err error
	for try := 0; try <= s.opts.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrapf(ErrSyncFailed, "attempt %s: %v (after %v)", evt.AttemptID, ctx.Err(), err)
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = s.upsert(ctx, e); err == nil {
			return nil
		}
		s.logger.Warn(fmt.Sprintf("upserting enrollment (try %d/%d): %v", try+1, s.opts.MaxRetries+1, err), err, evt)
	}
	return errors.Wrapf(ErrSyncFailed, "attempt %s: %v", evt.AttemptID, err)
}

func (s *Synchronizer) GetEnrollment(ctx context.Context, studentID, quizID string) (Enrollment, error) {
	e, err := s.repo.GetEnrollment(ctx, studentID, quizID)
	return e, errors.Wrap(err, "getting enrollment")
}

func (s *Synchronizer) deliver(ctx context.Context, evt attempt.Completed) {
	if err := s.SyncCompletion(ctx, evt); err != nil {
		s.logger.Error(fmt.Sprintf("syncing enrollment: %v", err), err, evt)
	}
}

func (s *Synchronizer) upsert(ctx context.Context, e Enrollment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("enrollment store panicked: %v", r)
		}
	}()
	return s.repo.UpsertEnrollment(ctx, e)
}
