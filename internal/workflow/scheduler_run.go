package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fetchbot/internal/job"
	"fetchbot/internal/logging"
	"fetchbot/internal/notifications"
	"fetchbot/internal/services"
)

// errShutdown is the cancel reason given to jobs still alive at Stop.
var errShutdown = fmt.Errorf("%w: daemon shutting down", services.ErrCancelled)

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	if len(s.stages) == 0 {
		s.mu.Unlock()
		return errors.New("scheduler stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.stopping = false
	s.wg.Add(s.workers)
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		go s.runWorker(runCtx, i+1)
	}
	s.logger.Info("scheduler started",
		logging.Int("workers", s.workers),
		logging.Int("max_queue_length", s.maxQueue),
		logging.String(logging.FieldEventType, "scheduler_started"),
	)
	return nil
}

// Stop requests cancellation of every live job, drains the workers and
// returns once all of them have finished their terminal handling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	queued := s.queue
	s.queue = nil
	running := make([]*job.Job, 0, len(s.running))
	for _, j := range s.running {
		running = append(running, j)
	}
	cancel := s.cancel
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, j := range running {
		j.RequestCancel(errShutdown)
	}
	for _, j := range queued {
		j.RequestCancel(errShutdown)
		s.finish(context.Background(), j, errShutdown)
	}
	s.wg.Wait()
	cancel()

	s.mu.Lock()
	s.started = false
	s.cancel = nil
	s.mu.Unlock()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
}

// Submit admits j. It fails with Busy when the user already has a queued or
// running job and with CapacityExceeded when the queue is full. A rejected job
// is never registered.
func (s *Scheduler) Submit(j *job.Job) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return services.Wrap(services.ErrCapacityExceeded, "scheduler", "submit", "shutting down", nil)
	}
	if existing, ok := s.users[j.UserID()]; ok {
		s.mu.Unlock()
		return services.Wrap(services.ErrBusy, "scheduler", "submit", fmt.Sprintf("job %s still in flight", existing), nil)
	}
	if len(s.queue) >= s.maxQueue {
		queued := len(s.queue)
		s.mu.Unlock()
		s.publishCapacity(queued)
		return services.Wrap(services.ErrCapacityExceeded, "scheduler", "submit", fmt.Sprintf("%d jobs queued", queued), nil)
	}
	s.queue = append(s.queue, j)
	s.users[j.UserID()] = j.ID()
	s.jobs[j.ID()] = j
	position := len(s.queue)
	s.cond.Signal()
	s.mu.Unlock()

	s.logger.Info("job queued",
		logging.JobID(j.ID()),
		logging.UserID(j.UserID()),
		logging.Int("queue_position", position),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return nil
}

// QueuePosition returns the 1-based position of a queued job, or 0.
func (s *Scheduler) QueuePosition(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, j := range s.queue {
		if j.ID() == jobID {
			return i + 1
		}
	}
	return 0
}

// Cancel requests cancellation of the job. Queued jobs are removed and
// finished right away; running jobs stop at their next check point. It
// reports whether this call was the first cancel request for the job.
func (s *Scheduler) Cancel(jobID string, reason error) bool {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	idx := slices.IndexFunc(s.queue, func(q *job.Job) bool { return q.ID() == jobID })
	if idx >= 0 {
		s.queue = slices.Delete(s.queue, idx, idx+1)
		s.wg.Add(1)
	}
	s.mu.Unlock()

	first := j.RequestCancel(reason)
	if idx >= 0 {
		go func() {
			defer s.wg.Done()
			s.finish(context.Background(), j, cancellationError(j))
		}()
	}
	return first
}

func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With(logging.Int("worker", id))
	for {
		j := s.next()
		if j == nil {
			return
		}
		s.process(ctx, logger, j)
	}
}

// next blocks until a job is runnable or the scheduler stops. It takes the
// first queued job whose user is idle, leaving blocked users' jobs in place.
func (s *Scheduler) next() *job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopping {
			return nil
		}
		for i, j := range s.queue {
			if _, busy := s.running[j.UserID()]; busy {
				continue
			}
			s.queue = slices.Delete(s.queue, i, i+1)
			s.running[j.UserID()] = j
			return j
		}
		s.cond.Wait()
	}
}

func (s *Scheduler) publishCapacity(queued int) {
	s.logger.Warn("job rejected; queue full",
		logging.Int("queue_length", queued),
		logging.String(logging.FieldEventType, "capacity_exceeded"),
		logging.String(logging.FieldImpact, "user asked to retry later"),
		logging.String(logging.FieldErrorHint, "raise limits.max_queue_length or limits.max_concurrent_jobs"),
	)
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Publish(ctx, notifications.EventCapacityExceeded, notifications.Payload{"queueLength": queued}); err != nil {
			s.logger.Debug("capacity notification failed", logging.Error(err))
		}
	}()
}
