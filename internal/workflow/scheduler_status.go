package workflow

import (
	"context"
	"sort"

	"fetchbot/internal/ephemeral"
	"fetchbot/internal/job"
	"fetchbot/internal/stage"
)

// StatusSummary represents lightweight scheduler diagnostics.
type StatusSummary struct {
	Running        bool                    `json:"running"`
	Workers        int                     `json:"workers"`
	QueueLength    int                     `json:"queue_length"`
	MaxQueueLength int                     `json:"max_queue_length"`
	RunningJobs    int                     `json:"running_jobs"`
	LastError      string                  `json:"last_error,omitempty"`
	LastJob        *job.Snapshot           `json:"last_job,omitempty"`
	StageHealth    map[string]stage.Health `json:"stage_health"`
	Ephemeral      ephemeral.Stats         `json:"ephemeral"`
}

// Status returns the latest scheduler information.
func (s *Scheduler) Status(ctx context.Context) StatusSummary {
	s.mu.Lock()
	summary := StatusSummary{
		Running:        s.started && !s.stopping,
		Workers:        s.workers,
		QueueLength:    len(s.queue),
		MaxQueueLength: s.maxQueue,
		RunningJobs:    len(s.running),
	}
	if s.lastErr != nil {
		summary.LastError = s.lastErr.Error()
	}
	if s.lastJob != nil {
		last := *s.lastJob
		summary.LastJob = &last
	}
	stages := s.stages
	s.mu.Unlock()

	summary.StageHealth = make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		summary.StageHealth[stg.name] = stg.handler.HealthCheck(ctx)
	}
	if s.store != nil {
		summary.Ephemeral = s.store.Stats()
	}
	return summary
}

// Jobs returns snapshots of every job not yet released, oldest first.
func (s *Scheduler) Jobs() []job.Snapshot {
	s.mu.Lock()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// Lookup returns a registered job.
func (s *Scheduler) Lookup(jobID string) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// Live reports whether jobID is still registered. It backs the ephemeral sweep.
func (s *Scheduler) Live(jobID string) bool {
	_, ok := s.Lookup(jobID)
	return ok
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
