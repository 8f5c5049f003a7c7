package logging

import (
	"strings"
	"sync"
	"time"
)

// ProgressSampler suppresses repetitive progress updates while preserving signal
// when stages change, when the percentage advances by at least step points, or
// when interval has elapsed since the last emitted update.
type ProgressSampler struct {
	mu          sync.Mutex
	step        float64
	interval    time.Duration
	lastStage   string
	lastPercent float64
	lastAt      time.Time
}

// NewProgressSampler constructs a sampler. A non-positive step defaults to 5
// points; interval=0 disables the time-based trigger.
func NewProgressSampler(step float64, interval time.Duration) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step, interval: interval, lastPercent: -1}
}

// ShouldLog reports whether a progress event should be emitted. Percent can be
// negative to indicate "unknown"; unknown progress only emits on stage change
// or once per interval. Stage is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, stage string, now time.Time) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stage = strings.TrimSpace(stage)
	emit := false
	if stage != "" && stage != s.lastStage {
		s.lastStage = stage
		s.lastPercent = -1
		emit = true
	}
	if percent > 100 {
		percent = 100
	}
	if percent >= 0 && percent != s.lastPercent {
		switch {
		case s.lastPercent < 0:
			emit = true
		case percent-s.lastPercent >= s.step:
			emit = true
		case percent >= 100:
			emit = true
		case s.interval > 0 && now.Sub(s.lastAt) >= s.interval:
			emit = true
		}
	}
	if percent < 0 && !emit && s.interval > 0 && now.Sub(s.lastAt) >= s.interval {
		emit = true
	}
	if emit {
		if percent >= 0 {
			s.lastPercent = percent
		}
		s.lastAt = now
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new job starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStage = ""
	s.lastPercent = -1
	s.lastAt = time.Time{}
}
