package session

import (
	"context"
	"time"

	"fetchbot/internal/logging"
)

// Start launches the periodic expiry sweep.
func (m *Manager) Start(ctx context.Context) {
	interval := m.sweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.baseCtx.Done():
				return
			case <-ticker.C:
				if evicted := m.SweepExpired(m.now()); evicted > 0 {
					m.logger.Debug("sessions evicted",
						logging.Int("evicted", evicted),
						logging.Int("remaining", m.Len()),
						logging.String(logging.FieldEventType, "session_sweep"),
					)
				}
			}
		}
	}()
}

// Stop aborts pending resolutions and waits for background work to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// SweepExpired evicts sessions idle past their TTL and sessions whose job
// finished more than the grace window ago without a follow-up. Sessions with
// a resolution pending are kept until it reports. JobInFlight sessions are
// never evicted; past their TTL they are flagged so the next progress tick
// cancels the job. It returns the number of evicted sessions.
func (m *Manager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	evicted := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		m.reconcileLocked(e)
		idle := m.ttl > 0 && now.Sub(e.lastActivity) > m.ttl

		evict := false
		if e.state == StateJobInFlight {
			if idle && !e.expired {
				e.expired = true
				m.userLogger(e.userID).Info("session expired with job in flight",
					logging.JobID(e.activeJob.ID()),
					logging.String(logging.FieldEventType, "session_expired_in_flight"),
				)
			}
		} else if !e.resolving {
			afterJob := m.grace > 0 && !e.finishedAt.IsZero() &&
				!e.lastActivity.After(e.finishedAt) && now.Sub(e.finishedAt) > m.grace
			evict = idle || afterJob
		}
		if evict {
			e.evicted = true
			e.generation++
		}
		e.mu.Unlock()

		if evict {
			m.mu.Lock()
			if m.sessions[e.userID] == e {
				delete(m.sessions, e.userID)
			}
			m.mu.Unlock()
			evicted++
		}
	}
	return evicted
}
