package ephemeral

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"fetchbot/internal/logging"
	"fetchbot/internal/services"
)

const jobDirPrefix = "job-"

// Stats reports quota usage and lifetime reservation counters.
type Stats struct {
	QuotaBytes   int64  `json:"quota_bytes"`
	UsedBytes    int64  `json:"used_bytes"`
	Reservations int    `json:"reservations"`
	Reserved     uint64 `json:"reserved"`
	Released     uint64 `json:"released"`
}

// Manager tracks the byte quota and per-job directories below root.
type Manager struct {
	root   string
	quota  int64
	logger *slog.Logger

	// freeBytes reports available space on the filesystem holding path.
	freeBytes func(path string) (uint64, error)

	mu       sync.Mutex
	used     int64
	byJob    map[string]map[*Token]struct{}
	reserved uint64
	released uint64
}

// Token is one reservation. Release returns its bytes to the quota.
type Token struct {
	manager *Manager
	jobID   string
	bytes   int64
}

// NewManager creates the root directory when missing.
func NewManager(root string, quotaBytes int64, logger *slog.Logger) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ephemeral", "init", "ephemeral directory not set", nil)
	}
	if quotaBytes <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "ephemeral", "init", "quota must be positive", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ephemeral", "init", "create ephemeral directory", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		root:      root,
		quota:     quotaBytes,
		logger:    logging.NewComponentLogger(logger, "ephemeral"),
		freeBytes: statfsFree,
		byJob:     make(map[string]map[*Token]struct{}),
	}, nil
}

// Root returns the ephemeral root directory.
func (m *Manager) Root() string { return m.root }

// JobDir returns the directory owned by jobID.
func (m *Manager) JobDir(jobID string) string {
	return filepath.Join(m.root, jobDirPrefix+jobID)
}

// Reserve claims bytes for jobID. It fails with ErrQuotaExceeded when the
// quota or the filesystem's free space cannot hold the request.
func (m *Manager) Reserve(jobID string, bytes int64) (*Token, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, services.Wrap(services.ErrValidation, "ephemeral", "reserve", fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	if bytes <= 0 {
		return nil, services.Wrap(services.ErrValidation, "ephemeral", "reserve", "reservation must be positive", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.used+bytes > m.quota {
		return nil, services.Wrap(services.ErrQuotaExceeded, "ephemeral", "reserve",
			fmt.Sprintf("need %d bytes, %d of %d in use", bytes, m.used, m.quota), nil)
	}
	if m.freeBytes != nil {
		free, err := m.freeBytes(m.root)
		if err != nil {
			m.logger.Warn("free space check failed",
				logging.String("path", m.root),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ephemeral_statfs_failed"),
				logging.String(logging.FieldErrorHint, "check ephemeral_dir permissions"),
				logging.String(logging.FieldImpact, "reservation accepted without free space guard"),
			)
		} else if free < uint64(bytes) {
			return nil, services.Wrap(services.ErrQuotaExceeded, "ephemeral", "reserve",
				fmt.Sprintf("need %d bytes, filesystem has %d free", bytes, free), nil)
		}
	}

	if err := os.MkdirAll(m.JobDir(jobID), 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ephemeral", "reserve", "create job directory", err)
	}

	token := &Token{manager: m, jobID: jobID, bytes: bytes}
	set := m.byJob[jobID]
	if set == nil {
		set = make(map[*Token]struct{})
		m.byJob[jobID] = set
	}
	set[token] = struct{}{}
	m.used += bytes
	m.reserved++
	m.logger.Debug("reserved ephemeral space",
		logging.JobID(jobID),
		logging.Int64("reserved_bytes", bytes),
		logging.Int64("used_bytes", m.used),
	)
	return token, nil
}

// JobID returns the owning job.
func (t *Token) JobID() string { return t.jobID }

// Bytes returns the reserved size.
func (t *Token) Bytes() int64 { return t.bytes }

// Path returns name inside the job directory. Separators in name are rejected.
func (t *Token) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", services.Wrap(services.ErrValidation, "ephemeral", "path", fmt.Sprintf("invalid file name %q", name), nil)
	}
	return filepath.Join(t.manager.JobDir(t.jobID), name), nil
}

// Release returns the reservation to the quota. Extra calls, and calls after
// ReleaseJob, are no-ops.
func (t *Token) Release() {
	if t == nil {
		return
	}
	m := t.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(t)
}

func (m *Manager) releaseLocked(t *Token) {
	set := m.byJob[t.jobID]
	if _, ok := set[t]; !ok {
		return
	}
	delete(set, t)
	if len(set) == 0 {
		delete(m.byJob, t.jobID)
	}
	m.used -= t.bytes
	m.released++
}

// ReleaseJob releases every outstanding reservation of jobID and removes its
// directory. It is safe to call for jobs that never reserved anything.
func (m *Manager) ReleaseJob(jobID string) error {
	if jobID == "" {
		return nil
	}
	m.mu.Lock()
	for token := range m.byJob[jobID] {
		m.releaseLocked(token)
	}
	m.mu.Unlock()

	dir := m.JobDir(jobID)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove job directory",
			logging.JobID(jobID),
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ephemeral_release_failed"),
			logging.String(logging.FieldErrorHint, "check ephemeral_dir permissions"),
			logging.String(logging.FieldImpact, "files remain until the next sweep"),
		)
		return fmt.Errorf("remove job directory: %w", err)
	}
	return nil
}

// Stats returns a snapshot of quota usage.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, set := range m.byJob {
		count += len(set)
	}
	return Stats{
		QuotaBytes:   m.quota,
		UsedBytes:    m.used,
		Reservations: count,
		Reserved:     m.reserved,
		Released:     m.released,
	}
}

func statfsFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
