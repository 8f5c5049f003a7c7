package ephemeral

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fetchbot/internal/logging"
)

// SweepResult contains the outcome of a sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// DirInfo describes one entry below the ephemeral root.
type DirInfo struct {
	Name    string    `json:"name"`
	JobID   string    `json:"job_id,omitempty"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Sweep removes job directories and stray files older than grace whose job is
// not reported live. A nil live func treats every job as dead.
func (m *Manager) Sweep(ctx context.Context, grace time.Duration, live func(jobID string) bool) SweepResult {
	result := SweepResult{}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: m.root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-grace)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(m.root, entry.Name())
		jobID, isJobDir := parseJobDir(entry)
		if isJobDir && live != nil && live(jobID) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
			continue
		}
		if !newestModTime(path, info).Before(cutoff) {
			continue
		}
		if isJobDir {
			m.dropReservations(jobID)
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
			m.logger.Warn("failed to remove stale ephemeral entry",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "ephemeral_sweep_failed"),
				logging.String(logging.FieldErrorHint, "check ephemeral_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		m.logger.Info("removed stale ephemeral entry",
			logging.String("path", path),
			logging.JobID(jobID),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "ephemeral_sweep"),
		)
	}
	return result
}

// dropReservations forgets reservations of a job whose directory is swept.
func (m *Manager) dropReservations(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token := range m.byJob[jobID] {
		m.releaseLocked(token)
	}
}

// List returns the entries below the ephemeral root with their sizes.
func (m *Manager) List() ([]DirInfo, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []DirInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		jobID, _ := parseJobDir(entry)
		size := info.Size()
		if entry.IsDir() {
			size = dirSize(path)
		}
		out = append(out, DirInfo{
			Name:    entry.Name(),
			JobID:   jobID,
			Path:    path,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return out, nil
}

func parseJobDir(entry os.DirEntry) (string, bool) {
	if !entry.IsDir() || !strings.HasPrefix(entry.Name(), jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(entry.Name(), jobDirPrefix)
	return id, id != ""
}

// newestModTime returns the latest modification time under path so a
// directory with a file still being written is not considered stale.
func newestModTime(path string, info os.FileInfo) time.Time {
	newest := info.ModTime()
	if !info.IsDir() {
		return newest
	}
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
		return nil
	})
	return newest
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
