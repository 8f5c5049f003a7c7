package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fetchbot/internal/logging"
	"fetchbot/internal/media"
	"fetchbot/internal/services"
)

// Destination says where and how the file is delivered.
type Destination struct {
	ChatID int64
	// FileName is the name shown to the recipient, extension included.
	FileName   string
	Kind       media.Kind
	AsDocument bool
}

// File is one transfer request handed to the Sender.
type File struct {
	Destination
	Path    string
	Size    int64
	Caption string
}

// Sender is the messaging-platform collaborator. Implementations return the
// platform message identifier. Rate-limit replies should be reported as
// *services.RetryAfterError; network failures as services.Transient.
type Sender interface {
	SendFile(ctx context.Context, file File, onProgress func(sent, total int64)) (string, error)
}

// Executor uploads files with retries.
type Executor struct {
	sender Sender
	limit  int64
	policy services.RetryPolicy
	logger *slog.Logger
}

// NewExecutor returns an executor enforcing limitBytes before transfer.
func NewExecutor(sender Sender, limitBytes int64, policy services.RetryPolicy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{sender: sender, limit: limitBytes, policy: policy, logger: logger}
}

// Upload sends filePath to dest and returns the delivery id.
func (e *Executor) Upload(ctx context.Context, filePath string, dest Destination, caption string, onProgress func(sent, total int64)) (string, error) {
	if e.sender == nil {
		return "", services.Wrap(services.ErrConfiguration, "upload", "send", "no sender configured", nil)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return "", services.Wrap(services.ErrUpload, "upload", "stat", "artifact missing", err)
	}
	if e.limit > 0 && info.Size() > e.limit {
		return "", services.Wrap(services.ErrSizeLimitExceeded, "upload", "precheck",
			fmt.Sprintf("file is %d bytes, platform limit %d", info.Size(), e.limit), nil)
	}
	if strings.TrimSpace(dest.FileName) == "" {
		dest.FileName = filepath.Base(filePath)
	}

	file := File{Destination: dest, Path: filePath, Size: info.Size(), Caption: caption}
	var deliveryID string
	err = e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		id, err := e.sender.SendFile(ctx, file, onProgress)
		if err != nil {
			return err
		}
		deliveryID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrCancelled) {
			return "", err
		}
		return "", services.Wrap(services.ErrUpload, "upload", "send", "", err)
	}
	return deliveryID, nil
}
