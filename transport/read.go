package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Read retry defaults for files still held open by the hook. The budget is
// per scan; a file still locked afterwards is retried on the next scan.
const (
	DefaultReadAttempts = 5
	DefaultReadInterval = 100 * time.Millisecond
)

var (
	// ErrVanished is returned when a queue file disappears before it is read.
	ErrVanished = errors.New("queue file vanished")
	// ErrLocked is returned when a queue file stays locked for every attempt.
	ErrLocked = errors.New("queue file locked")
)

// FileReader reads queue files, retrying while the writer still holds them.
type FileReader struct {
	Attempts int
	Interval time.Duration
	// ReadFile reads one file. Nil uses os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

// ReadQueueFile reads path with the default retry policy.
func ReadQueueFile(ctx context.Context, path string) ([]byte, error) {
	var r FileReader
	return r.Read(ctx, path)
}

// Read reads path. Permission and sharing violations are retried every
// Interval up to Attempts times; a missing file yields ErrVanished.
func (r *FileReader) Read(ctx context.Context, path string) ([]byte, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultReadAttempts
	}
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultReadInterval
	}
	read := r.ReadFile
	if read == nil {
		read = os.ReadFile
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, interval); err != nil {
				return nil, err
			}
		}
		data, err := read(path)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVanished, path)
		}
		if !isLocked(err) {
			return nil, fmt.Errorf("failed to read queue file: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrLocked, path, attempts, lastErr)
}

// isLocked reports whether err means another process holds the file.
func isLocked(err error) bool {
	return errors.Is(err, fs.ErrPermission) || isSharingViolation(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
