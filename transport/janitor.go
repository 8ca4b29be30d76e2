package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Janitor defaults.
const (
	DefaultRemoveAttempts = 5
	DefaultRemoveBackoff  = time.Second
)

// ErrSkipped is returned when a file could not be removed and has been
// added to the skip set.
var ErrSkipped = errors.New("queue file skipped")

// Janitor deletes processed queue files. A file that cannot be removed after
// MaxAttempts is remembered and never attempted again for the run.
type Janitor struct {
	MaxAttempts int
	Backoff     time.Duration

	// RemoveFile deletes one file. Nil uses os.Remove.
	RemoveFile func(string) error

	skipped map[string]struct{}
}

// NewJanitor creates a janitor with default retry settings.
func NewJanitor() *Janitor {
	return &Janitor{
		MaxAttempts: DefaultRemoveAttempts,
		Backoff:     DefaultRemoveBackoff,
	}
}

// Skipped reports whether path is in the skip set.
func (j *Janitor) Skipped(path string) bool {
	_, ok := j.skipped[path]
	return ok
}

// SkippedCount is the size of the skip set.
func (j *Janitor) SkippedCount() int {
	return len(j.skipped)
}

// Remove deletes path. A missing file counts as removed. After MaxAttempts
// failures path joins the skip set and ErrSkipped is returned; Remove on a
// skipped path does nothing.
func (j *Janitor) Remove(ctx context.Context, path string) error {
	if j.Skipped(path) {
		return nil
	}
	attempts := j.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultRemoveAttempts
	}
	remove := j.RemoveFile
	if remove == nil {
		remove = os.Remove
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, j.Backoff); err != nil {
				return err
			}
		}
		err := remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		lastErr = err
	}

	if j.skipped == nil {
		j.skipped = make(map[string]struct{})
	}
	j.skipped[path] = struct{}{}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrSkipped, path, attempts, lastErr)
}
