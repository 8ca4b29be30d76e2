package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the sleep between directory scans.
const DefaultPollInterval = 250 * time.Millisecond

// PollSource scans the hook's queue directory.
type PollSource struct {
	Dir      string
	Interval time.Duration
	// Watch wakes Wait early on a create or write in Dir.
	Watch bool

	watcher *fsnotify.Watcher
}

// Open starts the directory watcher when Watch is set. A source that is
// never opened still polls on Interval.
func (p *PollSource) Open() error {
	if !p.Watch || p.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create queue watcher: %w", err)
	}
	if err := w.Add(p.Dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch queue directory %s: %w", p.Dir, err)
	}
	p.watcher = w
	return nil
}

// Close stops the watcher.
func (p *PollSource) Close() error {
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}

// Wait blocks for one poll interval, or less when the watcher reports a new
// queue file. It returns ctx.Err() if ctx ends first.
func (p *PollSource) Wait(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if p.watcher != nil {
		events = p.watcher.Events
		errs = p.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if strings.HasSuffix(ev.Name, QueueExt) {
					return nil
				}
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}

// List returns the queue files in Dir ordered by modification time, then
// name. Files that vanish between the scan and the stat are left out.
func (p *PollSource) List() ([]QueueFile, error) {
	matches, err := filepath.Glob(filepath.Join(p.Dir, "*"+QueueExt))
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue directory: %w", err)
	}

	files := make([]QueueFile, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to stat queue file: %w", err)
		}
		name := filepath.Base(path)
		qf, perr := ParseQueueName(name)
		if perr != nil {
			qf = QueueFile{Name: name}
		}
		qf.Path = path
		qf.ModTime = info.ModTime()
		files = append(files, qf)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.Before(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}
