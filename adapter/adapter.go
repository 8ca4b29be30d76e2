// Package adapter defines the renderer boundary.
//
// The tracker produces updates; adapters publish them as payloads to
// whatever draws them (an overlay, a helper window, a browser tab).
// The runtime owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/juicer/types"
)

// Kind names the payload variants.
type Kind string

// Payload kinds.
const (
	KindScreenState Kind = "screen_state"
	KindHelperOpen  Kind = "helper_open"
	KindOverlay     Kind = "overlay"
	KindEventHint   Kind = "event_hint"
	KindSessionEnd  Kind = "session_end"
	KindSimulation  Kind = "simulation"
)

// ErrRendererGone means the renderer went away for good. The run loop ends
// quietly when a publisher returns it.
var ErrRendererGone = errors.New("renderer gone")

// Payload is one message to the renderer.
type Payload struct {
	ContractVersion string `json:"contract_version"`
	Kind            Kind   `json:"kind"`
	RunID           string `json:"run_id"`
	TrainingID      string `json:"training_id,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	Data            any    `json:"data,omitempty"`
}

// NewPayload stamps a payload with the contract version and time.
func NewPayload(kind Kind, runID, trainingID string, data any, now time.Time) *Payload {
	return &Payload{
		ContractVersion: types.PayloadContractVersion,
		Kind:            kind,
		RunID:           runID,
		TrainingID:      trainingID,
		Timestamp:       now.UTC().Format(time.RFC3339Nano),
		Data:            data,
	}
}

// Publisher delivers payloads to a renderer.
type Publisher interface {
	// Publish sends one payload. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, p *Payload) error

	// Close releases publisher resources.
	Close() error
}

// RetryDelay is the pause before retry n, starting at 500ms for n == 1 and
// doubling after that.
func RetryDelay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * 500 * time.Millisecond
}

// WaitRetry sleeps RetryDelay(n) or until ctx is done.
func WaitRetry(ctx context.Context, n int) error {
	t := time.NewTimer(RetryDelay(n))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Nop drops every payload. Used when no renderer is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *Payload) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Recorder keeps published payloads in memory. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	payloads []*Payload
	// Err, when set, is returned from Publish instead of recording.
	Err    error
	closed bool
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, p *Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.payloads = append(r.payloads, p)
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Payloads returns a copy of everything published so far.
func (r *Recorder) Payloads() []*Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Payload(nil), r.payloads...)
}

// Kinds lists the kinds of published payloads in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = p.Kind
	}
	return out
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*Recorder)(nil)
)
