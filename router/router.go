// Package router classifies decoded records and dispatches them to the
// session tracker.
//
// The router:
//   - discards inputs created before the run started (stale queue files)
//   - sends requests and responses to the matching handler entry point
//   - contains handler errors and panics to the failing input
package router

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/tracker"
	"github.com/pithecene-io/juicer/types"
)

// Input is one decoded record ready for routing.
type Input struct {
	Direction types.Direction
	// Created is when the producer wrote the record. Zero for streamed input.
	Created time.Time
	Record  record.Value
	// Source names the origin for logs: a queue file path or "udp".
	Source string
}

// Handler consumes routed records.
type Handler interface {
	HandleResponse(rec record.Value) (tracker.Update, error)
	HandleRequest(rec record.Value) (tracker.Update, error)
}

// Notifier surfaces a non-fatal problem to the user.
type Notifier interface {
	Notify(title, message string)
}

// LogNotifier writes notifications to the log at warn level.
type LogNotifier struct {
	Logger *log.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(title, message string) {
	if n.Logger == nil {
		return
	}
	n.Logger.Warn(title, map[string]any{"notice": message})
}

// RuleError wraps a handler failure with the input that caused it.
type RuleError struct {
	Direction types.Direction
	Source    string
	Err       error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("handling %s from %s: %v", e.Direction, e.Source, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Router dispatches inputs to a Handler. Not safe for concurrent use.
type Router struct {
	// StartTime is the stale cutoff. Inputs created before it are dropped.
	StartTime time.Time

	handler   Handler
	notifier  Notifier
	logger    *log.Logger
	collector *metrics.Collector
}

// New creates a router whose stale cutoff is start.
// notifier, logger and collector may be nil.
func New(h Handler, start time.Time, notifier Notifier, logger *log.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Router{
		StartTime: start,
		handler:   h,
		notifier:  notifier,
		logger:    logger,
		collector: collector,
	}
}

// Restart moves the stale cutoff to now.
func (r *Router) Restart(now time.Time) {
	r.StartTime = now
}

// IsStale reports whether a record created at created predates the run.
// A zero time is never stale.
func (r *Router) IsStale(created time.Time) bool {
	return !created.IsZero() && created.Before(r.StartTime)
}

// Route dispatches one input. The boolean is false when the input was
// discarded or its handler failed; the returned Update is then empty.
func (r *Router) Route(in Input) (tracker.Update, bool) {
	if r.IsStale(in.Created) {
		r.collector.IncStaleDiscarded()
		r.logger.Debug("stale record discarded", map[string]any{
			"source":  in.Source,
			"created": in.Created,
		})
		return tracker.Update{}, false
	}

	u, err := r.dispatch(in)
	if err != nil {
		r.collector.IncRuleError()
		r.logger.Error("record handling failed", map[string]any{
			"direction": string(in.Direction),
			"source":    in.Source,
			"error":     err.Error(),
			"record":    in.Record.Any(),
		})
		r.notifier.Notify("Record handling failed", err.Error())
		return tracker.Update{}, false
	}

	r.collector.IncRouted(string(in.Direction))
	return u, true
}

func (r *Router) dispatch(in Input) (u tracker.Update, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("handler panic", map[string]any{"stack": string(debug.Stack())})
			u = tracker.Update{}
			err = &RuleError{Direction: in.Direction, Source: in.Source, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	switch in.Direction {
	case types.DirectionRequest:
		u, err = r.handler.HandleRequest(in.Record)
	case types.DirectionResponse:
		u, err = r.handler.HandleResponse(in.Record)
	default:
		return tracker.Update{}, &RuleError{
			Direction: in.Direction,
			Source:    in.Source,
			Err:       fmt.Errorf("unknown direction %q", in.Direction),
		}
	}
	if err != nil {
		return tracker.Update{}, &RuleError{Direction: in.Direction, Source: in.Source, Err: err}
	}
	return u, nil
}
