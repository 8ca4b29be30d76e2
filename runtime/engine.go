// Package runtime drives ingestion for one run.
//
// A single goroutine owns the loop. Each iteration runs housekeeping
// (pending simulations, injected debug records), then one transport step:
// a queue directory scan when polling, or one bounded UDP receive when
// streaming. Decoded records go through the router into the tracker, and
// whatever the tracker reports as changed is published to the renderer.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pithecene-io/juicer/adapter"
	"github.com/pithecene-io/juicer/iox"
	"github.com/pithecene-io/juicer/ipc"
	"github.com/pithecene-io/juicer/lode"
	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/router"
	"github.com/pithecene-io/juicer/simulator"
	"github.com/pithecene-io/juicer/tracker"
	"github.com/pithecene-io/juicer/transport"
	"github.com/pithecene-io/juicer/types"
)

// DefaultShutdownTimeout bounds the final metrics write after the loop ends.
const DefaultShutdownTimeout = 10 * time.Second

// Outcome says why a run ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeStopped means Stop was called.
	OutcomeStopped Outcome = "stopped"
	// OutcomeCanceled means the context ended.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeRendererGone means a publisher reported the renderer closed.
	OutcomeRendererGone Outcome = "renderer_gone"
	// OutcomeFailed means a fatal error ended the loop.
	OutcomeFailed Outcome = "failed"
)

// Config configures a single run.
type Config struct {
	// RunID identifies the run. Generated when empty.
	RunID string
	// Transport selects the front-end. Exactly one runs per engine.
	Transport types.TransportKind
	// StartTime is the stale cutoff. Zero means the moment Run starts.
	StartTime time.Time

	// Poll is the queue directory source (TransportPoll).
	Poll *transport.PollSource
	// Reader reads queue files. Nil uses the default retry policy.
	Reader *transport.FileReader
	// Janitor removes processed queue files. Nil uses the defaults.
	Janitor *transport.Janitor
	// ResponsePrefix and RequestPrefix are the header sizes stripped from
	// queue files before decoding.
	ResponsePrefix int
	RequestPrefix  int

	// Stream is the datagram source (TransportStream). Nil listens on the
	// default UDP address.
	Stream DatagramSource

	// DebugInput is a file whose JSON content is injected as a response and
	// then removed. Empty disables injection.
	DebugInput string

	// Tracker receives every routed record (required).
	Tracker *tracker.Tracker
	// Repository backs simulation summaries. Closed on shutdown.
	Repository masterdata.Repository
	// Publisher receives payloads. Nil drops them.
	Publisher adapter.Publisher
	// Notifier surfaces record handling failures. Nil logs them.
	Notifier router.Notifier

	// Archive stores every decoded record. Nil disables archiving.
	Archive *lode.Archive
	// SaveRacePackets also archives race packets found in responses.
	SaveRacePackets bool

	// Simulator computes skill timings. Nil disables simulation.
	Simulator simulator.Client
	// Iterations is passed to the simulator (default 2000).
	Iterations int
	// AutoSimulate re-runs the simulation whenever the inventory changes
	// after one has been requested in the current session.
	AutoSimulate bool

	// Closers are released with the other resources on shutdown (training
	// log, S3 clients).
	Closers []io.Closer

	// Logger is the run logger. Nil discards.
	Logger *log.Logger
	// Collector receives counters. If nil, no metrics are recorded (all
	// Collector methods are nil-safe).
	Collector *metrics.Collector
}

// Result reports a finished run.
type Result struct {
	RunID     string
	Transport types.TransportKind
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	// Message is the fatal error text for OutcomeFailed.
	Message string
	Metrics metrics.Snapshot
}

// DatagramSource yields raw datagrams. Receive returns (nil, nil) when
// ReceiveTimeout passes with nothing received.
type DatagramSource interface {
	Open() error
	Receive() ([]byte, error)
	ReceiveTimeout() time.Duration
	LocalAddr() net.Addr
	Close() error
}

var _ DatagramSource = (*transport.UDPSource)(nil)

// Engine is the ingestion loop. Run may be called once.
type Engine struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector
	router    *router.Router
	tracker   *tracker.Tracker
	publisher adapter.Publisher
	janitor   *transport.Janitor
	reader    *transport.FileReader
	assembler *ipc.Assembler
	now       func() time.Time

	stop       atomic.Bool
	simPending atomic.Bool

	// Loop-owned state.
	simActive       bool
	simRevision     int
	lastTrainingID  string
	invalidSeen     map[string]struct{}
	receiveFailures int
}

// New validates cfg and builds an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("engine requires a tracker")
	}
	kind, err := types.ParseTransportKind(string(cfg.Transport))
	if err != nil {
		return nil, err
	}
	cfg.Transport = kind
	switch kind {
	case types.TransportPoll:
		if cfg.Poll == nil || cfg.Poll.Dir == "" {
			return nil, errors.New("poll transport requires a queue directory")
		}
	case types.TransportStream:
		if cfg.Stream == nil {
			cfg.Stream = &transport.UDPSource{}
		}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = simulator.DefaultIterations
	}
	if cfg.Repository == nil {
		cfg.Repository = masterdata.NewMemory(masterdata.Fixture{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = adapter.Nop{}
	}
	janitor := cfg.Janitor
	if janitor == nil {
		janitor = transport.NewJanitor()
	}
	reader := cfg.Reader
	if reader == nil {
		reader = &transport.FileReader{}
	}

	e := &Engine{
		config:      cfg,
		logger:      logger,
		collector:   cfg.Collector,
		tracker:     cfg.Tracker,
		publisher:   publisher,
		janitor:     janitor,
		reader:      reader,
		assembler:   ipc.NewAssembler(),
		now:         time.Now,
		invalidSeen: make(map[string]struct{}),
	}
	e.router = router.New(cfg.Tracker, cfg.StartTime, cfg.Notifier, logger, cfg.Collector)
	return e, nil
}

// RunID returns the run identifier.
func (e *Engine) RunID() string {
	return e.config.RunID
}

// Stop asks the loop to exit after its current iteration. Safe to call from
// any goroutine.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// RequestSimulation asks the loop to run the simulator on its next
// iteration. Safe to call from any goroutine.
func (e *Engine) RequestSimulation() {
	e.simPending.Store(true)
}

// Run drives the loop until Stop, context cancellation, renderer loss or a
// fatal error. Resources are always released before Run returns; a fatal
// error is returned alongside the result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := e.now()
	if e.config.StartTime.IsZero() {
		e.router.Restart(started)
	}

	e.logger.Info("starting run", map[string]any{
		"transport":   string(e.config.Transport),
		"stale_after": e.router.StartTime,
	})

	var (
		outcome Outcome
		runErr  error
	)
	if err := e.open(); err != nil {
		outcome, runErr = OutcomeFailed, err
	} else {
		outcome, runErr = e.loop(ctx)
	}

	if err := e.shutdown(ctx); err != nil {
		e.logger.Warn("failed to release resources", map[string]any{"error": err.Error()})
	}

	result := &Result{
		RunID:     e.config.RunID,
		Transport: e.config.Transport,
		StartedAt: started,
		Duration:  e.now().Sub(started),
		Outcome:   outcome,
		Metrics:   e.collector.Snapshot(),
	}
	if runErr != nil {
		result.Message = runErr.Error()
	}
	e.logSummary(result)
	return result, runErr
}

func (e *Engine) open() error {
	switch e.config.Transport {
	case types.TransportStream:
		if err := e.config.Stream.Open(); err != nil {
			return fmt.Errorf("failed to open stream: %w", err)
		}
		e.logger.Info("listening for datagrams", map[string]any{"addr": e.config.Stream.LocalAddr().String()})
	default:
		if err := e.config.Poll.Open(); err != nil {
			return fmt.Errorf("failed to open queue: %w", err)
		}
		e.logger.Info("polling queue directory", map[string]any{"dir": e.config.Poll.Dir})
	}
	return nil
}

func (e *Engine) loop(ctx context.Context) (Outcome, error) {
	for {
		if e.stop.Load() {
			return OutcomeStopped, nil
		}
		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}

		err := e.step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, adapter.ErrRendererGone):
			e.logger.Info("renderer closed, ending run", map[string]any{"error": err.Error()})
			return OutcomeRendererGone, nil
		case ctx.Err() != nil:
			return OutcomeCanceled, nil
		default:
			e.logger.Error("run failed", map[string]any{"error": err.Error()})
			return OutcomeFailed, err
		}
	}
}

func (e *Engine) step(ctx context.Context) error {
	if err := e.housekeeping(ctx); err != nil {
		return err
	}
	if e.config.Transport == types.TransportStream {
		return e.streamStep(ctx)
	}
	return e.pollStep(ctx)
}

// housekeeping runs between transport steps.
func (e *Engine) housekeeping(ctx context.Context) error {
	if err := e.injectDebug(ctx); err != nil {
		return err
	}
	return e.maybeSimulate(ctx)
}

// route sends one decoded record through the router and publishes the
// resulting update.
func (e *Engine) route(ctx context.Context, in router.Input) error {
	u, ok := e.router.Route(in)
	if !ok || u.Empty() {
		return nil
	}
	return e.publishUpdate(ctx, u)
}

// archive stores rec when archiving is enabled. Failures are logged only.
func (e *Engine) archive(ctx context.Context, dir types.Direction, origin string, rec record.Value) {
	a := e.config.Archive
	if a == nil {
		return
	}
	if err := a.Write(ctx, dir, origin, rec); err != nil {
		e.logger.Warn("failed to archive record", map[string]any{"origin": origin, "error": err.Error()})
	}
	if !e.config.SaveRacePackets || dir != types.DirectionResponse {
		return
	}
	if found, err := a.WriteRace(ctx, origin, rec.Get("data")); err != nil {
		e.logger.Warn("failed to archive race packet", map[string]any{"origin": origin, "error": err.Error()})
	} else if found {
		e.logger.Debug("race packet archived", map[string]any{"origin": origin})
	}
}

// shutdown writes the final counters and releases every resource.
func (e *Engine) shutdown(ctx context.Context) error {
	if a := e.config.Archive; a != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		if err := a.WriteMetrics(wctx, e.collector.Snapshot(), e.now()); err != nil {
			e.logger.Warn("failed to archive run metrics", map[string]any{"error": err.Error()})
		}
		cancel()
	}

	closers := []io.Closer{e.publisher}
	switch e.config.Transport {
	case types.TransportStream:
		closers = append(closers, e.config.Stream)
	default:
		closers = append(closers, e.config.Poll)
	}
	if e.config.Archive != nil {
		closers = append(closers, e.config.Archive)
	}
	closers = append(closers, e.config.Repository)
	closers = append(closers, e.config.Closers...)
	return iox.CloseAll(closers...)
}

func (e *Engine) logSummary(r *Result) {
	s := r.Metrics
	e.logger.Info("run finished", map[string]any{
		"outcome":   string(r.Outcome),
		"duration":  r.Duration.Round(time.Millisecond).String(),
		"routed":    humanize.Comma(s.RequestsRouted + s.ResponsesRouted),
		"stale":     humanize.Comma(s.StaleDiscarded),
		"dropped":   humanize.Comma(s.FramesDropped),
		"published": humanize.Comma(s.PublishSuccess),
		"archived":  humanize.Bytes(uint64(max(s.ArchiveBytes, 0))),
	})
}
