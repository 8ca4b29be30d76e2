// Package metrics provides per-run ingestion counters.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies; callers pass string labels rather than typed
// enums.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Transport
	FilesSeen      int64
	FilesRemoved   int64
	FilesSkipped   int64
	FileReadErrors int64
	Datagrams      int64

	// Framing
	FramesDropped       int64
	FramesDroppedByKind map[string]int64
	DecryptFailures     int64

	// Decode and routing
	DecodeErrors      int64
	RequestsRouted    int64
	ResponsesRouted   int64
	StaleDiscarded    int64
	RuleErrors        int64
	SessionsStarted   int64
	SessionsEnded     int64
	SimulationsRun    int64
	SimulationFailure int64

	// Renderer
	PublishSuccess int64
	PublishFailure int64

	// Lode / Storage
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64
	ArchiveBytes        int64

	// Dimensions (informational, set at construction)
	Transport      string
	StorageBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	filesSeen      int64
	filesRemoved   int64
	filesSkipped   int64
	fileReadErrors int64
	datagrams      int64

	framesDropped   int64
	droppedByKind   map[string]int64
	decryptFailures int64

	decodeErrors      int64
	requestsRouted    int64
	responsesRouted   int64
	staleDiscarded    int64
	ruleErrors        int64
	sessionsStarted   int64
	sessionsEnded     int64
	simulationsRun    int64
	simulationFailure int64

	publishSuccess int64
	publishFailure int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	archiveBytes        int64

	transport      string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when archiving is disabled.
func NewCollector(transport, storageBackend, runID string) *Collector {
	return &Collector{
		droppedByKind:  make(map[string]int64),
		transport:      transport,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// add applies fn under the lock. No-op on a nil receiver.
func (c *Collector) add(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Transport ---

// IncFileSeen records a queue file picked up by the polling source.
func (c *Collector) IncFileSeen() { c.add(func() { c.filesSeen++ }) }

// IncFileRemoved records a queue file the janitor deleted.
func (c *Collector) IncFileRemoved() { c.add(func() { c.filesRemoved++ }) }

// IncFileSkipped records a queue file added to the janitor's skip set.
func (c *Collector) IncFileSkipped() { c.add(func() { c.filesSkipped++ }) }

// IncFileReadError records a queue file that could not be read.
func (c *Collector) IncFileReadError() { c.add(func() { c.fileReadErrors++ }) }

// IncDatagram records a received UDP datagram.
func (c *Collector) IncDatagram() { c.add(func() { c.datagrams++ }) }

// --- Framing ---

// IncFrameDropped records a dropped frame, keyed by error kind.
func (c *Collector) IncFrameDropped(kind string) {
	c.add(func() {
		c.framesDropped++
		c.droppedByKind[kind]++
	})
}

// IncDecryptFailure records a cipher failure.
func (c *Collector) IncDecryptFailure() { c.add(func() { c.decryptFailures++ }) }

// --- Decode and routing ---

// IncDecodeError records a payload that failed structured decoding.
func (c *Collector) IncDecodeError() { c.add(func() { c.decodeErrors++ }) }

// IncRouted records a dispatched record. direction is "request" or "response".
func (c *Collector) IncRouted(direction string) {
	c.add(func() {
		if direction == "request" {
			c.requestsRouted++
			return
		}
		c.responsesRouted++
	})
}

// IncStaleDiscarded records an input older than the run start.
func (c *Collector) IncStaleDiscarded() { c.add(func() { c.staleDiscarded++ }) }

// IncRuleError records a handler error or panic.
func (c *Collector) IncRuleError() { c.add(func() { c.ruleErrors++ }) }

// IncSessionStarted records a new training session.
func (c *Collector) IncSessionStarted() { c.add(func() { c.sessionsStarted++ }) }

// IncSessionEnded records a training session end.
func (c *Collector) IncSessionEnded() { c.add(func() { c.sessionsEnded++ }) }

// IncSimulation records a simulator invocation and whether it failed.
func (c *Collector) IncSimulation(failed bool) {
	c.add(func() {
		c.simulationsRun++
		if failed {
			c.simulationFailure++
		}
	})
}

// --- Renderer ---

// IncPublishSuccess records a payload delivered to the renderer.
func (c *Collector) IncPublishSuccess() { c.add(func() { c.publishSuccess++ }) }

// IncPublishFailure records a payload the renderer did not accept.
func (c *Collector) IncPublishFailure() { c.add(func() { c.publishFailure++ }) }

// --- Lode / Storage ---
// Archive counters are per-call. A write of one record counts once.

// IncArchiveWriteSuccess records a successful archive write of n bytes.
func (c *Collector) IncArchiveWriteSuccess(n int) {
	c.add(func() {
		c.archiveWriteSuccess++
		c.archiveBytes += int64(n)
	})
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() { c.add(func() { c.archiveWriteFailure++ }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]int64, len(c.droppedByKind))
	for k, v := range c.droppedByKind {
		dropped[k] = v
	}

	return Snapshot{
		FilesSeen:      c.filesSeen,
		FilesRemoved:   c.filesRemoved,
		FilesSkipped:   c.filesSkipped,
		FileReadErrors: c.fileReadErrors,
		Datagrams:      c.datagrams,

		FramesDropped:       c.framesDropped,
		FramesDroppedByKind: dropped,
		DecryptFailures:     c.decryptFailures,

		DecodeErrors:      c.decodeErrors,
		RequestsRouted:    c.requestsRouted,
		ResponsesRouted:   c.responsesRouted,
		StaleDiscarded:    c.staleDiscarded,
		RuleErrors:        c.ruleErrors,
		SessionsStarted:   c.sessionsStarted,
		SessionsEnded:     c.sessionsEnded,
		SimulationsRun:    c.simulationsRun,
		SimulationFailure: c.simulationFailure,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		ArchiveBytes:        c.archiveBytes,

		Transport:      c.transport,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
