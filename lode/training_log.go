package lode

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/tracker"
)

// TrainingDataset is the training log dataset ID.
const TrainingDataset = "trainings"

// DefaultWriteTimeout bounds one training log write.
const DefaultWriteTimeout = 10 * time.Second

// Training log record kinds, also the "kind" partition key.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// TrainingRecord is the storage format of one logged message.
type TrainingRecord struct {
	RecordKind string `json:"record_kind"`
	TrainingID string `json:"training_start"`
	Seq        int64  `json:"seq"`
	LoggedAt   string `json:"logged_at"`
	RunID      string `json:"run_id"`
	Data       any    `json:"data"`

	// Partition keys (used by Lode HiveLayout)
	Partition string `json:"training_id"`
	Kind      string `json:"kind"`
}

// TrainingKey turns a training id into a partition-safe value.
// "2026-10-15 08:00:00" becomes "2026-10-15_08-00-00".
func TrainingKey(trainingID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		case r == ':':
			return '-'
		default:
			return '_'
		}
	}, trainingID)
}

// TrainingLog records every request/response pair of a training run.
// It implements tracker.PairSink.
type TrainingLog struct {
	dataset   lode.Dataset
	runID     string
	timeout   time.Duration
	collector *metrics.Collector
	now       func() time.Time

	mu  sync.Mutex
	seq map[string]int64
}

// NewTrainingLog creates a training log rooted at a local directory.
func NewTrainingLog(root, runID string, collector *metrics.Collector) (*TrainingLog, error) {
	return NewTrainingLogWithFactory(lode.NewFSFactory(root), runID, collector)
}

// NewTrainingLogWithFactory creates a training log with a custom store
// factory.
func NewTrainingLogWithFactory(factory lode.StoreFactory, runID string, collector *metrics.Collector) (*TrainingLog, error) {
	ds, err := newTrainingDataset(factory)
	if err != nil {
		return nil, WrapInitError(err, TrainingDataset)
	}
	return &TrainingLog{
		dataset:   ds,
		runID:     runID,
		timeout:   DefaultWriteTimeout,
		collector: collector,
		now:       time.Now,
		seq:       make(map[string]int64),
	}, nil
}

func newTrainingDataset(factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(TrainingDataset),
		factory,
		lode.WithHiveLayout("training_id", "kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Dataset exposes the underlying dataset for read-back.
func (l *TrainingLog) Dataset() lode.Dataset {
	return l.dataset
}

// AddRequest implements tracker.PairSink.
func (l *TrainingLog) AddRequest(trainingID string, rec record.Value) error {
	return l.add(trainingID, KindRequest, rec)
}

// AddResponse implements tracker.PairSink.
func (l *TrainingLog) AddResponse(trainingID string, rec record.Value) error {
	return l.add(trainingID, KindResponse, rec)
}

func (l *TrainingLog) add(trainingID, kind string, rec record.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.seq[trainingID] + 1
	m, size, err := toRecordMap(TrainingRecord{
		RecordKind: RecordKindTraining,
		TrainingID: trainingID,
		Seq:        seq,
		LoggedAt:   l.now().UTC().Format(time.RFC3339Nano),
		RunID:      l.runID,
		Data:       rec.Any(),
		Partition:  TrainingKey(trainingID),
		Kind:       kind,
	})
	if err != nil {
		l.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, TrainingDataset)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if _, err := l.dataset.Write(ctx, []any{m}, lode.Metadata{}); err != nil {
		l.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, TrainingDataset+"/"+TrainingKey(trainingID))
	}
	l.seq[trainingID] = seq
	l.collector.IncArchiveWriteSuccess(size)
	return nil
}

// Close releases training log resources.
func (l *TrainingLog) Close() error {
	return nil
}

var _ tracker.PairSink = (*TrainingLog)(nil)
