package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/juicer/metrics"
)

// RecordKindMetrics marks a run summary record in the packet archive.
const RecordKindMetrics = "metrics"

// directionMetrics partitions run summaries away from packets.
const directionMetrics = "metrics"

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// ErrNoTrainingFound is returned when the training log has no entries for an id.
var ErrNoTrainingFound = errors.New("no training log entries found")

// MetricsRecord is the storage format of a run summary.
type MetricsRecord struct {
	RecordKind  string           `json:"record_kind"`
	CompletedAt string           `json:"completed_at"`
	Snapshot    metrics.Snapshot `json:"snapshot"`

	// Partition keys
	Source    string `json:"source"`
	Day       string `json:"day"`
	RunID     string `json:"run_id"`
	Direction string `json:"direction"`
}

// WriteMetrics archives the run's final counters.
func (a *Archive) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	m, _, err := toRecordMap(MetricsRecord{
		RecordKind:  RecordKindMetrics,
		CompletedAt: completedAt.UTC().Format(time.RFC3339Nano),
		Snapshot:    snap,
		Source:      a.config.Source,
		Day:         a.config.Day,
		RunID:       a.config.RunID,
		Direction:   directionMetrics,
	})
	if err != nil {
		return WrapWriteError(err, a.config.Dataset)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.dataset.Write(ctx, []any{m}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, a.config.Dataset)
	}
	return nil
}

// NewReadDataset opens the packet archive for reading.
// Uses the same codec and layout as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return newPacketDataset(dataset, factory)
}

// NewReadTrainingDataset opens the training log for reading.
func NewReadTrainingDataset(factory lode.StoreFactory) (lode.Dataset, error) {
	return newTrainingDataset(factory)
}

// QueryLatestMetrics finds the most recent run summary.
// Filters by runID if non-empty.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "packets/snapshots")
	}

	// Snapshots are ordered by creation time; latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "direction", directionMetrics) {
			continue
		}
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("packets/snapshot/%s", snap.ID))
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindMetrics {
				continue
			}
			if runID != "" && toString(rec["run_id"]) != runID {
				continue
			}
			return rec, nil
		}
	}
	return nil, ErrNoMetricsFound
}

// QueryTraining returns every logged message of a training in write order.
func QueryTraining(ctx context.Context, ds lode.Dataset, trainingID string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, TrainingDataset+"/snapshots")
	}

	key := TrainingKey(trainingID)
	seen := make(map[string]bool)
	var out []map[string]any
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "training_id", key) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", TrainingDataset, snap.ID))
		}
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || toString(rec["training_id"]) != key {
				continue
			}
			// Cumulative snapshots repeat earlier records.
			id := toString(rec["kind"]) + "/" + fmt.Sprint(rec["seq"]) + "/" + toString(rec["logged_at"])
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoTrainingFound
	}
	sort.SliceStable(out, func(i, j int) bool {
		return toString(out[i]["logged_at"]) < toString(out[j]["logged_at"])
	})
	return out, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so run_id=run-1 does not match run_id=run-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
