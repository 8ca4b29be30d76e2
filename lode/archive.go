// Package lode persists decoded packets and training logs in Lode datasets.
//
// Two datasets are written:
//   - the packet archive, Hive-partitioned by source/day/run_id/direction
//   - the training log, Hive-partitioned by training_id/kind
//
// Both accept a lode.StoreFactory so the same code runs against the local
// filesystem, S3, or memory in tests.
package lode

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/types"
)

// DefaultDataset is the packet archive dataset ID.
const DefaultDataset = "packets"

// RecordKind discriminator values.
const (
	RecordKindPacket   = "packet"
	RecordKindRace     = "race"
	RecordKindTraining = "training"
)

// DirectionRace partitions race packets away from ordinary responses.
const DirectionRace = "race"

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds archive partition keys.
type Config struct {
	// Dataset is the Lode dataset ID (default "packets").
	Dataset string
	// Source is the partition key for the transport that produced packets.
	Source string
	// Day is the partition key derived from run start time.
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
}

// PacketRecord is the storage format of one archived packet.
type PacketRecord struct {
	RecordKind string `json:"record_kind"`
	ReceivedAt string `json:"received_at"`
	Origin     string `json:"origin,omitempty"`
	Data       any    `json:"data"`

	// Partition keys (used by Lode HiveLayout)
	Source    string `json:"source"`
	Day       string `json:"day"`
	RunID     string `json:"run_id"`
	Direction string `json:"direction"`
}

// Archive writes decoded packets into a Lode dataset.
type Archive struct {
	dataset   lode.Dataset
	config    Config
	collector *metrics.Collector
	now       func() time.Time

	mu sync.Mutex
}

// NewArchive creates an archive rooted at a local directory.
func NewArchive(cfg Config, root string, collector *metrics.Collector) (*Archive, error) {
	return NewArchiveWithFactory(cfg, lode.NewFSFactory(root), collector)
}

// NewArchiveWithFactory creates an archive with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchiveWithFactory(cfg Config, factory lode.StoreFactory, collector *metrics.Collector) (*Archive, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newPacketDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Archive{
		dataset:   ds,
		config:    cfg,
		collector: collector,
		now:       time.Now,
	}, nil
}

func newPacketDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout("source", "day", "run_id", "direction"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Dataset exposes the underlying dataset for read-back.
func (a *Archive) Dataset() lode.Dataset {
	return a.dataset
}

// Write archives one decoded record. origin names the queue file or "udp".
func (a *Archive) Write(ctx context.Context, dir types.Direction, origin string, rec record.Value) error {
	return a.write(ctx, RecordKindPacket, string(dir), origin, rec.Any())
}

// WriteRace archives the race packet carried by a response, if any.
// Reports whether a race packet was found.
func (a *Archive) WriteRace(ctx context.Context, origin string, data record.Value) (bool, error) {
	race, ok := ExtractRace(data)
	if !ok {
		return false, nil
	}
	return true, a.write(ctx, RecordKindRace, DirectionRace, origin, race)
}

func (a *Archive) write(ctx context.Context, kind, direction, origin string, data any) error {
	rec := PacketRecord{
		RecordKind: kind,
		ReceivedAt: a.now().UTC().Format(time.RFC3339Nano),
		Origin:     origin,
		Data:       data,
		Source:     a.config.Source,
		Day:        a.config.Day,
		RunID:      a.config.RunID,
		Direction:  direction,
	}
	m, size, err := toRecordMap(rec)
	if err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, a.config.Dataset)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.dataset.Write(ctx, []any{m}, lode.Metadata{}); err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, a.config.Dataset)
	}
	a.collector.IncArchiveWriteSuccess(size)
	return nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// RacePacket is the race data worth keeping from a response.
type RacePacket struct {
	HorseData any    `json:"race_horse_data"`
	Scenario  string `json:"race_scenario"`
}

// ExtractRace finds the horse array and scenario in a race start, room or
// result response. Both must be present.
func ExtractRace(data record.Value) (RacePacket, bool) {
	horses := firstTruthy(
		data.Get("race_horse_data_array"),
		data.Path("race_start_info", "race_horse_data"),
		data.Path("race_result_info", "race_horse_data_array"),
	)
	scenario := firstTruthy(
		data.Get("race_scenario"),
		data.Path("room_info", "race_scenario"),
		data.Path("race_result_info", "race_scenario"),
	)
	if !horses.Truthy() || !scenario.Truthy() {
		return RacePacket{}, false
	}
	return RacePacket{HorseData: horses.Any(), Scenario: scenario.Str()}, true
}

func firstTruthy(vals ...record.Value) record.Value {
	for _, v := range vals {
		if v.Truthy() {
			return v
		}
	}
	return record.Null
}

// toRecordMap round-trips a record struct through JSON.
// Lode HiveLayout requires records as map[string]any.
func toRecordMap(v any) (map[string]any, int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, 0, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, 0, err
	}
	return m, len(b), nil
}
