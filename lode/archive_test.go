package lode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/types"
)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig() Config {
	return Config{
		Source: "poll",
		Day:    "2026-10-15",
		RunID:  "run-001",
	}
}

func readLatest(t *testing.T, ds lode.Dataset) []map[string]any {
	t.Helper()
	latest, err := ds.Latest(t.Context())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	data, err := ds.Read(t.Context(), latest.ID)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	out := make([]map[string]any, 0, len(data))
	for _, item := range data {
		rec, ok := item.(map[string]any)
		if !ok {
			t.Fatalf("record type = %T, want map[string]any", item)
		}
		out = append(out, rec)
	}
	return out
}

func TestArchive_WriteReadRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	c := metrics.NewCollector("poll", "memory", "run-001")

	a, err := NewArchiveWithFactory(testConfig(), sharedFactory(store), c)
	if err != nil {
		t.Fatalf("NewArchiveWithFactory failed: %v", err)
	}
	a.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }

	rec := record.FromAny(map[string]any{"data": map[string]any{"chara_info": map[string]any{"turn": 3}}})
	if err := a.Write(t.Context(), types.DirectionResponse, "1760518800000R.msgpack", rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ds, err := NewReadDataset("", sharedFactory(store))
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	if ds.ID() != DefaultDataset {
		t.Errorf("Dataset ID = %q, want %q", ds.ID(), DefaultDataset)
	}

	recs := readLatest(t, ds)
	if len(recs) != 1 {
		t.Fatalf("Read returned %d items, want 1", len(recs))
	}
	got := recs[0]
	if got["record_kind"] != RecordKindPacket {
		t.Errorf("record_kind = %v, want %q", got["record_kind"], RecordKindPacket)
	}
	if got["direction"] != "response" || got["source"] != "poll" || got["run_id"] != "run-001" || got["day"] != "2026-10-15" {
		t.Errorf("partition keys = %v", got)
	}
	if got["received_at"] != "2026-10-15T09:00:00Z" {
		t.Errorf("received_at = %v", got["received_at"])
	}
	turn := got["data"].(map[string]any)["data"].(map[string]any)["chara_info"].(map[string]any)["turn"]
	if turn != float64(3) {
		t.Errorf("turn = %v, want 3", turn)
	}

	s := c.Snapshot()
	if s.ArchiveWriteSuccess != 1 || s.ArchiveBytes == 0 {
		t.Errorf("archive counters = %d writes, %d bytes", s.ArchiveWriteSuccess, s.ArchiveBytes)
	}
}

func TestArchive_FSLayout(t *testing.T) {
	root := t.TempDir()
	a, err := NewArchive(testConfig(), root, nil)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	if err := a.Write(t.Context(), types.DirectionRequest, "udp", record.FromAny(map[string]any{"x": 1})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var found bool
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() && d.Name() == "direction=request" {
			found = true
		}
		return nil
	})
	if !found {
		t.Error("expected a direction=request partition directory")
	}
}

func TestArchive_WriteRace(t *testing.T) {
	store := lode.NewMemory()
	a, err := NewArchiveWithFactory(testConfig(), sharedFactory(store), nil)
	if err != nil {
		t.Fatalf("NewArchiveWithFactory failed: %v", err)
	}

	ok, err := a.WriteRace(t.Context(), "udp", record.FromAny(map[string]any{"chara_info": map[string]any{}}))
	if ok || err != nil {
		t.Errorf("non-race record: ok=%v err=%v", ok, err)
	}

	data := record.FromAny(map[string]any{
		"race_result_info": map[string]any{
			"race_horse_data_array": []any{map[string]any{"frame_order": 1}},
			"race_scenario":         "H4sIAAAA",
		},
	})
	ok, err = a.WriteRace(t.Context(), "udp", data)
	if !ok || err != nil {
		t.Fatalf("race record: ok=%v err=%v", ok, err)
	}

	ds, _ := NewReadDataset("", sharedFactory(store))
	recs := readLatest(t, ds)
	last := recs[len(recs)-1]
	if last["direction"] != DirectionRace || last["record_kind"] != RecordKindRace {
		t.Errorf("race record = %v", last)
	}
	if last["data"].(map[string]any)["race_scenario"] != "H4sIAAAA" {
		t.Errorf("race_scenario = %v", last["data"])
	}
}

func TestExtractRace(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		ok   bool
	}{
		{"top level", map[string]any{"race_scenario": "s", "race_horse_data_array": []any{1}}, true},
		{"start info", map[string]any{"race_scenario": "s", "race_start_info": map[string]any{"race_horse_data": []any{1}}}, true},
		{"room", map[string]any{"room_info": map[string]any{"race_scenario": "s"}, "race_horse_data_array": []any{1}}, true},
		{"scenario only", map[string]any{"race_scenario": "s"}, false},
		{"horses only", map[string]any{"race_horse_data_array": []any{1}}, false},
		{"empty scenario", map[string]any{"race_scenario": "", "race_horse_data_array": []any{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ExtractRace(record.FromAny(tt.data))
			if ok != tt.ok {
				t.Errorf("ExtractRace ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestArchive_MetricsRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for _, runID := range []string{"run-1", "run-10"} {
		cfg := testConfig()
		cfg.RunID = runID
		a, err := NewArchiveWithFactory(cfg, factory, nil)
		if err != nil {
			t.Fatalf("NewArchiveWithFactory failed: %v", err)
		}
		snap := metrics.NewCollector("poll", "memory", runID).Snapshot()
		if err := a.WriteMetrics(t.Context(), snap, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("WriteMetrics failed: %v", err)
		}
	}

	ds, _ := NewReadDataset("", factory)

	rec, err := QueryLatestMetrics(t.Context(), ds, "run-1")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if rec["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1 (no prefix match on run-10)", rec["run_id"])
	}

	latest, err := QueryLatestMetrics(t.Context(), ds, "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if latest["run_id"] != "run-10" {
		t.Errorf("latest run_id = %v, want run-10", latest["run_id"])
	}
}

func TestQueryLatestMetrics_Empty(t *testing.T) {
	store := lode.NewMemory()
	a, _ := NewArchiveWithFactory(testConfig(), sharedFactory(store), nil)
	_ = a.Write(t.Context(), types.DirectionResponse, "udp", record.FromAny(map[string]any{}))

	ds, _ := NewReadDataset("", sharedFactory(store))
	if _, err := QueryLatestMetrics(t.Context(), ds, ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("err = %v, want ErrNoMetricsFound", err)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	path := "source=poll/day=2026-10-15/run_id=run-10/direction=response/part.jsonl"
	if !matchesPartitionValue(path, "run_id", "run-10") {
		t.Error("exact segment should match")
	}
	if matchesPartitionValue(path, "run_id", "run-1") {
		t.Error("prefix must not match")
	}
}

// failingStore is a lode.Store whose writes always fail.
type failingStore struct {
	putErr error
}

func (s *failingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	return s.putErr
}

func (s *failingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, nil
}

func (s *failingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *failingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *failingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *failingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *failingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*failingStore)(nil)

func TestArchive_WriteFailureClassified(t *testing.T) {
	c := metrics.NewCollector("poll", "memory", "run-001")
	store := &failingStore{putErr: errors.New("write /data/packets/part.jsonl: permission denied")}
	a, err := NewArchiveWithFactory(testConfig(), sharedFactory(store), c)
	if err != nil {
		t.Fatalf("NewArchiveWithFactory failed: %v", err)
	}

	err = a.Write(t.Context(), types.DirectionResponse, "udp", record.FromAny(map[string]any{"x": 1}))
	if err == nil {
		t.Fatal("expected write error")
	}
	if !IsStorageError(err) {
		t.Errorf("err = %v, want StorageError", err)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	if got := c.Snapshot().ArchiveWriteFailure; got != 1 {
		t.Errorf("ArchiveWriteFailure = %d, want 1", got)
	}
}
