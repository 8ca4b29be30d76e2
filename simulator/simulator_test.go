package simulator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/tracker"
)

func testInventory() tracker.Inventory {
	return tracker.Inventory{
		Acquired: []int{200012},
		Hinted:   map[int]int{200331: 3, 110071: 7},
		FullList: []int{100061, 110071, 200331, 200012},
		Style:    3,
	}
}

func testRepo() *masterdata.Memory {
	return masterdata.NewMemory(masterdata.Fixture{
		Skills: []masterdata.Skill{
			{ID: 100061, Cost: 0},
			{ID: 110071, Cost: 100, Condition: "phase==1"},
			{ID: 200331, Cost: 180, Condition: "distance_type==2"},
			{ID: 200012, Cost: 90},
		},
	})
}

func TestNewRequest(t *testing.T) {
	inv := testInventory()
	req := NewRequest(inv, 0)

	if req.Iterations != DefaultIterations {
		t.Errorf("Iterations = %d, want %d", req.Iterations, DefaultIterations)
	}
	if req.Base.UmaStatus.Style != "SASI" {
		t.Errorf("Style = %q, want SASI", req.Base.UmaStatus.Style)
	}
	if !reflect.DeepEqual(req.UnacquiredSkillIDs, []int{100061, 110071, 200331}) {
		t.Errorf("UnacquiredSkillIDs = %v", req.UnacquiredSkillIDs)
	}
	if !reflect.DeepEqual(req.AcquiredSkillIDs, []int{200012}) {
		t.Errorf("AcquiredSkillIDs = %v", req.AcquiredSkillIDs)
	}

	req.SkillHints[200331] = 0
	if inv.Hinted[200331] != 3 {
		t.Error("request shares hint storage with the inventory")
	}
}

func TestStyleName(t *testing.T) {
	tests := map[int]string{1: "NIGE", 2: "SEN", 3: "SASI", 4: "OI", 0: "NIGE", 9: "NIGE"}
	for style, want := range tests {
		if got := StyleName(style); got != want {
			t.Errorf("StyleName(%d) = %q, want %q", style, got, want)
		}
	}
}

func TestRequest_JSONShape(t *testing.T) {
	b, err := json.Marshal(NewRequest(testInventory(), 10))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"baseSetting", "acquiredSkillIds", "unacquiredSkillIds", "skillHints", "iterations"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("request JSON missing %q", key)
		}
	}
	hints := doc["skillHints"].(map[string]any)
	if hints["200331"] != float64(3) {
		t.Errorf("skillHints[200331] = %v, want 3", hints["200331"])
	}
}

func TestHintCost(t *testing.T) {
	tests := []struct {
		base, hint, want int
	}{
		{180, 0, 180},
		{180, 1, 162},
		{180, 3, 126},
		{180, 4, 117},
		{180, 5, 108},
		{180, 9, 108},
		{0, 2, 0},
	}
	for _, tt := range tests {
		if got := HintCost(tt.base, tt.hint); got != tt.want {
			t.Errorf("HintCost(%d, %d) = %d, want %d", tt.base, tt.hint, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	resp := &Response{
		Baseline: map[string]any{"mean": 0.0},
		Candidates: map[string]Candidate{
			"200331": {TimeSavedStats: &TimeSavedStats{Mean: -0.252, Min: -0.6, Max: 0.1, BinMin: -0.6, BinWidth: 0.1, Frequencies: []int{1, 4, 2}}},
			"110071": {TimeSavedStats: &TimeSavedStats{Mean: -0.1, Min: -0.2, Max: 0.3}},
			"100061": {},
		},
	}

	s := Summarize(resp, testInventory(), testRepo())

	if len(s.Results) != 2 {
		t.Fatalf("Results = %v, want 2 entries", s.Results)
	}
	r := s.Results[200331]
	if r.Cost != 126 {
		t.Errorf("Cost = %d, want 126", r.Cost)
	}
	if r.Saved != 0.252 {
		t.Errorf("Saved = %v, want 0.252", r.Saved)
	}
	if r.Efficiency != 0.2 {
		t.Errorf("Efficiency = %v, want 0.2", r.Efficiency)
	}
	if r.MaxFreq != 4 {
		t.Errorf("MaxFreq = %d, want 4", r.MaxFreq)
	}
	if got := s.Results[110071]; got.HintLevel != 7 || got.Cost != 60 || got.MaxFreq != 1 {
		t.Errorf("capped hint result = %+v", got)
	}
	if s.GlobalMin != -0.6 || s.GlobalMax != 0.3 {
		t.Errorf("global range = [%v, %v], want [-0.6, 0.3]", s.GlobalMin, s.GlobalMax)
	}
	if s.Conditions[100061] != ConditionGuaranteed || s.Conditions[200331] != "distance_type==2" {
		t.Errorf("Conditions = %v", s.Conditions)
	}

	ranked := s.Ranked()
	if len(ranked) != 2 || ranked[0].SkillID != 200331 {
		t.Errorf("Ranked = %+v", ranked)
	}
}

func TestSummarize_EmptyResponse(t *testing.T) {
	for _, resp := range []*Response{nil, {}, {Candidates: map[string]Candidate{}}} {
		s := Summarize(resp, testInventory(), testRepo())
		if len(s.Results) != 0 {
			t.Errorf("Results = %v, want none", s.Results)
		}
		if len(s.Conditions) != 4 {
			t.Errorf("Conditions = %v, want every listed skill", s.Conditions)
		}
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "sim.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecClient_Success(t *testing.T) {
	path := writeScript(t, `echo '{"baselineStats":{"mean":1.5},"candidates":{"200331":{"timeSavedStats":{"mean":-0.3,"frequencies":[1,2]}}}}'`)
	c := &ExecClient{Path: path}

	resp, err := c.Simulate(t.Context(), NewRequest(testInventory(), 5))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if resp.Empty() {
		t.Fatal("response should not be empty")
	}
	if got := resp.Candidates["200331"].TimeSavedStats.Mean; got != -0.3 {
		t.Errorf("mean = %v, want -0.3", got)
	}
}

func TestExecClient_ReceivesRequest(t *testing.T) {
	path := writeScript(t, `case "$1" in *'"iterations":5'*) echo '{"baselineStats":{},"candidates":{}}';; *) exit 3;; esac`)
	c := &ExecClient{Path: path}
	if _, err := c.Simulate(t.Context(), NewRequest(testInventory(), 5)); err != nil {
		t.Errorf("simulator did not receive the request JSON: %v", err)
	}
}

func TestExecClient_Failures(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"crash", writeScript(t, "echo oops >&2; exit 2")},
		{"bad json", writeScript(t, "echo not-json")},
		{"missing binary", filepath.Join(t.TempDir(), "absent")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ExecClient{Path: tt.path}
			resp, err := c.Simulate(t.Context(), NewRequest(testInventory(), 5))
			if err == nil {
				t.Fatal("expected error")
			}
			if resp == nil || !resp.Empty() {
				t.Errorf("failure should return an empty response, got %+v", resp)
			}
		})
	}
}
