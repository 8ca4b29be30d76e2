package tracker

import (
	"reflect"
	"strings"
	"testing"

	"github.com/pithecene-io/juicer/record"
)

func TestGradeBand(t *testing.T) {
	tests := []struct {
		grade int
		want  string
	}{
		{100, "G1"},
		{101, "G2/G3"},
		{300, "G2/G3"},
		{301, "Pre/OP"},
		{700, "Pre/OP"},
	}
	for _, tt := range tests {
		if got := GradeBand(tt.grade); got != tt.want {
			t.Errorf("GradeBand(%d) = %q, want %q", tt.grade, got, tt.want)
		}
	}
}

func TestAfterRaceTitles_Fallbacks(t *testing.T) {
	repo := testRepo()
	if got := AfterRaceTitles(EventRaceWin, 0, repo, false); !reflect.DeepEqual(got, []string{TitleRaceUnknown}) {
		t.Errorf("unknown program = %v", got)
	}
	if got := AfterRaceTitles(EventRaceWin, 424242, repo, false); !reflect.DeepEqual(got, []string{TitleRaceGradeNotFound}) {
		t.Errorf("missing grade = %v", got)
	}
	want := []string{"レース敗北 (G1)", "レース敗北"}
	if got := AfterRaceTitles(EventRaceLose, 1001, repo, false); !reflect.DeepEqual(got, want) {
		t.Errorf("AfterRaceTitles = %v, want %v", got, want)
	}
}

func TestLeagueBand(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "Bronze League"},
		{1999, "Bronze League"},
		{2000, "Silver League"},
		{6500, "Platinum League"},
		{12000, "Diamond League"},
	}
	for _, tt := range tests {
		if got := LeagueBand(tt.score); !strings.HasPrefix(got, tt.want) {
			t.Errorf("LeagueBand(%d) = %q, want prefix %q", tt.score, got, tt.want)
		}
	}
}

func TestHelperTarget_URL(t *testing.T) {
	h := HelperTarget{CardID: 100601, ScenarioID: 4, SupportIDs: []int{30021, 20023}}
	got := h.URL("https://example.test/helper", "English", "en")
	want := "https://example.test/helper?card=100601&lang=English&scenario=4&server=en&supports=30021-20023"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
	if !strings.HasPrefix(h.URL("", "", ""), DefaultHelperURL+"?") {
		t.Error("empty base should fall back to the default helper")
	}
}

func TestBuildHelperPayload_Markup(t *testing.T) {
	cur := record.FromAny(map[string]any{"chara_info": map[string]any{"speed": 400, "guts": 200}})
	prev := record.FromAny(map[string]any{"chara_info": map[string]any{"speed": 390, "guts": 210}})

	p, err := BuildHelperPayload("t-1", cur, prev)
	if err != nil {
		t.Fatalf("BuildHelperPayload failed: %v", err)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("rows = %+v, want speed and guts", p.Rows)
	}
	if !strings.Contains(p.Markup, `<td class="up">+10</td>`) {
		t.Errorf("markup missing speed delta: %s", p.Markup)
	}
	if !strings.Contains(p.Markup, `<td class="down">-10</td>`) {
		t.Errorf("markup missing guts delta: %s", p.Markup)
	}

	first, err := BuildHelperPayload("t-1", cur, record.Null)
	if err != nil {
		t.Fatalf("BuildHelperPayload failed: %v", err)
	}
	for _, r := range first.Rows {
		if r.Delta != 0 {
			t.Errorf("row %s has delta %d without a previous record", r.Label, r.Delta)
		}
	}
}
