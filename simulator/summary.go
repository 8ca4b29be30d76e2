package simulator

import (
	"math"
	"slices"
	"strconv"

	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/tracker"
)

// ConditionGuaranteed is shown for skills without an activation condition.
const ConditionGuaranteed = "Guaranteed"

// hintDiscount is the skill point discount in percent per hint level.
var hintDiscount = map[int]int{0: 0, 1: 10, 2: 20, 3: 30, 4: 35, 5: 40}

// HintCost applies the hint discount to a base cost. Levels above 5 count
// as 5.
func HintCost(base, hintLevel int) int {
	return base * (100 - hintDiscount[min(max(hintLevel, 0), 5)]) / 100
}

// SkillResult is the summarized simulation of one candidate skill.
type SkillResult struct {
	SkillID     int     `json:"skill_id"`
	Saved       float64 `json:"saved"`
	Min         float64 `json:"w_min"`
	Max         float64 `json:"w_max"`
	BinMin      float64 `json:"bin_min"`
	BinWidth    float64 `json:"bin_width"`
	Frequencies []int   `json:"frequencies"`
	MaxFreq     int     `json:"max_freq"`
	Cost        int     `json:"sp_cost"`
	HintLevel   int     `json:"hint_level"`
	Efficiency  float64 `json:"efficiency"`
}

// Summary is what the renderer shows next to the skill list.
type Summary struct {
	Skills     []int               `json:"skills"`
	Acquired   []int               `json:"acquired"`
	Results    map[int]SkillResult `json:"results"`
	Conditions map[int]string      `json:"conditions"`
	GlobalMin  float64             `json:"global_min"`
	GlobalMax  float64             `json:"global_max"`
}

// Summarize folds a response into per-skill results. An empty response
// yields a summary without results; conditions are always filled.
func Summarize(resp *Response, inv tracker.Inventory, repo masterdata.Repository) Summary {
	s := Summary{
		Skills:     append([]int{}, inv.FullList...),
		Acquired:   append([]int{}, inv.Acquired...),
		Results:    make(map[int]SkillResult),
		Conditions: make(map[int]string, len(inv.FullList)),
	}
	for _, id := range inv.FullList {
		cond := repo.SkillCondition(id)
		if cond == "" {
			cond = ConditionGuaranteed
		}
		s.Conditions[id] = cond
	}

	if resp.Empty() {
		return s
	}

	for key, cand := range resp.Candidates {
		stats := cand.TimeSavedStats
		if stats == nil {
			continue
		}
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		hint := inv.Hinted[id]
		cost := HintCost(repo.SkillCost(id), hint)
		saved := -stats.Mean
		maxFreq := 1
		if len(stats.Frequencies) > 0 {
			maxFreq = slices.Max(stats.Frequencies)
		}
		s.Results[id] = SkillResult{
			SkillID:     id,
			Saved:       round4(saved),
			Min:         stats.Min,
			Max:         stats.Max,
			BinMin:      stats.BinMin,
			BinWidth:    stats.BinWidth,
			Frequencies: stats.Frequencies,
			MaxFreq:     maxFreq,
			Cost:        cost,
			HintLevel:   hint,
			Efficiency:  round4(saved / float64(max(cost, 1)) * 100),
		}
		s.GlobalMin = math.Min(s.GlobalMin, stats.Min)
		s.GlobalMax = math.Max(s.GlobalMax, stats.Max)
	}
	return s
}

// Ranked returns results ordered by efficiency, best first. Ties keep skill
// id order.
func (s Summary) Ranked() []SkillResult {
	out := make([]SkillResult, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b SkillResult) int {
		switch {
		case a.Efficiency > b.Efficiency:
			return -1
		case a.Efficiency < b.Efficiency:
			return 1
		}
		return a.SkillID - b.SkillID
	})
	return out
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
