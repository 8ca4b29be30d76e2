// Package masterdata provides read-only lookups into the game's master
// database: skills, inherent skills, event titles, race grades and status
// names.
package masterdata

import (
	"sort"
)

// Repository is the lookup contract the tracker and simulator rely on.
// Lookups never fail loudly: a missing row reports false or an empty value.
type Repository interface {
	// SkillByGroupRarity resolves a hint tip of rarity > 1.
	SkillByGroupRarity(group, rarity int) (int, bool)
	// SkillFromGroup resolves a skill of the given group and rarity, taking
	// already-held skills into account.
	SkillFromGroup(group, rarity int, inventory []int) (int, bool)
	// InherentSkills lists the skills a card carries at talentLevel.
	InherentSkills(cardID, talentLevel int) []int
	// SortByDisplayOrder orders ids the way the game lists skills.
	SortByDisplayOrder(ids []int) []int
	EventTitles(storyID, cardID int) []string
	ProgramGrade(programID int) (int, bool)
	StatusName(statusID int) (string, bool)
	SkillCost(skillID int) int
	SkillCondition(skillID int) string
	// Refresh drops cached dictionaries so the next lookup rereads them.
	Refresh() error
	Close() error
}

// Skill is one skill_data row plus its base point cost.
type Skill struct {
	ID        int    `yaml:"id"`
	GroupID   int    `yaml:"group_id"`
	Rarity    int    `yaml:"rarity"`
	GroupRate int    `yaml:"group_rate"`
	DispOrder int    `yaml:"disp_order"`
	Cost      int    `yaml:"cost"`
	Condition string `yaml:"condition"`
}

// pickFromGroup chooses among same-group, same-rarity candidates. When the
// inventory holds one of them the next tier up is the hinted skill; otherwise
// the lowest tier is.
func pickFromGroup(cands []Skill, inventory []int) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	sorted := make([]Skill, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		// Negative group rates are the downgraded variants; list them last.
		ai, aj := sorted[i].GroupRate < 0, sorted[j].GroupRate < 0
		if ai != aj {
			return !ai
		}
		if sorted[i].GroupRate != sorted[j].GroupRate {
			return sorted[i].GroupRate < sorted[j].GroupRate
		}
		return sorted[i].ID < sorted[j].ID
	})

	held := make(map[int]bool, len(inventory))
	for _, id := range inventory {
		held[id] = true
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if !held[sorted[i].ID] {
			continue
		}
		if i+1 < len(sorted) && sorted[i+1].GroupRate > 0 {
			return sorted[i+1].ID, true
		}
		return sorted[i].ID, true
	}
	return sorted[0].ID, true
}

// sortByOrder sorts ids by display order, dropping duplicates. Unknown ids
// keep their relative order after the known ones.
func sortByOrder(ids []int, order func(int) (int, bool)) []int {
	type entry struct {
		id    int
		order int
		known bool
	}
	seen := make(map[int]bool, len(ids))
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		o, ok := order(id)
		entries = append(entries, entry{id: id, order: o, known: ok})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].known != entries[j].known {
			return entries[i].known
		}
		if !entries[i].known {
			return false
		}
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].id < entries[j].id
	})
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}
