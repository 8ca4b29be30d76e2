package tracker

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/record"
)

// Scenario skill ids in [remapLow, remapHigh) are listed by the helper under
// id - remapOffset.
const (
	remapLow    = 900000
	remapHigh   = 1000000
	remapOffset = 800000
)

// Inventory is the skill inventory of the live training.
type Inventory struct {
	// Acquired skills in the order the record lists them.
	Acquired []int `json:"acquired"`
	// Hinted maps a skill in FullList to its hint level (0..5).
	Hinted map[int]int `json:"hinted"`
	// FullList is every acquired, inherent and hinted skill in display order.
	FullList []int `json:"full_list"`
	// Style is the race running style (1..4), 0 when unknown.
	Style int `json:"style"`
}

// Unacquired lists FullList entries not in Acquired, in display order.
func (inv Inventory) Unacquired() []int {
	held := make(map[int]bool, len(inv.Acquired))
	for _, id := range inv.Acquired {
		held[id] = true
	}
	out := make([]int, 0, len(inv.FullList))
	for _, id := range inv.FullList {
		if !held[id] {
			out = append(out, id)
		}
	}
	return out
}

// Clone deep-copies the inventory.
func (inv Inventory) Clone() Inventory {
	out := Inventory{
		Acquired: append([]int(nil), inv.Acquired...),
		FullList: append([]int(nil), inv.FullList...),
		Hinted:   make(map[int]int, len(inv.Hinted)),
		Style:    inv.Style,
	}
	for k, v := range inv.Hinted {
		out.Hinted[k] = v
	}
	return out
}

// Equal reports whether two inventories hold the same skills and hints.
func (inv Inventory) Equal(o Inventory) bool {
	if inv.Style != o.Style || len(inv.Acquired) != len(o.Acquired) ||
		len(inv.FullList) != len(o.FullList) || len(inv.Hinted) != len(o.Hinted) {
		return false
	}
	for i := range inv.Acquired {
		if inv.Acquired[i] != o.Acquired[i] {
			return false
		}
	}
	for i := range inv.FullList {
		if inv.FullList[i] != o.FullList[i] {
			return false
		}
	}
	for k, v := range inv.Hinted {
		if ov, ok := o.Hinted[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// HintTip is one skill_tips_array entry.
type HintTip struct {
	GroupID int
	Rarity  int
	Level   int
}

// ResolveError lists hint tips that matched no skill. The inventory built
// alongside it is still complete for every other entry.
type ResolveError struct {
	Tips []HintTip
}

func (e *ResolveError) Error() string {
	parts := make([]string, len(e.Tips))
	for i, t := range e.Tips {
		parts[i] = fmt.Sprintf("group %d rarity %d", t.GroupID, t.Rarity)
	}
	return "unresolved hint tips: " + strings.Join(parts, ", ")
}

// BuildInventory rebuilds the inventory from a chara_info record. The build
// always starts empty:
//
//  1. acquired skills in record order
//  2. the card's inherent skills at its talent level
//  3. hint tips: rarity > 1 resolves through the (group, rarity) table and
//     also pulls in the group's rarity-1 variant when absent; rarity <= 1
//     resolves against the inventory built so far
//  4. sort by display order, then remap [900000, 1000000) by -800000,
//     carrying hint levels across the rename
//  5. drop duplicates
func BuildInventory(chara record.Value, repo masterdata.Repository) (Inventory, error) {
	inv := Inventory{
		Hinted: make(map[int]int),
		Style:  int(chara.Get("race_running_style").Int()),
	}

	var list []int
	for _, s := range chara.Get("skill_array").Array() {
		id := int(s.Get("skill_id").Int())
		inv.Acquired = append(inv.Acquired, id)
		list = append(list, id)
	}

	cardID := int(chara.Get("card_id").Int())
	talent := int(chara.Get("talent_level").Int())
	list = append(list, repo.InherentSkills(cardID, talent)...)

	var unresolved []HintTip
	for _, t := range chara.Get("skill_tips_array").Array() {
		tip := HintTip{
			GroupID: int(t.Get("group_id").Int()),
			Rarity:  int(t.Get("rarity").Int()),
			Level:   int(t.Get("level").Int()),
		}

		var id int
		var ok bool
		if tip.Rarity > 1 {
			id, ok = repo.SkillByGroupRarity(tip.GroupID, tip.Rarity)
			if white, wok := repo.SkillFromGroup(tip.GroupID, 1, list); wok && !contains(list, white) {
				list = append(list, white)
			}
		} else {
			id, ok = repo.SkillFromGroup(tip.GroupID, tip.Rarity, list)
		}
		if !ok {
			unresolved = append(unresolved, tip)
			continue
		}
		list = append(list, id)
		inv.Hinted[id] = tip.Level
	}

	list = repo.SortByDisplayOrder(list)

	seen := make(map[int]bool, len(list))
	inv.FullList = make([]int, 0, len(list))
	for _, id := range list {
		if id >= remapLow && id < remapHigh {
			newID := id - remapOffset
			if lvl, ok := inv.Hinted[id]; ok {
				delete(inv.Hinted, id)
				inv.Hinted[newID] = lvl
			}
			id = newID
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		inv.FullList = append(inv.FullList, id)
	}
	for id := range inv.Hinted {
		if !seen[id] {
			delete(inv.Hinted, id)
		}
	}

	if len(unresolved) > 0 {
		return inv, &ResolveError{Tips: unresolved}
	}
	return inv, nil
}

func contains(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
