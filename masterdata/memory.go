package masterdata

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML shape loaded by LoadFixture.
type Fixture struct {
	Skills   []Skill         `yaml:"skills"`
	Inherent []InherentSkill `yaml:"inherent"`
	Events   []EventFixture  `yaml:"events"`
	Programs map[int]int     `yaml:"programs"`
	Statuses map[int]string  `yaml:"statuses"`
}

// InherentSkill is one available_skill_set row bound to a card.
type InherentSkill struct {
	CardID   int `yaml:"card_id"`
	SkillID  int `yaml:"skill_id"`
	NeedRank int `yaml:"need_rank"`
}

// EventFixture maps a story to its titles. CardID 0 applies to every card.
type EventFixture struct {
	StoryID int      `yaml:"story_id"`
	CardID  int      `yaml:"card_id"`
	Titles  []string `yaml:"titles"`
}

// Memory is an in-process Repository over a Fixture.
type Memory struct {
	fixture   Fixture
	byID      map[int]Skill
	byGroup   map[[2]int][]Skill
	refreshes int
}

// NewMemory indexes f.
func NewMemory(f Fixture) *Memory {
	m := &Memory{fixture: f}
	m.index()
	return m
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read master data fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse master data fixture: %w", err)
	}
	return NewMemory(f), nil
}

func (m *Memory) index() {
	m.byID = make(map[int]Skill, len(m.fixture.Skills))
	m.byGroup = make(map[[2]int][]Skill)
	for _, s := range m.fixture.Skills {
		m.byID[s.ID] = s
		key := [2]int{s.GroupID, s.Rarity}
		m.byGroup[key] = append(m.byGroup[key], s)
	}
}

// SkillByGroupRarity returns the lowest id of the group at rarity.
func (m *Memory) SkillByGroupRarity(group, rarity int) (int, bool) {
	cands := m.byGroup[[2]int{group, rarity}]
	if len(cands) == 0 {
		return 0, false
	}
	best := cands[0].ID
	for _, s := range cands[1:] {
		if s.ID < best {
			best = s.ID
		}
	}
	return best, true
}

func (m *Memory) SkillFromGroup(group, rarity int, inventory []int) (int, bool) {
	return pickFromGroup(m.byGroup[[2]int{group, rarity}], inventory)
}

func (m *Memory) InherentSkills(cardID, talentLevel int) []int {
	var out []int
	for _, in := range m.fixture.Inherent {
		if in.CardID == cardID && in.NeedRank <= talentLevel {
			out = append(out, in.SkillID)
		}
	}
	sort.Ints(out)
	return out
}

func (m *Memory) SortByDisplayOrder(ids []int) []int {
	return sortByOrder(ids, func(id int) (int, bool) {
		s, ok := m.byID[id]
		return s.DispOrder, ok
	})
}

// EventTitles prefers titles bound to cardID, then card-independent ones.
func (m *Memory) EventTitles(storyID, cardID int) []string {
	var generic []string
	for _, e := range m.fixture.Events {
		if e.StoryID != storyID {
			continue
		}
		if e.CardID == cardID && cardID != 0 {
			return append([]string(nil), e.Titles...)
		}
		if e.CardID == 0 {
			generic = append(generic, e.Titles...)
		}
	}
	return generic
}

func (m *Memory) ProgramGrade(programID int) (int, bool) {
	g, ok := m.fixture.Programs[programID]
	return g, ok
}

func (m *Memory) StatusName(statusID int) (string, bool) {
	n, ok := m.fixture.Statuses[statusID]
	return n, ok
}

func (m *Memory) SkillCost(skillID int) int {
	return m.byID[skillID].Cost
}

func (m *Memory) SkillCondition(skillID int) string {
	return m.byID[skillID].Condition
}

// Refresh reindexes the fixture.
func (m *Memory) Refresh() error {
	m.refreshes++
	m.index()
	return nil
}

// Refreshes counts Refresh calls.
func (m *Memory) Refreshes() int {
	return m.refreshes
}

func (m *Memory) Close() error { return nil }
