package masterdata

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pithecene-io/juicer/log"
)

// text_data categories used for lookups.
const (
	textCategoryEventTitle = 181
	textCategoryStatusName = 142
)

// SQLite reads the game's master.mdb. The file is opened read-only; skill
// and status dictionaries are loaded on first use and dropped by Refresh.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *log.Logger

	mu       sync.Mutex
	loaded   bool
	byID     map[int]Skill
	byGroup  map[[2]int][]Skill
	statuses map[int]string
}

// OpenSQLite opens the master database at path.
func OpenSQLite(path string, logger *log.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open master database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open master database %s: %w", path, err)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &SQLite{db: db, path: path, logger: logger}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Refresh drops the cached dictionaries.
func (s *SQLite) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.byID = nil
	s.byGroup = nil
	s.statuses = nil
	return nil
}

func (s *SQLite) load() error {
	if s.loaded {
		return nil
	}

	rows, err := s.db.Query(`
		SELECT s.id, s.group_id, s.rarity, s.group_rate, s.disp_order,
		       COALESCE(s.condition_1, ''), COALESCE(n.need_skill_point, 0)
		FROM skill_data s
		LEFT JOIN single_mode_skill_need_point n ON n.id = s.id`)
	if err != nil {
		return fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	byID := make(map[int]Skill)
	byGroup := make(map[[2]int][]Skill)
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.ID, &sk.GroupID, &sk.Rarity, &sk.GroupRate, &sk.DispOrder, &sk.Condition, &sk.Cost); err != nil {
			return fmt.Errorf("failed to scan skill: %w", err)
		}
		byID[sk.ID] = sk
		key := [2]int{sk.GroupID, sk.Rarity}
		byGroup[key] = append(byGroup[key], sk)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read skills: %w", err)
	}

	statuses, err := s.textMap(textCategoryStatusName)
	if err != nil {
		return err
	}

	s.byID, s.byGroup, s.statuses = byID, byGroup, statuses
	s.loaded = true
	return nil
}

func (s *SQLite) textMap(category int) (map[int]string, error) {
	rows, err := s.db.Query(`SELECT "index", text FROM text_data WHERE category = ?`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query text category %d: %w", category, err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var idx int
		var text string
		if err := rows.Scan(&idx, &text); err != nil {
			return nil, fmt.Errorf("failed to scan text: %w", err)
		}
		out[idx] = text
	}
	return out, rows.Err()
}

// cached runs fn with the dictionaries loaded. Load failures are logged and
// fn is not called.
func (s *SQLite) cached(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		s.logger.Error("master data load failed", map[string]any{"path": s.path, "error": err.Error()})
		return
	}
	fn()
}

func (s *SQLite) SkillByGroupRarity(group, rarity int) (int, bool) {
	var id int
	var ok bool
	s.cached(func() {
		for _, sk := range s.byGroup[[2]int{group, rarity}] {
			if !ok || sk.ID < id {
				id, ok = sk.ID, true
			}
		}
	})
	return id, ok
}

func (s *SQLite) SkillFromGroup(group, rarity int, inventory []int) (int, bool) {
	var id int
	var ok bool
	s.cached(func() {
		id, ok = pickFromGroup(s.byGroup[[2]int{group, rarity}], inventory)
	})
	return id, ok
}

func (s *SQLite) SortByDisplayOrder(ids []int) []int {
	out := ids
	s.cached(func() {
		out = sortByOrder(ids, func(id int) (int, bool) {
			sk, ok := s.byID[id]
			return sk.DispOrder, ok
		})
	})
	return out
}

func (s *SQLite) SkillCost(skillID int) int {
	var cost int
	s.cached(func() { cost = s.byID[skillID].Cost })
	return cost
}

func (s *SQLite) SkillCondition(skillID int) string {
	var cond string
	s.cached(func() { cond = s.byID[skillID].Condition })
	return cond
}

func (s *SQLite) StatusName(statusID int) (string, bool) {
	var name string
	var ok bool
	s.cached(func() { name, ok = s.statuses[statusID] })
	return name, ok
}

func (s *SQLite) InherentSkills(cardID, talentLevel int) []int {
	rows, err := s.db.Query(`
		SELECT a.skill_id
		FROM card_data c
		JOIN available_skill_set a ON a.available_skill_set_id = c.available_skill_set_id
		WHERE c.id = ? AND a.need_rank <= ?
		ORDER BY a.skill_id`, cardID, talentLevel)
	if err != nil {
		s.logger.Warn("inherent skill lookup failed", map[string]any{"card_id": cardID, "error": err.Error()})
		return nil
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			s.logger.Warn("inherent skill scan failed", map[string]any{"card_id": cardID, "error": err.Error()})
			return out
		}
		out = append(out, id)
	}
	return out
}

// EventTitles returns the titles stored for storyID. The database keys
// titles by story alone; cardID only appears in diagnostics.
func (s *SQLite) EventTitles(storyID, cardID int) []string {
	rows, err := s.db.Query(`SELECT text FROM text_data WHERE category = ? AND "index" = ?`,
		textCategoryEventTitle, storyID)
	if err != nil {
		s.logger.Warn("event title lookup failed", map[string]any{
			"story_id": storyID, "card_id": cardID, "error": err.Error(),
		})
		return nil
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return out
		}
		out = append(out, text)
	}
	return out
}

func (s *SQLite) ProgramGrade(programID int) (int, bool) {
	var grade int
	err := s.db.QueryRow(`
		SELECT r.grade
		FROM single_mode_program p
		JOIN race_instance ri ON ri.id = p.race_instance_id
		JOIN race r ON r.id = ri.race_id
		WHERE p.id = ?`, programID).Scan(&grade)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("program grade lookup failed", map[string]any{"program_id": programID, "error": err.Error()})
		}
		return 0, false
	}
	return grade, true
}
