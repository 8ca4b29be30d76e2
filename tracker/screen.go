package tracker

import (
	"fmt"

	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/record"
)

// After-race event ids.
const (
	EventRaceWin   = 7005
	EventRacePlace = 7006
	EventRaceLose  = 7007
)

var afterRaceLabels = map[int]string{
	EventRaceWin:   "レース勝利！",
	EventRacePlace: "レース入着",
	EventRaceLose:  "レース敗北",
}

var afterRaceLabelsGlobal = map[int]string{
	EventRaceWin:   "Victory!",
	EventRacePlace: "Solid Showing",
	EventRaceLose:  "Defeat",
}

// Titles used when the previous race cannot be resolved.
const (
	TitleRaceUnknown       = "PREVIOUS RACE UNKNOWN"
	TitleRaceGradeNotFound = "RACE GRADE NOT FOUND"
)

// IsAfterRaceEvent reports whether eventID is a win, place or lose event.
func IsAfterRaceEvent(eventID int) bool {
	_, ok := afterRaceLabels[eventID]
	return ok
}

// GradeBand maps a race grade to its legacy band label.
func GradeBand(grade int) string {
	switch {
	case grade > 300:
		return "Pre/OP"
	case grade > 100:
		return "G2/G3"
	default:
		return "G1"
	}
}

// AfterRaceTitles composes the titles of an after-race event: the outcome
// label with its grade band, then the bare label.
func AfterRaceTitles(eventID, programID int, repo masterdata.Repository, global bool) []string {
	if programID == 0 {
		return []string{TitleRaceUnknown}
	}
	grade, ok := repo.ProgramGrade(programID)
	if !ok || grade == 0 {
		return []string{TitleRaceGradeNotFound}
	}
	labels := afterRaceLabels
	if global {
		labels = afterRaceLabelsGlobal
	}
	label := labels[eventID]
	return []string{fmt.Sprintf("%s (%s)", label, GradeBand(grade)), label}
}

// leagueBands are ascending score floors of the league ladder.
var leagueBands = []struct {
	floor int
	name  string
}{
	{0, "Bronze League"},
	{2000, "Silver League"},
	{4000, "Gold League"},
	{6000, "Platinum League"},
	{8000, "Diamond League"},
}

// LeagueBand renders a league score as a subtitle.
func LeagueBand(score int) string {
	name := leagueBands[0].name
	for _, b := range leagueBands {
		if score >= b.floor {
			name = b.name
		}
	}
	return fmt.Sprintf("%s (%d pts)", name, score)
}

var charaStats = []string{"speed", "stamina", "power", "guts", "wiz"}

func trainingDetail(data record.Value) map[string]any {
	chara := data.Get("chara_info")
	detail := map[string]any{
		"card_id":     chara.Get("card_id").Int(),
		"scenario_id": chara.Get("scenario_id").Int(),
		"turn":        chara.Get("turn").Int(),
		"vital":       chara.Get("vital").Int(),
		"max_vital":   chara.Get("max_vital").Int(),
		"skill_point": chara.Get("skill_point").Int(),
		"fans":        chara.Get("fans").Int(),
	}
	for _, s := range charaStats {
		detail[s] = chara.Get(s).Int()
	}
	return detail
}

func trainingState(data record.Value) ScreenState {
	turn := data.Path("chara_info", "turn").Int()
	return ScreenState{
		Location: LocationTraining,
		Title:    "Training",
		Subtitle: fmt.Sprintf("Turn %d", turn),
		Detail:   trainingDetail(data),
	}
}

func trainingRaceState(data record.Value) ScreenState {
	detail := trainingDetail(data)
	programID := data.Path("race_start_info", "program_id").Int()
	detail["program_id"] = programID
	return ScreenState{
		Location: LocationTrainingRace,
		Title:    "Training",
		Subtitle: "Racing",
		Detail:   detail,
	}
}

func theaterState() ScreenState {
	return ScreenState{Location: LocationTheater, Title: "Concert Theater", Subtitle: "Vibing"}
}

func concertState(musicID int) ScreenState {
	return ScreenState{
		Location: LocationConcert,
		Title:    "Concert Theater",
		Subtitle: "Watching a concert",
		Detail:   map[string]any{"music_id": musicID},
	}
}

func scoutingState(teamScore, leaderCardID int) ScreenState {
	return ScreenState{
		Location: LocationScouting,
		Title:    "Scouting Events",
		Subtitle: fmt.Sprintf("Score: %d", teamScore),
		Detail:   map[string]any{"team_score": teamScore, "leader_card_id": leaderCardID},
	}
}

func leagueState(teamName string, score int) ScreenState {
	return ScreenState{
		Location: LocationLeagueOfHeroes,
		Title:    teamName,
		Subtitle: LeagueBand(score),
		Detail:   map[string]any{"league_score": score},
	}
}

func clawMachineState(data record.Value) ScreenState {
	n := data.Get("collected_plushies").Len()
	return ScreenState{
		Location: LocationClawMachine,
		Title:    "Claw Machine",
		Subtitle: fmt.Sprintf("%d plushies collected", n),
		Detail:   map[string]any{"plushies": n},
	}
}
