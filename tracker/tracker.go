package tracker

import (
	"errors"
	"time"

	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/record"
)

// TrainingIDLayout formats a fallback training id when chara_info carries no
// start_time.
const TrainingIDLayout = "2006-01-02 15:04:05"

// Tracker holds session state. It is not safe for concurrent use.
type Tracker struct {
	opts   Options
	logger *log.Logger

	session   *Session
	inventory Inventory
	revision  int
	screen    ScreenState
	deck      []int

	previousRequest       record.Value
	previousRaceProgramID int
	lastData              record.Value
	lastHelperData        record.Value
	helperURL             string
	// startHelperURL is the target opened by a start request that has not
	// yet been claimed by a session.
	startHelperURL        string
}

// New creates a tracker with no live session.
func New(opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Repository == nil {
		opts.Repository = masterdata.NewMemory(masterdata.Fixture{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Tracker{opts: opts, logger: logger}
}

// Session returns a copy of the live session, or nil.
func (t *Tracker) Session() *Session {
	if t.session == nil {
		return nil
	}
	s := *t.session
	return &s
}

// Inventory returns a copy of the current skill inventory.
func (t *Tracker) Inventory() Inventory {
	return t.inventory.Clone()
}

// InventoryRevision increases every time a rebuild changes the inventory.
func (t *Tracker) InventoryRevision() int {
	return t.revision
}

// Screen returns the current snapshot.
func (t *Tracker) Screen() ScreenState {
	return t.screen
}

// PreviousRaceProgramID is the program id of the last race seen.
func (t *Tracker) PreviousRaceProgramID() int {
	return t.previousRaceProgramID
}

// HelperURL is the helper address currently associated with the session.
func (t *Tracker) HelperURL() string {
	return t.helperURL
}

// LastRecord is the previous response data used for diffing.
func (t *Tracker) LastRecord() record.Value {
	return t.lastData
}

// PreviousRequest is the request still waiting for its response.
func (t *Tracker) PreviousRequest() record.Value {
	return t.previousRequest
}

// HelperClosed forgets the helper association, so the next training record
// reopens it. Call it when the helper surface was not opened or went away.
func (t *Tracker) HelperClosed() {
	t.helperURL = ""
}

func (t *Tracker) setScreen(s ScreenState, u *Update) {
	t.screen = s
	snap := s
	u.Screen = &snap
}

func (t *Tracker) server() string {
	if t.opts.Global {
		return "en"
	}
	return "ja"
}

func (t *Tracker) endSession(u *Update) {
	if t.session != nil {
		t.logger.Info("training ended", map[string]any{"training_id": t.session.TrainingID})
	}
	t.session = nil
	t.helperURL = ""
	t.startHelperURL = ""
	t.lastHelperData = record.Null
	u.Ended = true
}

func (t *Tracker) refreshMasterData(u *Update) {
	if err := t.opts.Repository.Refresh(); err != nil {
		t.logger.Warn("master data refresh failed", map[string]any{"error": err.Error()})
		return
	}
	u.RefreshedMasterData = true
}

// forwardPair hands the pending request and this response to the pair sink.
// The pending request is consumed either way.
func (t *Tracker) forwardPair(data record.Value) {
	if t.session == nil {
		return
	}
	id := t.session.TrainingID
	track := t.opts.TrackTrainings && t.opts.Pairs != nil
	if !t.previousRequest.IsNull() {
		if track {
			if err := t.opts.Pairs.AddRequest(id, t.previousRequest); err != nil {
				t.logger.Warn("training log request write failed", map[string]any{"training_id": id, "error": err.Error()})
			}
		}
		t.previousRequest = record.Null
	}
	if track {
		if err := t.opts.Pairs.AddResponse(id, data); err != nil {
			t.logger.Warn("training log response write failed", map[string]any{"training_id": id, "error": err.Error()})
		}
	}
}

// HandleResponse applies the response rules to one decoded record.
func (t *Tracker) HandleResponse(rec record.Value) (Update, error) {
	var u Update
	if !rec.Has("data") {
		return u, nil
	}
	data := rec.Get("data")

	if load := data.Get("single_mode_load_common"); load.IsMap() {
		for _, k := range load.Keys() {
			data = data.With(k, load.Get(k))
		}
	}

	// Run ended.
	if data.Has("single_mode_factor_select_common") || data.Has("single_mode_finish_common") {
		t.endSession(&u)
		return u, nil
	}

	if data.Has("live_theater_save_info_array") {
		t.setScreen(theaterState(), &u)
		return u, nil
	}

	if data.Has("scout_ranking_state") {
		team := data.Get("own_team_info")
		if score := team.Get("team_score"); team.Truthy() && score.Truthy() {
			leader := team.Get("entry_chara_array").Index(0).Path("trained_chara", "card_id")
			if leader.Truthy() {
				t.setScreen(scoutingState(int(score.Int()), int(leader.Int())), &u)
			}
		}
	}

	if data.Has("heroes_id") {
		team := data.Get("own_team_info")
		if team.Truthy() && team.Get("team_name").Truthy() && team.Get("league_score").Truthy() {
			t.setScreen(leagueState(team.Get("team_name").Str(), int(team.Get("league_score").Int())), &u)
		}
		return u, nil
	}

	if grand := data.Get("stage1_grand_result"); grand.Truthy() {
		if t.screen.Location == LocationLeagueOfHeroes && grand.Get("after_league_score").Truthy() {
			score := int(grand.Get("after_league_score").Int())
			t.setScreen(ScreenState{
				Location: LocationLeagueOfHeroes,
				Title:    t.screen.Title,
				Subtitle: LeagueBand(score),
				Detail:   map[string]any{"league_score": score},
			}, &u)
			return u, nil
		}
	}

	if data.Has("collected_plushies") {
		t.setScreen(clawMachineState(data), &u)
	}

	// Race start: track the program, forward the pair, stop.
	if t.session != nil && data.Get("race_scenario").Truthy() && data.Has("race_start_info") {
		t.previousRaceProgramID = int(data.Path("race_start_info", "program_id").Int())
		t.forwardPair(data)
		return u, nil
	}

	if history := data.Get("race_history"); history.Len() > 0 {
		t.previousRaceProgramID = int(history.Index(-1).Get("program_id").Int())
	}

	if data.Has("chara_info") && !data.Has("limited_shop_info") {
		if err := t.applyTraining(data, &u); err != nil {
			return u, err
		}
	}

	if events := data.Get("unchecked_event_array"); events.Len() > 0 {
		if events.Len() > 1 {
			t.logger.Warn("record has more than one unchecked event", map[string]any{"count": events.Len()})
		}
		u.Event = t.eventHint(data, events.Index(0))
	}

	if data.Has("reserved_race_array") && !data.Has("chara_info") && !t.lastHelperData.IsNull() {
		prev := t.lastHelperData
		data = prev.With("reserved_race_array", data.Get("reserved_race_array"))
		if err := t.updateHelper(data, prev, &u); err != nil {
			return u, err
		}
	}

	t.lastData = data
	return u, nil
}

// applyTraining is the chara_info rule: session resolve, inventory rebuild,
// pair forwarding, snapshot, helper decision and helper diff.
func (t *Tracker) applyTraining(data record.Value, u *Update) error {
	chara := data.Get("chara_info")

	trainingID := chara.Get("start_time").Str()
	if trainingID == "" {
		trainingID = t.opts.Now().Format(TrainingIDLayout)
	}
	if t.session == nil || t.session.TrainingID != trainingID {
		t.refreshMasterData(u)
		t.session = &Session{
			TrainingID:  trainingID,
			CharacterID: int(chara.Get("card_id").Int()),
			CreatedAt:   t.opts.Now(),
		}
		t.lastHelperData = record.Null
		t.helperURL = t.startHelperURL
		t.startHelperURL = ""
		u.SessionStarted = true
		t.logger.Info("training started", map[string]any{
			"training_id":  trainingID,
			"character_id": t.session.CharacterID,
		})
	}

	inv, err := BuildInventory(chara, t.opts.Repository)
	if err != nil {
		var re *ResolveError
		if !errors.As(err, &re) {
			return err
		}
		t.logger.Warn("skill hints skipped", map[string]any{"error": err.Error()})
	}
	if !inv.Equal(t.inventory) {
		t.revision++
		u.InventoryChanged = true
	}
	t.inventory = inv

	t.forwardPair(data)

	target := targetFromChara(chara)
	t.deck = target.SupportIDs

	if data.Get("race_start_info").Truthy() {
		t.setScreen(trainingRaceState(data), u)
	} else {
		t.setScreen(trainingState(data), u)
	}

	want := target.URL(t.opts.Helper.BaseURL, t.opts.Helper.Language, t.server())
	if t.helperURL != want {
		t.helperURL = want
		u.OpenHelper = want
	}

	return t.updateHelper(data, t.lastHelperData, u)
}

func (t *Tracker) updateHelper(data, prev record.Value, u *Update) error {
	id := ""
	if t.session != nil {
		id = t.session.TrainingID
	}
	payload, err := BuildHelperPayload(id, data, prev)
	if err != nil {
		return err
	}
	u.Helper = payload
	t.lastHelperData = data
	return nil
}

func (t *Tracker) eventHint(data, event record.Value) *EventHint {
	chara := data.Get("chara_info")
	contents := event.Get("event_contents_info")
	hint := &EventHint{
		StoryID: int(event.Get("story_id").Int()),
		EventID: int(event.Get("event_id").Int()),
		Choices: contents.Get("choice_array").Len(),
	}
	hint.Titles = t.opts.Repository.EventTitles(hint.StoryID, int(chara.Get("card_id").Int()))

	if hint.Choices <= 1 {
		return hint
	}

	deck := t.deck
	if chara.Has("support_card_array") {
		deck = chara.Get("support_card_array").Ints("support_card_id")
	}
	if support := int(contents.Get("support_card_id").Int()); support != 0 && !contains(deck, support) {
		hint.RandomSupportCardID = support
		t.logger.Info("random support card event", map[string]any{"support_card_id": support})
	}

	if IsAfterRaceEvent(hint.EventID) {
		hint.AfterRace = true
		hint.Titles = AfterRaceTitles(hint.EventID, t.previousRaceProgramID, t.opts.Repository, t.opts.Global)
	}

	for _, id := range chara.Get("chara_effect_id_array").Ints("") {
		if name, ok := t.opts.Repository.StatusName(id); ok {
			hint.OwnedStatusNames = append(hint.OwnedStatusNames, name)
		}
	}
	return hint
}

// HandleRequest applies the request rules. Every request is retained until
// the next paired response consumes it.
func (t *Tracker) HandleRequest(rec record.Value) (Update, error) {
	var u Update
	t.previousRequest = rec

	if rec.Has("attestation_type") {
		t.refreshMasterData(&u)
	}

	if finish := rec.Get("single_mode_finish_request_common"); finish.Has("is_force_delete") {
		t.endSession(&u)
		return u, nil
	}
	if rec.Has("is_force_delete") {
		t.endSession(&u)
		return u, nil
	}

	if rec.Has("live_theater_save_info") {
		t.setScreen(concertState(int(rec.Path("live_theater_save_info", "music_id").Int())), &u)
		return u, nil
	}
	if rec.Has("music_id") {
		t.setScreen(concertState(int(rec.Get("music_id").Int())), &u)
		return u, nil
	}

	if start := rec.Get("start_chara"); start.IsMap() {
		target := targetFromStart(start)
		t.deck = target.SupportIDs
		t.helperURL = target.URL(t.opts.Helper.BaseURL, t.opts.Helper.Language, t.server())
		t.startHelperURL = t.helperURL
		u.OpenHelper = t.helperURL
		t.logger.Debug("training start requested", map[string]any{"helper_url": t.helperURL})
	}
	return u, nil
}
