// Package tracker projects decoded records onto session state: the live
// training, its skill inventory, the current screen and the helper surface.
//
// A Tracker is owned by the single run loop. Every mutation happens inside
// HandleResponse or HandleRequest, which report what changed as an Update.
package tracker

import (
	"time"

	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/record"
)

// Session is the live training run. At most one exists at a time.
type Session struct {
	TrainingID  string    `json:"training_id"`
	CharacterID int       `json:"character_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Location is the part of the game a screen snapshot describes.
type Location int

// Locations.
const (
	LocationNone Location = iota
	LocationTraining
	LocationTrainingRace
	LocationTheater
	LocationConcert
	LocationScouting
	LocationLeagueOfHeroes
	LocationClawMachine
)

var locationNames = [...]string{
	"none", "training", "training_race", "theater", "concert", "scouting", "league_of_heroes", "claw_machine",
}

func (l Location) String() string {
	if int(l) >= 0 && int(l) < len(locationNames) {
		return locationNames[l]
	}
	return "unknown"
}

// MarshalText renders the location name in payloads.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ScreenState is one snapshot. Snapshots replace each other wholesale.
type ScreenState struct {
	Location Location       `json:"location"`
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// EventHint describes an unchecked training event for the helper surface.
type EventHint struct {
	StoryID int      `json:"story_id"`
	EventID int      `json:"event_id"`
	Titles  []string `json:"titles"`
	Choices int      `json:"choices"`
	// RandomSupportCardID is set when the event belongs to a support card
	// outside the deck.
	RandomSupportCardID int      `json:"random_support_card_id,omitempty"`
	AfterRace           bool     `json:"after_race,omitempty"`
	OwnedStatusNames    []string `json:"owned_status_names,omitempty"`
}

// Update is everything one record changed.
type Update struct {
	Screen         *ScreenState `json:"screen,omitempty"`
	Ended          bool         `json:"ended,omitempty"`
	SessionStarted bool         `json:"session_started,omitempty"`
	// OpenHelper is the helper URL to (re)open, empty when the current one
	// stays valid.
	OpenHelper          string         `json:"open_helper,omitempty"`
	Helper              *HelperPayload `json:"helper,omitempty"`
	Event               *EventHint     `json:"event,omitempty"`
	InventoryChanged    bool           `json:"inventory_changed,omitempty"`
	RefreshedMasterData bool           `json:"refreshed_master_data,omitempty"`
}

// Empty reports whether the update carries nothing to publish.
func (u Update) Empty() bool {
	return u.Screen == nil && !u.Ended && !u.SessionStarted && u.OpenHelper == "" &&
		u.Helper == nil && u.Event == nil && !u.InventoryChanged && !u.RefreshedMasterData
}

// PairSink receives request/response pairs of the live training.
type PairSink interface {
	AddRequest(trainingID string, rec record.Value) error
	AddResponse(trainingID string, rec record.Value) error
}

// HelperConfig locates the external helper page.
type HelperConfig struct {
	BaseURL  string
	Language string
}

// Options configures a Tracker.
type Options struct {
	Repository masterdata.Repository
	// Pairs receives request/response pairs when TrackTrainings is set.
	Pairs          PairSink
	TrackTrainings bool
	Helper         HelperConfig
	// Global selects the global server's labels and helper server.
	Global bool
	Now    func() time.Time
	Logger *log.Logger
}
