package tracker

import (
	"bytes"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/pithecene-io/juicer/record"
)

// DefaultHelperURL is the training event helper page.
const DefaultHelperURL = "https://gametora.com/umamusume/training-event-helper"

// HelperTarget identifies which helper page matches a training.
type HelperTarget struct {
	CardID     int   `json:"card_id"`
	ScenarioID int   `json:"scenario_id"`
	SupportIDs []int `json:"support_ids"`
}

// URL renders the helper address. Server is "ja" or "en".
func (h HelperTarget) URL(base, language, server string) string {
	if base == "" {
		base = DefaultHelperURL
	}
	supports := make([]string, len(h.SupportIDs))
	for i, id := range h.SupportIDs {
		supports[i] = strconv.Itoa(id)
	}
	q := url.Values{}
	q.Set("card", strconv.Itoa(h.CardID))
	q.Set("scenario", strconv.Itoa(h.ScenarioID))
	q.Set("supports", strings.Join(supports, "-"))
	if language != "" {
		q.Set("lang", language)
	}
	if server != "" {
		q.Set("server", server)
	}
	return base + "?" + q.Encode()
}

func targetFromStart(start record.Value) HelperTarget {
	supports := start.Get("support_card_ids").Ints("")
	if friend, ok := start.Path("friend_support_card_info", "support_card_id").IntOK(); ok {
		supports = append(supports, int(friend))
	}
	return HelperTarget{
		CardID:     int(start.Get("card_id").Int()),
		ScenarioID: int(start.Get("scenario_id").Int()),
		SupportIDs: supports,
	}
}

func targetFromChara(chara record.Value) HelperTarget {
	return HelperTarget{
		CardID:     int(chara.Get("card_id").Int()),
		ScenarioID: int(chara.Get("scenario_id").Int()),
		SupportIDs: chara.Get("support_card_array").Ints("support_card_id"),
	}
}

// HelperRow is one line of the helper table.
type HelperRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
	// Delta is the change since the previous helper record.
	Delta int `json:"delta"`
}

// HelperPayload is the renderer-facing helper table for one response.
type HelperPayload struct {
	TrainingID string      `json:"training_id"`
	Markup     string      `json:"markup"`
	Rows       []HelperRow `json:"rows"`
}

var helperFields = []struct {
	label string
	key   string
}{
	{"Turn", "turn"},
	{"Energy", "vital"},
	{"Max energy", "max_vital"},
	{"Speed", "speed"},
	{"Stamina", "stamina"},
	{"Power", "power"},
	{"Guts", "guts"},
	{"Wit", "wiz"},
	{"Skill points", "skill_point"},
	{"Fans", "fans"},
	{"Motivation", "motivation"},
}

var helperTemplate = template.Must(template.New("helper").Parse(
	`<table class="juicer-helper">{{range .}}<tr><th>{{.Label}}</th><td>{{.Value}}</td>` +
		`<td class="{{if gt .Delta 0}}up{{else if lt .Delta 0}}down{{end}}">{{if gt .Delta 0}}+{{end}}{{if ne .Delta 0}}{{.Delta}}{{end}}</td></tr>{{end}}</table>`,
))

// BuildHelperPayload diffs the current record against the previous helper
// record. prev may be Null.
func BuildHelperPayload(trainingID string, cur, prev record.Value) (*HelperPayload, error) {
	chara := cur.Get("chara_info")
	prevChara := prev.Get("chara_info")

	rows := make([]HelperRow, 0, len(helperFields)+1)
	for _, f := range helperFields {
		v, ok := chara.Get(f.key).IntOK()
		if !ok {
			continue
		}
		row := HelperRow{Label: f.label, Value: strconv.FormatInt(v, 10)}
		if pv, pok := prevChara.Get(f.key).IntOK(); pok {
			row.Delta = int(v - pv)
		}
		rows = append(rows, row)
	}

	reserved := cur.Get("reserved_race_array")
	if !reserved.IsNull() {
		row := HelperRow{Label: "Reserved races", Value: strconv.Itoa(reserved.Len())}
		if prev.Has("reserved_race_array") {
			row.Delta = reserved.Len() - prev.Get("reserved_race_array").Len()
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	if err := helperTemplate.Execute(&buf, rows); err != nil {
		return nil, err
	}
	return &HelperPayload{TrainingID: trainingID, Markup: buf.String(), Rows: rows}, nil
}
