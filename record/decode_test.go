package record

import (
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func withPrefix(n int, body []byte) []byte {
	out := make([]byte, n, n+len(body))
	return append(out, body...)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("msgpack.Marshal: %v", err)
	}
	return b
}

func TestDecode_FilePrefix(t *testing.T) {
	body := mustMarshal(t, map[string]any{
		"data": map[string]any{
			"chara_info": map[string]any{"card_id": 100601, "skill_array": []any{map[string]any{"skill_id": 200012}}},
		},
	})

	v, err := Decode(withPrefix(FilePrefix, body), FilePrefix)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := v.Path("data", "chara_info", "card_id").Int(); got != 100601 {
		t.Errorf("card_id = %d, want 100601", got)
	}
	if got := v.Path("data", "chara_info", "skill_array").Index(0).Get("skill_id").Int(); got != 200012 {
		t.Errorf("skill_id = %d, want 200012", got)
	}
}

func TestDecode_StripsExcludedFields(t *testing.T) {
	body := mustMarshal(t, map[string]any{
		"viewer_id":  123456789,
		"device":     2,
		"steam_id":   "7656",
		"start_chara": map[string]any{"card_id": 100101},
	})

	v, err := Decode(withPrefix(StreamPrefix, body), StreamPrefix)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for _, k := range []string{"viewer_id", "device", "steam_id"} {
		if v.Has(k) {
			t.Errorf("field %q should have been removed", k)
		}
	}
	if !v.Has("start_chara") {
		t.Error("start_chara should survive filtering")
	}
}

func TestDecode_IntegerMapKeys(t *testing.T) {
	body := mustMarshal(t, map[any]any{
		"data": map[any]any{int64(1): "one", int64(2): "two"},
	})

	v, err := Decode(body, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := v.Path("data", "1").Str(); got != "one" {
		t.Errorf("data[1] = %q, want one", got)
	}
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	body := mustMarshal(t, map[string]any{"data": map[string]any{"x": 1}})
	body = append(body, 0x0c, 0x0c, 0x0c, 0x0c)

	v, err := Decode(body, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v.Path("data", "x").Int() != 1 {
		t.Errorf("data.x = %d, want 1", v.Path("data", "x").Int())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		prefix int
		kind   DecodeErrorKind
	}{
		{"short header", []byte{1, 2}, StreamPrefix, DecodeErrorShort},
		{"garbage", []byte{0xc1}, 0, DecodeErrorMsgpack},
		{"empty body", withPrefix(4, nil), 4, DecodeErrorMsgpack},
		{"not a map", mustMarshal(t, []any{1, 2}), 0, DecodeErrorShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.prefix)
			if err == nil {
				t.Fatal("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
			if de.Kind != tt.kind {
				t.Errorf("Kind = %d, want %d", de.Kind, tt.kind)
			}
			if !IsDecodeError(err) {
				t.Error("IsDecodeError = false")
			}
		})
	}
}

func TestDecodeJSON_KeepsIntegers(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"data":{"chara_info":{"card_id":100601,"speed":1.5}}}`))
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if k := v.Path("data", "chara_info", "card_id").Kind(); k != KindInt {
		t.Errorf("card_id kind = %s, want int", k)
	}
	if f := v.Path("data", "chara_info", "speed").Float(); f != 1.5 {
		t.Errorf("speed = %v, want 1.5", f)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	v := Map(map[string]Value{
		"data": Map(map[string]Value{"ids": Array(Int(1), Int(2))}),
	})
	b, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(b, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Equal(v) {
		t.Errorf("round trip mismatch: %v vs %v", got.Any(), v.Any())
	}
}
