package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Header prefixes stripped before decoding.
const (
	// FilePrefix is the fixed header of a queue file written by the hook.
	FilePrefix = 170
	// StreamPrefix is the header of a decrypted or plaintext streamed body.
	StreamPrefix = 4
)

// ExcludedFields are top-level request fields that identify the device or
// account and carry nothing the tracker uses. They never leave this package.
var ExcludedFields = []string{
	"viewer_id",
	"device",
	"device_id",
	"device_name",
	"graphics_device_name",
	"ip_address",
	"platform_os_version",
	"carrier",
	"keychain",
	"locale",
	"button_info",
	"dmm_viewer_id",
	"dmm_onetime_token",
	"steam_id",
	"steam_session_ticket",
}

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	// DecodeErrorShort indicates the input is shorter than its header.
	DecodeErrorShort DecodeErrorKind = iota
	// DecodeErrorMsgpack indicates the body is not valid msgpack.
	DecodeErrorMsgpack
	// DecodeErrorShape indicates the top-level value is not a map.
	DecodeErrorShape
)

// DecodeError reports a payload that could not become a Record.
// Callers treat it as "no record" and move on to the next input.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode strips prefix bytes, decodes the first msgpack object of the
// remainder and filters excluded fields. Trailing bytes (cipher padding) are
// ignored.
func Decode(data []byte, prefix int) (Value, error) {
	if len(data) < prefix {
		return Null, &DecodeError{
			Kind: DecodeErrorShort,
			Msg:  fmt.Sprintf("payload of %d bytes is shorter than its %d byte header", len(data), prefix),
		}
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data[prefix:]))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null, &DecodeError{
			Kind: DecodeErrorMsgpack,
			Msg:  "failed to decode msgpack body",
			Err:  err,
		}
	}

	v := FromAny(raw)
	if !v.IsMap() {
		return Null, &DecodeError{
			Kind: DecodeErrorShape,
			Msg:  fmt.Sprintf("top-level value is %s, want map", v.Kind()),
		}
	}
	return Filter(v), nil
}

// DecodeJSON decodes a JSON document into a Record. Used for injected debug
// input; integral numbers stay integers.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null, &DecodeError{Kind: DecodeErrorMsgpack, Msg: "failed to decode json body", Err: err}
	}
	v := FromAny(raw)
	if !v.IsMap() {
		return Null, &DecodeError{
			Kind: DecodeErrorShape,
			Msg:  fmt.Sprintf("top-level value is %s, want map", v.Kind()),
		}
	}
	return Filter(v), nil
}

// Filter removes ExcludedFields from a top-level map.
func Filter(v Value) Value {
	present := false
	for _, k := range ExcludedFields {
		if v.Has(k) {
			present = true
			break
		}
	}
	if !present {
		return v
	}
	return v.Without(ExcludedFields...)
}

// Encode marshals a Value back to msgpack. Used by fixtures and the
// decode command's round trip.
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(v.Any())
}

// FromAny converts a generic decoded tree into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(n)
		}
		f, _ := t.Float64()
		return Float(f)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano))
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = FromAny(e)
		}
		return Array(arr...)
	case []int:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = Int(int64(e))
		}
		return Array(arr...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromAny(e)
		}
		return Map(m)
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[keyString(k)] = FromAny(e)
		}
		return Map(m)
	default:
		return String(fmt.Sprint(t))
	}
}

func keyString(k any) string {
	switch t := k.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Any converts v into plain Go values (map[string]any, []any, int64,
// float64, string, []byte, bool, nil) for JSON, YAML or storage encoders.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders the value tree as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}
