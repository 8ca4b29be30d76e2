// Package ipc implements the streaming wire format: one type-tagged frame per
// datagram, multipart reassembly and the key/IV/data cipher triple.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameType is the byte-0 tag of a datagram.
type FrameType uint8

// Frame types.
const (
	// FrameData carries ciphertext (or replaces it wholesale).
	FrameData FrameType = 0
	// FrameKey carries the AES key.
	FrameKey FrameType = 1
	// FrameIV carries the IV and triggers decryption.
	FrameIV FrameType = 2
	// FrameRequest carries a plaintext request body.
	FrameRequest FrameType = 3
	// FrameMultipartHeader announces a chunk count in byte 1.
	FrameMultipartHeader FrameType = 4
	// FrameMultipartChunk appends to the multipart buffer.
	FrameMultipartChunk FrameType = 5
)

// Header sizes.
const (
	// HeaderSize is the type byte plus the big-endian uint16 length.
	HeaderSize = 3
	// MultipartHeaderSize is the type byte plus the chunk count.
	MultipartHeaderSize = 2
)

var frameTypeNames = map[FrameType]string{
	FrameData:            "data",
	FrameKey:             "key",
	FrameIV:              "iv",
	FrameRequest:         "request",
	FrameMultipartHeader: "multipart_header",
	FrameMultipartChunk:  "multipart_chunk",
}

func (t FrameType) String() string {
	if s, ok := frameTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Frame is one parsed datagram. Payload is exactly Length bytes.
type Frame struct {
	Type    FrameType
	Length  int
	Payload []byte
	// Chunks is the announced chunk count of a FrameMultipartHeader.
	Chunks int
}

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorShort indicates a datagram shorter than its header.
	FrameErrorShort FrameErrorKind = iota
	// FrameErrorTruncated indicates a declared length exceeding the bytes received.
	FrameErrorTruncated
	// FrameErrorUnknownType indicates an unrecognized type tag.
	FrameErrorUnknownType
	// FrameErrorUnexpectedChunk indicates a chunk with zero chunks remaining.
	FrameErrorUnexpectedChunk
	// FrameErrorCipher indicates decryption failed.
	FrameErrorCipher
)

var frameErrorKindNames = [...]string{"short", "truncated", "unknown_type", "unexpected_chunk", "cipher"}

func (k FrameErrorKind) String() string {
	if int(k) < len(frameErrorKindNames) {
		return frameErrorKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FrameError represents a framing or cipher error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsDroppable reports whether the frame can be dropped and the loop continue.
// No framing error terminates a run.
func (e *FrameError) IsDroppable() bool {
	return true
}

// AsFrameError extracts a *FrameError from err.
func AsFrameError(err error) (*FrameError, bool) {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr, true
	}
	return nil, false
}

// ParseDatagram parses one datagram into a Frame.
//
// Errors:
//   - *FrameError with Kind=FrameErrorShort: fewer bytes than the header
//   - *FrameError with Kind=FrameErrorTruncated: declared length exceeds payload
//   - *FrameError with Kind=FrameErrorUnknownType: type tag above 5
func ParseDatagram(b []byte) (Frame, error) {
	if len(b) < MultipartHeaderSize {
		return Frame{}, &FrameError{
			Kind: FrameErrorShort,
			Msg:  fmt.Sprintf("datagram of %d bytes is shorter than any header", len(b)),
		}
	}

	t := FrameType(b[0])
	if t > FrameMultipartChunk {
		return Frame{}, &FrameError{
			Kind: FrameErrorUnknownType,
			Msg:  fmt.Sprintf("unknown frame type %d", b[0]),
		}
	}

	if t == FrameMultipartHeader {
		return Frame{Type: t, Chunks: int(b[1])}, nil
	}

	if len(b) < HeaderSize {
		return Frame{}, &FrameError{
			Kind: FrameErrorShort,
			Msg:  fmt.Sprintf("%s frame of %d bytes is shorter than its header", t, len(b)),
		}
	}

	length := int(binary.BigEndian.Uint16(b[1:HeaderSize]))
	if len(b)-HeaderSize < length {
		return Frame{}, &FrameError{
			Kind: FrameErrorTruncated,
			Msg:  fmt.Sprintf("%s frame declares %d bytes but carries %d", t, length, len(b)-HeaderSize),
		}
	}

	payload := make([]byte, length)
	copy(payload, b[HeaderSize:HeaderSize+length])
	return Frame{Type: t, Length: length, Payload: payload}, nil
}

// EncodeFrame builds a datagram for a length-prefixed frame type.
// Payloads longer than 65535 bytes are rejected.
func EncodeFrame(t FrameType, payload []byte) ([]byte, error) {
	if t == FrameMultipartHeader {
		return nil, fmt.Errorf("use EncodeMultipartHeader for %s frames", t)
	}
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("payload of %d bytes exceeds frame limit", len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(t)
	binary.BigEndian.PutUint16(buf[1:HeaderSize], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeMultipartHeader builds a multipart header datagram.
func EncodeMultipartHeader(chunks uint8) []byte {
	return []byte{byte(FrameMultipartHeader), chunks}
}
