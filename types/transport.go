// Package types holds small enums shared across juicer packages.
package types

import "fmt"

// TransportKind selects the transport front-end for a run.
// Chosen once per run; the two front-ends never run together.
type TransportKind string

// Transport kinds.
const (
	// TransportPoll reads message files dropped into a queue directory.
	TransportPoll TransportKind = "poll"
	// TransportStream receives type-tagged datagrams over UDP.
	TransportStream TransportKind = "stream"
)

// ParseTransportKind validates a transport name.
func ParseTransportKind(s string) (TransportKind, error) {
	switch TransportKind(s) {
	case TransportPoll, TransportStream:
		return TransportKind(s), nil
	case "":
		return TransportPoll, nil
	default:
		return "", fmt.Errorf("invalid transport: %q (must be poll or stream)", s)
	}
}

// Direction says whether a message went from client to server or back.
type Direction string

// Message directions.
const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)
