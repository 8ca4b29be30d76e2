// Package transport implements the two transport front-ends (queue directory
// polling and UDP datagram receive) and the queue janitor.
package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/juicer/types"
)

// Queue file naming: <millis><tag>.msgpack where tag is one character.
const (
	// QueueExt is the extension of every queue file.
	QueueExt = ".msgpack"
	// ResponseSuffix marks a response file.
	ResponseSuffix = "R" + QueueExt
	// RequestSuffix is the suffix the hook uses for requests. Any tag other
	// than R is read as a request.
	RequestSuffix = "Q" + QueueExt
	suffixLen     = len(ResponseSuffix)
)

// QueueFile is one file found in the queue directory.
type QueueFile struct {
	Path      string
	Name      string
	Direction types.Direction
	// Created is the Unix millisecond stamp encoded in the name. Zero when
	// Valid is false.
	Created time.Time
	ModTime time.Time
	// Valid is false when the name could not be parsed. Such files are
	// skipped but never removed.
	Valid bool
}

// ParseQueueName parses a queue file name such as 01760520600123R.msgpack.
// Everything before the one-character tag is a decimal count of
// milliseconds since the Unix epoch; zero padding is allowed.
func ParseQueueName(name string) (QueueFile, error) {
	if !strings.HasSuffix(name, QueueExt) {
		return QueueFile{}, fmt.Errorf("queue file %q: missing %s extension", name, QueueExt)
	}
	if len(name) <= suffixLen {
		return QueueFile{}, fmt.Errorf("queue file %q: name too short for a timestamp", name)
	}

	stem := name[:len(name)-suffixLen]
	for _, c := range stem {
		if c < '0' || c > '9' {
			return QueueFile{}, fmt.Errorf("queue file %q: timestamp is not numeric", name)
		}
	}
	millis, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return QueueFile{}, fmt.Errorf("queue file %q: %w", name, err)
	}

	dir := types.DirectionRequest
	if strings.HasSuffix(name, ResponseSuffix) {
		dir = types.DirectionResponse
	}
	return QueueFile{
		Name:      name,
		Direction: dir,
		Created:   time.UnixMilli(millis),
		Valid:     true,
	}, nil
}

// FormatQueueName builds the name the hook writes for t, zero-padded to 17
// digits.
func FormatQueueName(t time.Time, dir types.Direction) string {
	stamp := fmt.Sprintf("%017d", t.UnixMilli())
	if dir == types.DirectionResponse {
		return stamp + ResponseSuffix
	}
	return stamp + RequestSuffix
}
