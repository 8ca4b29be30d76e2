package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/juicer/ipc"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/router"
	"github.com/pithecene-io/juicer/transport"
	"github.com/pithecene-io/juicer/types"
)

// pollStep waits one interval and processes every queue file found.
// Scan and read failures are logged and retried on the next step.
func (e *Engine) pollStep(ctx context.Context) error {
	if err := e.config.Poll.Wait(ctx); err != nil {
		return err
	}
	files, err := e.config.Poll.List()
	if err != nil {
		e.logger.Warn("queue scan failed", map[string]any{"error": err.Error()})
		return nil
	}
	for _, f := range files {
		if err := e.processFile(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) processFile(ctx context.Context, f transport.QueueFile) error {
	if e.janitor.Skipped(f.Path) {
		return nil
	}
	if !f.Valid {
		if _, seen := e.invalidSeen[f.Path]; !seen {
			e.invalidSeen[f.Path] = struct{}{}
			e.logger.Warn("ignoring queue file with unparseable name", map[string]any{"file": f.Name})
		}
		return nil
	}

	e.collector.IncFileSeen()
	if e.router.IsStale(f.Created) {
		e.collector.IncStaleDiscarded()
		e.logger.Debug("stale queue file discarded", map[string]any{"file": f.Name})
		return e.remove(ctx, f.Path)
	}

	data, err := e.reader.Read(ctx, f.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, transport.ErrVanished) {
			e.logger.Debug("queue file vanished before read", map[string]any{"file": f.Name})
			return nil
		}
		e.collector.IncFileReadError()
		if errors.Is(err, transport.ErrLocked) {
			e.logger.Debug("queue file still locked, retrying next scan", map[string]any{"file": f.Name})
			return nil
		}
		e.logger.Warn("failed to read queue file", map[string]any{"file": f.Name, "error": err.Error()})
		return nil
	}

	prefix := e.config.RequestPrefix
	if f.Direction == types.DirectionResponse {
		prefix = e.config.ResponsePrefix
	}
	rec, err := record.Decode(data, prefix)
	if err != nil {
		e.collector.IncDecodeError()
		e.logger.Warn("failed to decode queue file", map[string]any{"file": f.Name, "error": err.Error()})
		return e.remove(ctx, f.Path)
	}

	e.archive(ctx, f.Direction, f.Name, rec)
	routeErr := e.route(ctx, router.Input{
		Direction: f.Direction,
		Created:   f.Created,
		Record:    rec,
		Source:    f.Name,
	})
	if err := e.remove(ctx, f.Path); err != nil {
		return err
	}
	return routeErr
}

// remove hands path to the janitor. Only context errors are returned; a
// file the janitor gives up on is logged and skipped for the rest of the run.
func (e *Engine) remove(ctx context.Context, path string) error {
	err := e.janitor.Remove(ctx, path)
	switch {
	case err == nil:
		e.collector.IncFileRemoved()
		return nil
	case errors.Is(err, transport.ErrSkipped):
		e.collector.IncFileSkipped()
		e.logger.Warn("queue file could not be removed, skipping", map[string]any{"error": err.Error()})
		return nil
	default:
		return err
	}
}

// streamStep receives at most one datagram. A receive timeout yields back
// to the loop with nothing to do. Other receive errors back off for one
// receive timeout and are logged once per streak.
func (e *Engine) streamStep(ctx context.Context) error {
	b, err := e.config.Stream.Receive()
	if err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return err
		}
		e.receiveFailures++
		if e.receiveFailures == 1 {
			e.logger.Warn("datagram receive failed", map[string]any{"error": err.Error()})
		}
		return sleepCtx(ctx, e.config.Stream.ReceiveTimeout())
	}
	if e.receiveFailures > 0 {
		e.logger.Info("datagram receive recovered", map[string]any{"failures": e.receiveFailures})
		e.receiveFailures = 0
	}
	if b == nil {
		return nil
	}
	e.collector.IncDatagram()

	frame, err := ipc.ParseDatagram(b)
	if err != nil {
		e.dropFrame(err, len(b))
		return nil
	}
	msg, err := e.assembler.Handle(frame)
	if err != nil {
		e.dropFrame(err, len(b))
		return nil
	}
	if msg == nil {
		return nil
	}

	dir := types.DirectionResponse
	if msg.Kind == ipc.MessageRequest {
		dir = types.DirectionRequest
	}
	rec, err := record.Decode(msg.Payload, record.StreamPrefix)
	if err != nil {
		e.collector.IncDecodeError()
		e.logger.Warn("failed to decode streamed message", map[string]any{
			"direction": string(dir),
			"error":     err.Error(),
		})
		return nil
	}

	e.archive(ctx, dir, "udp", rec)
	return e.route(ctx, router.Input{Direction: dir, Record: rec, Source: "udp"})
}

func (e *Engine) dropFrame(err error, size int) {
	kind := "unknown"
	if fe, ok := ipc.AsFrameError(err); ok {
		kind = fe.Kind.String()
		if fe.Kind == ipc.FrameErrorCipher {
			e.collector.IncDecryptFailure()
		}
	}
	e.collector.IncFrameDropped(kind)
	e.logger.Warn("frame dropped", map[string]any{
		"kind":  kind,
		"bytes": size,
		"error": err.Error(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
