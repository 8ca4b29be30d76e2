package runtime

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/router"
	"github.com/pithecene-io/juicer/types"
)

// injectDebug routes the JSON record in DebugInput as a response, then
// removes the file. A file that fails to decode is removed as well.
func (e *Engine) injectDebug(ctx context.Context) error {
	path := e.config.DebugInput
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("failed to read debug input", map[string]any{"path": path, "error": err.Error()})
		}
		return nil
	}
	if err := e.janitor.Remove(ctx, path); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Skipped by the janitor: never re-read it.
		e.logger.Warn("failed to remove debug input", map[string]any{"path": path, "error": err.Error()})
		e.config.DebugInput = ""
	}

	rec, err := record.DecodeJSON(data)
	if err != nil {
		e.collector.IncDecodeError()
		e.logger.Warn("failed to decode debug input", map[string]any{"path": path, "error": err.Error()})
		return nil
	}
	e.logger.Info("injecting debug record", map[string]any{"path": path})
	return e.route(ctx, router.Input{
		Direction: types.DirectionResponse,
		Record:    rec,
		Source:    "debug",
	})
}
