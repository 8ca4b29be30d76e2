package runtime

import (
	"context"
	"errors"

	"github.com/pithecene-io/juicer/adapter"
	"github.com/pithecene-io/juicer/simulator"
	"github.com/pithecene-io/juicer/tracker"
)

// HelperOpen is the data of a helper_open payload.
type HelperOpen struct {
	URL string `json:"url"`
}

// publishUpdate maps one tracker update onto payloads, in a fixed order:
// helper_open, screen_state, overlay, event_hint, session_end.
func (e *Engine) publishUpdate(ctx context.Context, u tracker.Update) error {
	if s := e.tracker.Session(); s != nil {
		e.lastTrainingID = s.TrainingID
	}
	trainingID := e.lastTrainingID

	if u.SessionStarted {
		e.collector.IncSessionStarted()
		e.simActive = false
	}

	var payloads []*adapter.Payload
	now := e.now()
	if u.OpenHelper != "" {
		payloads = append(payloads, adapter.NewPayload(adapter.KindHelperOpen, e.config.RunID, trainingID, HelperOpen{URL: u.OpenHelper}, now))
	}
	if u.Screen != nil {
		payloads = append(payloads, adapter.NewPayload(adapter.KindScreenState, e.config.RunID, trainingID, u.Screen, now))
	}
	if u.Helper != nil {
		payloads = append(payloads, adapter.NewPayload(adapter.KindOverlay, e.config.RunID, u.Helper.TrainingID, u.Helper, now))
	}
	if u.Event != nil {
		payloads = append(payloads, adapter.NewPayload(adapter.KindEventHint, e.config.RunID, trainingID, u.Event, now))
	}
	if u.Ended {
		e.collector.IncSessionEnded()
		e.simActive = false
		payloads = append(payloads, adapter.NewPayload(adapter.KindSessionEnd, e.config.RunID, trainingID, nil, now))
		e.lastTrainingID = ""
	}

	for _, p := range payloads {
		if err := e.publish(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// publish sends one payload. Delivery failures are counted and logged;
// only renderer loss and context errors are returned. A helper_open that
// was not delivered leaves no helper associated, so the next training
// record asks again.
func (e *Engine) publish(ctx context.Context, p *adapter.Payload) error {
	err := e.publisher.Publish(ctx, p)
	if err == nil {
		e.collector.IncPublishSuccess()
		return nil
	}
	e.collector.IncPublishFailure()
	if errors.Is(err, adapter.ErrRendererGone) || ctx.Err() != nil {
		return err
	}
	e.logger.Warn("failed to publish payload", map[string]any{
		"kind":  string(p.Kind),
		"error": err.Error(),
	})
	if p.Kind == adapter.KindHelperOpen {
		e.tracker.HelperClosed()
	}
	return nil
}

// maybeSimulate runs the simulator when one was requested, or when the
// inventory changed since the last run and AutoSimulate is on.
func (e *Engine) maybeSimulate(ctx context.Context) error {
	if e.config.Simulator == nil {
		e.simPending.Store(false)
		return nil
	}
	rev := e.tracker.InventoryRevision()
	requested := e.simPending.Swap(false)
	stale := e.config.AutoSimulate && e.simActive && rev != e.simRevision
	if !requested && !stale {
		return nil
	}
	return e.simulate(ctx, rev)
}

func (e *Engine) simulate(ctx context.Context, rev int) error {
	inv := e.tracker.Inventory()
	e.simActive = true
	e.simRevision = rev
	if len(inv.FullList) == 0 {
		e.logger.Debug("no skills to simulate", nil)
		return nil
	}

	req := simulator.NewRequest(inv, e.config.Iterations)
	resp, err := e.config.Simulator.Simulate(ctx, req)
	e.collector.IncSimulation(err != nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("simulation failed", map[string]any{"error": err.Error()})
	}

	summary := simulator.Summarize(resp, inv, e.config.Repository)
	return e.publish(ctx, adapter.NewPayload(adapter.KindSimulation, e.config.RunID, e.lastTrainingID, summary, e.now()))
}
