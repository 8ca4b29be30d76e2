package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/cli/render"
	"github.com/pithecene-io/juicer/lode"
)

// readTimeout bounds a single read-back from storage.
const readTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats reads back what past runs stored; it never touches a live run.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show stored run metrics and training logs",
		Subcommands: []*cli.Command{
			statsMetricsCommand(),
			statsTrainingCommand(),
		},
	}
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Show the final counters of the latest (or a given) run",
		Flags: append(append(ReadOnlyFlags(), StorageFlags()...),
			&cli.StringFlag{Name: "run-id", Usage: "Read metrics for specific run ID"},
		),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	store := storageFromFlags(c)
	if !store.enabled() {
		return cli.Exit("--storage-path is required", exitConfigError)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	factory, err := store.factory(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	ds, err := lode.NewReadDataset(store.dataset, factory)
	if err != nil {
		return fmt.Errorf("failed to open packet archive: %w", err)
	}
	rec, err := lode.QueryLatestMetrics(ctx, ds, c.String("run-id"))
	if err != nil {
		if errors.Is(err, lode.ErrNoMetricsFound) {
			return cli.Exit(err.Error(), exitNotFound)
		}
		return fmt.Errorf("failed to read metrics: %w", err)
	}
	return r.Render(flattenMetrics(rec))
}

// flattenMetrics lifts the snapshot counters next to the run keys so a
// table shows one row per counter.
func flattenMetrics(rec map[string]any) map[string]any {
	out := make(map[string]any)
	if snap, ok := rec["snapshot"].(map[string]any); ok {
		for k, v := range snap {
			out[k] = v
		}
	}
	for _, k := range []string{"run_id", "completed_at", "source", "day"} {
		if v, ok := rec[k]; ok {
			out[k] = v
		}
	}
	return out
}

func statsTrainingCommand() *cli.Command {
	return &cli.Command{
		Name:      "training",
		Usage:     "Show the logged request/response pairs of one training",
		ArgsUsage: "<training-id>",
		Flags:     append(ReadOnlyFlags(), StorageFlags()...),
		Action:    statsTrainingAction,
	}
}

func statsTrainingAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: juicer stats training <training-id>", exitConfigError)
	}
	store := storageFromFlags(c)
	if !store.enabled() {
		return cli.Exit("--storage-path is required", exitConfigError)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	factory, err := store.factory(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	ds, err := lode.NewReadTrainingDataset(factory)
	if err != nil {
		return fmt.Errorf("failed to open training log: %w", err)
	}
	recs, err := lode.QueryTraining(ctx, ds, c.Args().First())
	if err != nil {
		if errors.Is(err, lode.ErrNoTrainingFound) {
			return cli.Exit(err.Error(), exitNotFound)
		}
		return fmt.Errorf("failed to read training log: %w", err)
	}
	return r.Render(recs)
}
