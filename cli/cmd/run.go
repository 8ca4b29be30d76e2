package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/juicer/adapter"
	"github.com/pithecene-io/juicer/adapter/redis"
	"github.com/pithecene-io/juicer/adapter/webhook"
	"github.com/pithecene-io/juicer/cli/config"
	"github.com/pithecene-io/juicer/iox"
	"github.com/pithecene-io/juicer/lode"
	"github.com/pithecene-io/juicer/log"
	"github.com/pithecene-io/juicer/masterdata"
	"github.com/pithecene-io/juicer/metrics"
	"github.com/pithecene-io/juicer/record"
	"github.com/pithecene-io/juicer/runtime"
	"github.com/pithecene-io/juicer/simulator"
	"github.com/pithecene-io/juicer/tracker"
	"github.com/pithecene-io/juicer/transport"
	"github.com/pithecene-io/juicer/types"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitRunFailed   = 1
	exitConfigError = 2
	exitNotFound    = 3
)

// defaultRequestPrefix is the header stripped from request queue files.
const defaultRequestPrefix = record.StreamPrefix

// RunCommand returns the run command.
// This is the only command that ingests traffic.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Ingest game traffic and publish tracker state to a renderer",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to juicer.yaml (flags override its values)",
			},
			&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: random UUID)"},
			&cli.StringFlag{Name: "transport", Usage: "Transport: poll or stream", Value: string(types.TransportPoll)},
			&cli.BoolFlag{Name: "quiet", Usage: "Suppress result output"},
			&cli.StringFlag{Name: "report", Usage: "Write a JSON run report to this path (\"-\" for stderr)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "info"},

			// Poll transport
			&cli.StringFlag{Name: "queue-dir", Usage: "Queue directory the hook writes message files to"},
			&cli.DurationFlag{Name: "poll-interval", Usage: "Queue scan interval", Value: transport.DefaultPollInterval},
			&cli.BoolFlag{Name: "watch", Usage: "Wake early on queue directory changes"},
			&cli.IntFlag{Name: "response-prefix", Usage: "Header bytes stripped from response files", Value: record.FilePrefix},
			&cli.IntFlag{Name: "request-prefix", Usage: "Header bytes stripped from request files", Value: defaultRequestPrefix},

			// Stream transport
			&cli.StringFlag{Name: "listen", Usage: "UDP address to receive datagrams on", Value: transport.DefaultAddr},
			&cli.DurationFlag{Name: "receive-timeout", Usage: "Bound on a single datagram receive", Value: transport.DefaultReceiveTimeout},

			// Tracker
			&cli.StringFlag{Name: "masterdata", Usage: "Path to the game's master.mdb"},
			&cli.StringFlag{Name: "masterdata-fixture", Usage: "Path to a YAML master data fixture (used without --masterdata)"},
			&cli.StringFlag{Name: "helper-url", Usage: "Training event helper base URL", Value: tracker.DefaultHelperURL},
			&cli.StringFlag{Name: "helper-language", Usage: "Training event helper language"},
			&cli.BoolFlag{Name: "global", Usage: "Use global server labels and helper server"},
			&cli.BoolFlag{Name: "track-trainings", Usage: "Log request/response pairs of each training (requires storage)"},
			&cli.StringFlag{Name: "debug-input", Usage: "File whose JSON content is injected as a response"},

			// Renderer adapter
			&cli.StringFlag{Name: "adapter", Usage: "Renderer adapter: webhook or redis"},
			&cli.StringFlag{Name: "adapter-url", Usage: "Adapter endpoint URL"},
			&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
			&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-publish timeout"},
			&cli.IntFlag{Name: "adapter-retries", Usage: "Retry attempts per publish"},
			&cli.BoolFlag{Name: "adapter-require-subscriber", Usage: "End the run when a redis publish reaches nobody"},

			// Simulator
			&cli.StringFlag{Name: "simulator", Usage: "Path to the skill simulator binary"},
			&cli.IntFlag{Name: "iterations", Usage: "Simulator iterations", Value: simulator.DefaultIterations},
			&cli.BoolFlag{Name: "auto-simulate", Usage: "Re-simulate when the skill inventory changes"},

			// Archive
			&cli.BoolFlag{Name: "save-race-packets", Usage: "Also archive race packets found in responses"},
		}, StorageFlags()...),
		Action: runAction,
	}
}

// runChoice holds the merged flag and config values of one run.
type runChoice struct {
	runID     string
	transport types.TransportKind
	logLevel  string

	queueDir       string
	pollInterval   time.Duration
	watch          bool
	responsePrefix int
	requestPrefix  int
	readAttempts   int
	readInterval   time.Duration
	removeAttempts int
	removeBackoff  time.Duration

	listen         string
	bufferSize     int
	receiveTimeout time.Duration

	masterdata        string
	masterdataFixture string
	helperURL         string
	helperLanguage    string
	global            bool
	trackTrainings    bool
	debugInput        string

	adapter adapterChoice

	simulatorPath string
	iterations    int
	autoSimulate  bool

	storage         storageChoice
	saveRacePackets bool
}

// adapterChoice holds renderer adapter settings.
type adapterChoice struct {
	kind              string
	url               string
	channel           string
	headers           map[string]string
	timeout           time.Duration
	retries           *int
	requireSubscriber bool
}

func runAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitConfigError)
	}

	choice, err := resolveRunChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger, err := log.NewLogger(log.RunContext{RunID: choice.runID, Transport: choice.transport}, choice.logLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitConfigError)
	}
	defer logger.Sync()

	engine, err := buildEngine(c.Context, choice, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	stopSignals := watchSignals(ctx, engine, cancel, logger)
	defer stopSignals()

	result, runErr := engine.Run(ctx)
	code := outcomeToExitCode(result.Outcome)

	if path := c.String("report"); path != "" {
		if err := runtime.WriteRunReport(runtime.BuildRunReport(result, code), path); err != nil {
			logger.Warn("failed to write run report", map[string]any{"path": path, "error": err.Error()})
		}
	}
	if !c.Bool("quiet") {
		printRunResult(c.App.Writer, result)
	}
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), code)
	}
	return cli.Exit("", code)
}

// resolveRunChoice merges flags over config values. A flag wins only when
// it was set explicitly; otherwise a non-zero config value replaces the
// flag default.
func resolveRunChoice(c *cli.Context, cfg *config.Config) (runChoice, error) {
	ch := runChoice{
		runID:    c.String("run-id"),
		logLevel: pickString(c, "log-level", cfg.LogLevel),

		queueDir:       pickString(c, "queue-dir", cfg.Poll.Dir),
		pollInterval:   pickDuration(c, "poll-interval", cfg.Poll.Interval.Duration),
		watch:          pickBool(c, "watch", cfg.Poll.Watch),
		responsePrefix: pickIntPtr(c, "response-prefix", cfg.Poll.ResponsePrefix),
		requestPrefix:  pickIntPtr(c, "request-prefix", cfg.Poll.RequestPrefix),
		readAttempts:   cfg.Poll.ReadAttempts,
		readInterval:   cfg.Poll.ReadInterval.Duration,
		removeAttempts: cfg.Poll.RemoveAttempts,
		removeBackoff:  cfg.Poll.RemoveBackoff.Duration,

		listen:         pickString(c, "listen", cfg.Stream.Addr),
		bufferSize:     cfg.Stream.BufferSize,
		receiveTimeout: pickDuration(c, "receive-timeout", cfg.Stream.Timeout.Duration),

		masterdata:        pickString(c, "masterdata", cfg.MasterData.Path),
		masterdataFixture: pickString(c, "masterdata-fixture", cfg.MasterData.Fixture),
		helperURL:         pickString(c, "helper-url", cfg.Helper.URL),
		helperLanguage:    pickString(c, "helper-language", cfg.Helper.Language),
		global:            pickBool(c, "global", cfg.Global),
		trackTrainings:    pickBool(c, "track-trainings", cfg.TrackTrainings),
		debugInput:        pickString(c, "debug-input", cfg.DebugInput),

		adapter: adapterChoice{
			kind:              pickString(c, "adapter", cfg.Adapter.Type),
			url:               pickString(c, "adapter-url", cfg.Adapter.URL),
			channel:           pickString(c, "adapter-channel", cfg.Adapter.Channel),
			headers:           cfg.Adapter.Headers,
			timeout:           pickDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
			retries:           cfg.Adapter.Retries,
			requireSubscriber: pickBool(c, "adapter-require-subscriber", cfg.Adapter.RequireSubscriber),
		},

		simulatorPath: pickString(c, "simulator", cfg.Simulator.Path),
		iterations:    pickInt(c, "iterations", cfg.Simulator.Iterations),
		autoSimulate:  pickBool(c, "auto-simulate", cfg.Simulator.Auto),

		storage: storageChoice{
			backend:   pickString(c, "storage-backend", cfg.Storage.Backend),
			path:      pickString(c, "storage-path", cfg.Storage.Path),
			dataset:   pickString(c, "storage-dataset", cfg.Storage.Dataset),
			region:    pickString(c, "storage-region", cfg.Storage.Region),
			endpoint:  pickString(c, "storage-endpoint", cfg.Storage.Endpoint),
			pathStyle: pickBool(c, "storage-s3-path-style", cfg.Storage.S3PathStyle),
		},
		saveRacePackets: pickBool(c, "save-race-packets", cfg.Storage.SaveRacePackets),
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		ch.adapter.retries = &n
	}
	if ch.runID == "" {
		ch.runID = uuid.NewString()
	}

	kind, err := types.ParseTransportKind(pickString(c, "transport", cfg.Transport))
	if err != nil {
		return ch, err
	}
	ch.transport = kind

	if err := validateRunChoice(ch); err != nil {
		return ch, err
	}
	return ch, nil
}

func validateRunChoice(ch runChoice) error {
	if ch.transport == types.TransportPoll && ch.queueDir == "" {
		return errors.New("--queue-dir is required for the poll transport")
	}
	if ch.responsePrefix < 0 || ch.requestPrefix < 0 {
		return errors.New("prefixes must be >= 0")
	}
	switch ch.adapter.kind {
	case "":
		if ch.adapter.url != "" {
			return errors.New("--adapter-url requires --adapter")
		}
	case "webhook", "redis":
		if ch.adapter.url == "" {
			return fmt.Errorf("--adapter-url is required for adapter %q", ch.adapter.kind)
		}
	default:
		return fmt.Errorf("invalid adapter: %q (must be webhook or redis)", ch.adapter.kind)
	}
	if ch.adapter.retries != nil && *ch.adapter.retries < 0 {
		return fmt.Errorf("adapter retries must be >= 0, got %d", *ch.adapter.retries)
	}
	switch ch.storage.backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("invalid storage-backend: %q (must be fs or s3)", ch.storage.backend)
	}
	if ch.storage.backend != "" && !ch.storage.enabled() {
		return errors.New("--storage-backend requires --storage-path")
	}
	if ch.saveRacePackets && !ch.storage.enabled() {
		return errors.New("--save-race-packets requires --storage-path")
	}
	if ch.trackTrainings && !ch.storage.enabled() {
		return errors.New("--track-trainings requires --storage-path")
	}
	if ch.iterations <= 0 {
		return fmt.Errorf("iterations must be > 0, got %d", ch.iterations)
	}
	return nil
}

// buildEngine opens every collaborator of a run. On error, whatever was
// already opened is closed again.
func buildEngine(ctx context.Context, ch runChoice, logger *log.Logger) (_ *runtime.Engine, err error) {
	var opened []io.Closer
	defer func() {
		if err != nil {
			_ = iox.CloseAll(opened...)
		}
	}()

	start := time.Now()
	backend := ch.storage.backend
	if backend == "" && ch.storage.enabled() {
		backend = "fs"
	}
	collector := metrics.NewCollector(string(ch.transport), backend, ch.runID)

	repo, err := openRepository(ch, logger)
	if err != nil {
		return nil, err
	}
	opened = append(opened, repo)

	publisher, err := buildPublisher(ch.adapter)
	if err != nil {
		return nil, err
	}
	opened = append(opened, publisher)

	var (
		archive  *lode.Archive
		pairs    tracker.PairSink
		trainLog *lode.TrainingLog
	)
	if ch.storage.enabled() {
		factory, ferr := ch.storage.factory(ctx)
		if ferr != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", ferr)
		}
		archive, err = lode.NewArchiveWithFactory(lode.Config{
			Dataset: ch.storage.dataset,
			Source:  string(ch.transport),
			Day:     lode.DeriveDay(start),
			RunID:   ch.runID,
		}, factory, collector)
		if err != nil {
			return nil, fmt.Errorf("failed to open packet archive: %w", err)
		}
		opened = append(opened, archive)

		if ch.trackTrainings {
			trainLog, err = lode.NewTrainingLogWithFactory(factory, ch.runID, collector)
			if err != nil {
				return nil, fmt.Errorf("failed to open training log: %w", err)
			}
			opened = append(opened, trainLog)
			pairs = trainLog
		}
	}

	trk := tracker.New(tracker.Options{
		Repository:     repo,
		Pairs:          pairs,
		TrackTrainings: ch.trackTrainings,
		Helper:         tracker.HelperConfig{BaseURL: ch.helperURL, Language: ch.helperLanguage},
		Global:         ch.global,
		Logger:         logger,
	})

	var sim simulator.Client
	if ch.simulatorPath != "" {
		sim = &simulator.ExecClient{Path: ch.simulatorPath, Logger: logger}
	}

	rc := runtime.Config{
		RunID:           ch.runID,
		Transport:       ch.transport,
		ResponsePrefix:  ch.responsePrefix,
		RequestPrefix:   ch.requestPrefix,
		DebugInput:      ch.debugInput,
		Tracker:         trk,
		Repository:      repo,
		Publisher:       publisher,
		Archive:         archive,
		SaveRacePackets: ch.saveRacePackets,
		Simulator:       sim,
		Iterations:      ch.iterations,
		AutoSimulate:    ch.autoSimulate,
		Logger:          logger,
		Collector:       collector,
	}
	if trainLog != nil {
		rc.Closers = append(rc.Closers, trainLog)
	}
	switch ch.transport {
	case types.TransportStream:
		rc.Stream = &transport.UDPSource{
			Addr:       ch.listen,
			BufferSize: ch.bufferSize,
			Timeout:    ch.receiveTimeout,
		}
	default:
		rc.Poll = &transport.PollSource{
			Dir:      ch.queueDir,
			Interval: ch.pollInterval,
			Watch:    ch.watch,
		}
		rc.Reader = &transport.FileReader{Attempts: ch.readAttempts, Interval: ch.readInterval}
		janitor := transport.NewJanitor()
		if ch.removeAttempts > 0 {
			janitor.MaxAttempts = ch.removeAttempts
		}
		if ch.removeBackoff > 0 {
			janitor.Backoff = ch.removeBackoff
		}
		rc.Janitor = janitor
	}

	return runtime.New(rc)
}

// openRepository opens the master database, or the fixture when no
// database is given. With neither, lookups come back empty.
func openRepository(ch runChoice, logger *log.Logger) (masterdata.Repository, error) {
	switch {
	case ch.masterdata != "":
		repo, err := masterdata.OpenSQLite(ch.masterdata, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open master data: %w", err)
		}
		return repo, nil
	case ch.masterdataFixture != "":
		repo, err := masterdata.LoadFixture(ch.masterdataFixture)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		logger.Warn("no master data configured, skill and event lookups will be empty", nil)
		return masterdata.NewMemory(masterdata.Fixture{}), nil
	}
}

// buildPublisher creates the renderer adapter. No adapter means payloads
// are dropped.
func buildPublisher(ac adapterChoice) (adapter.Publisher, error) {
	retries := webhook.DefaultRetries
	if ac.retries != nil {
		retries = *ac.retries
	}
	switch ac.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:               ac.url,
			Channel:           ac.channel,
			Timeout:           ac.timeout,
			Retries:           retries,
			RequireSubscriber: ac.requireSubscriber,
		})
	default:
		return adapter.Nop{}, nil
	}
}

// watchSignals stops the engine on the first SIGINT or SIGTERM and cancels
// the run on the second. Simulation requests arrive on platform-specific
// signals. The returned func releases the handlers.
func watchSignals(ctx context.Context, engine *runtime.Engine, cancel context.CancelFunc, logger *log.Logger) func() {
	stopCh := make(chan os.Signal, 2)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	simCh := make(chan os.Signal, 1)
	if len(simulateSignals) > 0 {
		signal.Notify(simCh, simulateSignals...)
	}

	done := make(chan struct{})
	go func() {
		stopping := false
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-simCh:
				logger.Info("simulation requested", nil)
				engine.RequestSimulation()
			case sig := <-stopCh:
				if stopping {
					logger.Warn("second signal, canceling run", map[string]any{"signal": sig.String()})
					cancel()
					return
				}
				stopping = true
				logger.Info("stopping run", map[string]any{"signal": sig.String()})
				engine.Stop()
			}
		}
	}()
	return func() {
		signal.Stop(stopCh)
		signal.Stop(simCh)
		close(done)
	}
}

func outcomeToExitCode(outcome runtime.Outcome) int {
	switch outcome {
	case runtime.OutcomeStopped, runtime.OutcomeCanceled, runtime.OutcomeRendererGone:
		return exitSuccess
	default:
		return exitRunFailed
	}
}

func printRunResult(w io.Writer, result *runtime.Result) {
	if w == nil {
		w = os.Stdout
	}
	m := result.Metrics
	fmt.Fprintf(w, "\nrun_id=%s, transport=%s, outcome=%s, duration=%s\n",
		result.RunID,
		result.Transport,
		result.Outcome,
		result.Duration.Round(time.Millisecond),
	)
	if result.Message != "" {
		fmt.Fprintf(w, "message=%s\n", result.Message)
	}

	fmt.Fprintf(w, "\n=== Ingestion ===\n")
	fmt.Fprintf(w, "Files Seen:        %s\n", humanize.Comma(m.FilesSeen))
	fmt.Fprintf(w, "Files Removed:     %s\n", humanize.Comma(m.FilesRemoved))
	fmt.Fprintf(w, "Stale Discarded:   %s\n", humanize.Comma(m.StaleDiscarded))
	fmt.Fprintf(w, "Datagrams:         %s\n", humanize.Comma(m.Datagrams))
	fmt.Fprintf(w, "Decode Errors:     %s\n", humanize.Comma(m.DecodeErrors))

	fmt.Fprintf(w, "\n=== Routing ===\n")
	fmt.Fprintf(w, "Requests:          %s\n", humanize.Comma(m.RequestsRouted))
	fmt.Fprintf(w, "Responses:         %s\n", humanize.Comma(m.ResponsesRouted))
	fmt.Fprintf(w, "Rule Errors:       %s\n", humanize.Comma(m.RuleErrors))
	fmt.Fprintf(w, "Sessions:          %s started, %s ended\n",
		humanize.Comma(m.SessionsStarted), humanize.Comma(m.SessionsEnded))

	fmt.Fprintf(w, "\n=== Delivery ===\n")
	fmt.Fprintf(w, "Published:         %s\n", humanize.Comma(m.PublishSuccess))
	fmt.Fprintf(w, "Publish Failures:  %s\n", humanize.Comma(m.PublishFailure))
	if m.ArchiveWriteSuccess > 0 || m.ArchiveWriteFailure > 0 {
		fmt.Fprintf(w, "Archived:          %s (%s)\n",
			humanize.Comma(m.ArchiveWriteSuccess), humanize.Bytes(uint64(m.ArchiveBytes)))
		fmt.Fprintf(w, "Archive Failures:  %s\n", humanize.Comma(m.ArchiveWriteFailure))
	}
}
