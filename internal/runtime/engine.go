package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// LeaseKey is the lease guarding the shared high-speed digital generator.
const LeaseKey = "hsdigital"

// Config holds the timing of a run.
type Config struct {
	ClockHz            int
	SettleDelay        time.Duration
	PollInterval       time.Duration
	PollMaxInterval    time.Duration
	AcquisitionTimeout time.Duration // zero waits until the context is done
	HandoffTimeout     time.Duration
	CleanupTimeout     time.Duration
	LeaseTTL           time.Duration
}

// DefaultConfig returns the timing used by the lab hardware.
func DefaultConfig() Config {
	return Config{
		ClockHz:         10000,
		SettleDelay:     50 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		PollMaxInterval: 250 * time.Millisecond,
		HandoffTimeout:  30 * time.Second,
		CleanupTimeout:  30 * time.Second,
		LeaseTTL:        5 * time.Minute,
	}
}

// Hardware groups the collaborators driven during a run.
// Analyzer is optional; every other field is required.
type Hardware struct {
	Imaging   ports.Imaging
	Stage     ports.Stage
	Reporter  ports.Reporter
	Releaser  ports.HardwareReleaser
	Analyzer  ports.Analyzer
	Digital   ports.DigitalGenerator
	Analog    ports.AnalogGenerator
	HighSpeed ports.HighSpeedFactory
}

// Request describes one run.
type Request struct {
	Definition string
	Overrides  map[string]any
	Save       bool
	Batch      int
}

// Engine executes runs in the fixed hardware coordination order.
// It is not safe to run two requests at once; callers serialize runs.
type Engine struct {
	loader  ports.DefinitionLoader
	hw      Hardware
	archive ports.ArchiveStore
	locker  ports.Locker
	index   ports.RunIndex

	cfg    Config
	ids    *IDGenerator
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the timing configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithIndex records every stored run in index.
func WithIndex(index ports.RunIndex) Option {
	return func(e *Engine) {
		e.index = index
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDGenerator replaces the experiment ID generator.
func WithIDGenerator(ids *IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine.
func NewEngine(loader ports.DefinitionLoader, hw Hardware, archive ports.ArchiveStore, locker ports.Locker, opts ...Option) *Engine {
	e := &Engine{
		loader:  loader,
		hw:      hw,
		archive: archive,
		locker:  locker,
		cfg:     DefaultConfig(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = NewIDGenerator(e.now)
	}
	return e
}

// Plan loads a definition and builds its pattern without touching hardware.
func (e *Engine) Plan(ctx context.Context, ref string, overrides map[string]any) (*domain.Definition, *domain.Pattern, error) {
	def, err := e.loader.Load(ctx, ref, overrides)
	if err != nil {
		return nil, nil, err
	}
	pattern, err := def.Build()
	if err != nil {
		return def, nil, err
	}
	return def, pattern, nil
}

// RunReplica re-runs an archived run with its persisted definition and parameters.
func (e *Engine) RunReplica(ctx context.Context, archivePath string, save bool, batch int) (*domain.RunResult, error) {
	bundle, err := e.archive.LoadForReplay(ctx, archivePath)
	if err != nil {
		return e.rejected(ctx, archivePath, domain.NewError(domain.KindDefinitionLoad, "replay", err)), err
	}
	defer func() {
		if err := e.archive.Dispose(bundle); err != nil {
			e.logger.WarnContext(ctx, "failed to remove replay work dir", "dir", bundle.WorkDir, "error", err)
		}
	}()

	params, err := e.archive.ReadParameters(bundle.ParametersPath)
	if err != nil {
		err = domain.NewError(domain.KindDefinitionLoad, "replay parameters", err)
		return e.rejected(ctx, archivePath, err), err
	}

	e.logger.InfoContext(ctx, "replaying run", "archive", archivePath, "source_eid", bundle.ExperimentID)
	return e.Run(ctx, Request{
		Definition: bundle.DefinitionPath,
		Overrides:  params,
		Save:       save,
		Batch:      batch,
	})
}

// rejected reports a replay that failed before a run could start.
func (e *Engine) rejected(ctx context.Context, archivePath string, err error) *domain.RunResult {
	e.logger.ErrorContext(ctx, "replay rejected", "archive", archivePath, "error", err)
	return &domain.RunResult{
		Message:   fmt.Sprintf("Couldn't replay %s: %v", archivePath, err),
		Success:   false,
		Outcome:   domain.OutcomeAborted,
		Phase:     domain.PhaseFailed,
		ErrorKind: domain.KindOf(err),
	}
}

// Run executes one run and always returns a result.
// The error is the primary failure of the run, nil on success.
func (e *Engine) Run(ctx context.Context, req Request) (*domain.RunResult, error) {
	r := e.newRun(ctx, req)
	r.execute(ctx)
	return r.finish(ctx)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// classify attributes an unclassified collaborator error to the transport,
// or to the timeout kind when it stems from the context.
func classify(op string, err error) error {
	if err == nil || domain.KindOf(err) != "" {
		return err
	}
	if isContextErr(err) {
		return timeoutError(op, err)
	}
	return domain.NewError(domain.KindTransport, op, err)
}
