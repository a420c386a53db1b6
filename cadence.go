package cadence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/cadence/internal/compiler"
	"github.com/aretw0/cadence/internal/runtime"
	loamAdapter "github.com/aretw0/cadence/pkg/adapters/loam"
	"github.com/aretw0/cadence/pkg/definition"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/experiments"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/aretw0/cadence/pkg/registry"
)

// Hardware groups the collaborators a Controller drives.
type Hardware = runtime.Hardware

// Config holds the run timing. See DefaultConfig.
type Config = runtime.Config

// DefaultConfig returns the timing used by the lab hardware.
func DefaultConfig() Config { return runtime.DefaultConfig() }

// Controller runs experiments one at a time.
type Controller struct {
	engine  *runtime.Engine
	loader  ports.DefinitionLoader
	index   ports.RunIndex
	ids     *runtime.IDGenerator
	runMu   sync.Mutex
	events  *subscribers
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	cfg     Config
	reg     *registry.Registry

	mu       sync.RWMutex
	settings domain.Settings
	status   domain.Status
}

// Option defines a functional option for configuring the Controller.
type Option func(*Controller)

// WithLoader injects a definition loader, bypassing the default sources.
func WithLoader(l ports.DefinitionLoader) Option {
	return func(c *Controller) {
		c.loader = l
	}
}

// WithRegistry replaces the experiment registry used by the default loader.
func WithRegistry(r *registry.Registry) Option {
	return func(c *Controller) {
		c.reg = r
	}
}

// WithIndex records every stored run for History.
func WithIndex(index ports.RunIndex) Option {
	return func(c *Controller) {
		c.index = index
	}
}

// WithConfig sets the run timing.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithSettings sets the initial persistence settings.
func WithSettings(s domain.Settings) Option {
	return func(c *Controller) {
		c.settings = s
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithIDGenerator replaces the experiment ID generator.
func WithIDGenerator(ids *runtime.IDGenerator) Option {
	return func(c *Controller) {
		c.ids = ids
	}
}

// New initializes a Controller.
// Unless WithLoader is given, definitions come from the registry and from the
// CUE files and documents in scriptsDir. Saving is enabled by default.
func New(scriptsDir string, hw Hardware, archive ports.ArchiveStore, locker ports.Locker, opts ...Option) (*Controller, error) {
	c := &Controller{
		events:   newSubscribers(),
		cfg:      runtime.DefaultConfig(),
		settings: domain.Settings{SaveEnabled: true},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if c.loader == nil {
		loader, err := c.defaultLoader(scriptsDir)
		if err != nil {
			return nil, err
		}
		c.loader = loader
	}

	if c.ids == nil {
		c.ids = runtime.NewIDGenerator(nil)
	}
	if c.index != nil {
		if latest, err := c.index.List(context.Background(), domain.HistoryFilter{Limit: 1}); err == nil && len(latest) > 0 {
			c.ids.Observe(latest[0].ExperimentID)
		}
	}

	c.status = domain.Status{Phase: domain.PhaseIdle, Settings: c.settings}

	engineOpts := []runtime.Option{
		runtime.WithConfig(c.cfg),
		runtime.WithLogger(c.logger),
		runtime.WithIDGenerator(c.ids),
		runtime.WithLifecycleHooks(domain.Combine(c.statusHooks(), c.hooks)),
	}
	if c.index != nil {
		engineOpts = append(engineOpts, runtime.WithIndex(c.index))
	}
	c.engine = runtime.NewEngine(c.loader, hw, archive, locker, engineOpts...)
	return c, nil
}

func (c *Controller) defaultLoader(scriptsDir string) (*definition.Loader, error) {
	reg := c.reg
	if reg == nil {
		reg = registry.NewRegistry()
		experiments.Register(reg)
	}
	opts := []definition.Option{
		definition.WithLogger(c.logger),
		definition.WithSource(reg),
		definition.WithSource(compiler.NewSource(scriptsDir, c.logger)),
	}

	catalog, err := loamAdapter.Open(scriptsDir, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open scripts directory %s: %w", scriptsDir, err)
	}
	opts = append(opts, definition.WithSource(catalog))
	return definition.NewLoader(opts...), nil
}

// statusHooks keep Status current and feed Subscribe.
func (c *Controller) statusHooks() domain.LifecycleHooks {
	update := func(e *domain.RunEvent, running bool) {
		c.mu.Lock()
		c.status.Running = running
		c.status.Phase = e.Phase
		c.status.ExperimentID = e.ExperimentID
		c.mu.Unlock()
		c.events.broadcast(*e)
	}
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) { update(e, true) },
		OnPhase:    func(_ context.Context, e *domain.RunEvent) { update(e, !e.Phase.Terminal()) },
		OnRunEnd:   func(_ context.Context, e *domain.RunEndEvent) { update(&e.RunEvent, false) },
	}
}

// Run executes one experiment. It returns ErrRunInProgress at once when another
// run is executing. Otherwise the result is always set and the error is the
// primary failure of the run.
func (c *Controller) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	if !c.runMu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer c.runMu.Unlock()

	settings := c.Settings()
	save := settings.SaveEnabled
	if req.Save != nil {
		save = *req.Save
	}
	return c.engine.Run(ctx, runtime.Request{
		Definition: req.Definition,
		Overrides:  req.Overrides,
		Save:       save,
		Batch:      settings.BatchNumber,
	})
}

// RemoteRun is the scripting entry point: it runs ref with params and sets
// saving for this call only.
func (c *Controller) RemoteRun(ctx context.Context, ref string, params map[string]any, save bool) (*domain.RunResult, error) {
	return c.Run(ctx, domain.RunRequest{Definition: ref, Overrides: params, Save: &save})
}

// RunReplica re-runs an archived run with its stored definition and parameters.
func (c *Controller) RunReplica(ctx context.Context, archivePath string) (*domain.RunResult, error) {
	if !c.runMu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer c.runMu.Unlock()

	settings := c.Settings()
	return c.engine.RunReplica(ctx, archivePath, settings.SaveEnabled, settings.BatchNumber)
}

// Plan loads ref and builds its pattern without touching hardware.
func (c *Controller) Plan(ctx context.Context, ref string, overrides map[string]any) (*domain.Definition, *domain.Pattern, error) {
	return c.engine.Plan(ctx, ref, overrides)
}

// Definitions lists the definitions available to Run.
func (c *Controller) Definitions(ctx context.Context) ([]domain.DefinitionInfo, error) {
	catalog, ok := c.loader.(ports.DefinitionCatalog)
	if !ok {
		return nil, nil
	}
	return catalog.List(ctx)
}

// History lists indexed runs, newest first.
func (c *Controller) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error) {
	if c.index == nil {
		return nil, nil
	}
	return c.index.List(ctx, filter)
}

// Subscribe streams run events until cancel is called.
func (c *Controller) Subscribe() (<-chan domain.RunEvent, func()) {
	return c.events.subscribe()
}

// SetSaveEnabled toggles archiving of later runs.
func (c *Controller) SetSaveEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.SaveEnabled = enabled
	c.status.Settings = c.settings
	c.logger.Info("save toggled", "enabled", enabled)
}

// SaveEnabled reports whether runs are archived.
func (c *Controller) SaveEnabled() bool {
	return c.Settings().SaveEnabled
}

// SetBatchNumber tags later runs with batch n.
func (c *Controller) SetBatchNumber(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.BatchNumber = n
	c.status.Settings = c.settings
	c.logger.Info("batch number set", "batch", n)
}

// BatchNumber returns the current batch number.
func (c *Controller) BatchNumber() int {
	return c.Settings().BatchNumber
}

// Settings returns the persistence settings.
func (c *Controller) Settings() domain.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() domain.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
