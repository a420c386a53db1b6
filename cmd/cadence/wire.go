package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/adapters/file"
	cadencehttp "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/adapters/process"
	"github.com/aretw0/cadence/pkg/adapters/redis"
	"github.com/aretw0/cadence/pkg/adapters/sqlite"
	"github.com/aretw0/cadence/pkg/analysis"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const redisPrefix = "cadence:"

// stack holds everything a command opened, so it can be closed in one call.
type stack struct {
	redis   *backend.Client
	index   ports.RunIndex
	locker  ports.Locker
	closers []io.Closer
}

func (s *stack) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openLocker connects the lease locker: redis when configured, so the
// orchestrator and the hardware controller share it, process local otherwise.
func openLocker() *stack {
	s := &stack{}
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		s.closers = append(s.closers, s.redis)
		s.locker = redis.NewLocker(s.redis, redisPrefix)
	} else {
		s.locker = memory.NewLocker()
	}
	return s
}

// openStack connects the run index and the lease locker.
func openStack() (*stack, error) {
	s := openLocker()

	switch cfg.Index.Driver {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		index, err := sqlite.Open(cfg.Index.DSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.index = index
		s.closers = append(s.closers, index)
	case "redis":
		s.index = redis.NewIndex(s.redis, redis.WithPrefix(redisPrefix))
	default:
		s.index = memory.NewIndex()
	}
	return s, nil
}

// newAnalyzer picks the analysis backend: a configured external tool, the
// in-process statistics when simulating, or the analysis service.
func newAnalyzer() (ports.Analyzer, error) {
	switch {
	case cfg.AnalysisTool != "":
		tools, err := process.LoadTools(cfg.ToolsFile)
		if err != nil {
			return nil, err
		}
		return process.NewAnalyzer(tools, cfg.AnalysisTool, process.WithLogger(logger))
	case cfg.Simulate:
		return analysis.NewStats(), nil
	case cfg.AnalyzerURL != "":
		return cadencehttp.NewAnalyzerClient(cfg.AnalyzerURL, cadencehttp.WithClientLogger(logger)), nil
	default:
		return nil, nil
	}
}

// newHardware returns the collaborators of a run. With --simulate every
// device is an in-process rig; otherwise the camera, stage, reporter and
// high-speed handoff go to the hardware controller and the local pattern
// generators fire its camera trigger.
func newHardware(ctx context.Context, st *stack) (runtime.Hardware, error) {
	analyzer, err := newAnalyzer()
	if err != nil {
		return runtime.Hardware{}, err
	}

	if cfg.Simulate {
		opts := []memory.RigOption{memory.WithLeaseHolder(st.locker, cfg.LeaseTTL)}
		if analyzer != nil {
			opts = append(opts, memory.WithAnalyzer(analyzer))
		}
		rig := memory.NewRig(opts...)
		if err := rig.Hold(ctx); err != nil {
			return runtime.Hardware{}, fmt.Errorf("failed to hold the high-speed lease: %w", err)
		}
		return rig.Hardware(), nil
	}

	if st.redis == nil {
		logger.Warn("no redis configured: the high-speed lease is process local and the handoff is not guarded")
	}
	client := cadencehttp.NewHardwareClient(cfg.HardwareURL, cadencehttp.WithClientLogger(logger))
	hw := memory.NewRig(memory.WithTriggerLine(client.Trigger)).Hardware()
	hw.Imaging = client
	hw.Stage = client
	hw.Reporter = client
	hw.Releaser = client
	hw.Analyzer = analyzer
	return hw, nil
}

// newController wires a Controller over the configured stack.
func newController(ctx context.Context, st *stack, opts ...cadence.Option) (*cadence.Controller, error) {
	hw, err := newHardware(ctx, st)
	if err != nil {
		return nil, err
	}
	archive := file.NewArchive(cfg.DataDir, file.WithWorkDir(cfg.WorkDir), file.WithLogger(logger))

	base := []cadence.Option{
		cadence.WithIndex(st.index),
		cadence.WithConfig(cfg.Runtime()),
		cadence.WithSettings(domain.Settings{SaveEnabled: cfg.Save, BatchNumber: cfg.Batch}),
		cadence.WithLogger(logger),
	}
	return cadence.New(cfg.ScriptsDir, hw, archive, st.locker, append(base, opts...)...)
}

// setup opens the stack and the controller; the returned func closes both.
func setup(ctx context.Context, opts ...cadence.Option) (*cadence.Controller, func(), error) {
	st, err := openStack()
	if err != nil {
		return nil, nil, err
	}
	ctrl, err := newController(ctx, st, opts...)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return ctrl, func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close resources", "err", err)
		}
	}, nil
}
