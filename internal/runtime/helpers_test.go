package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/adapters/memory"
	"github.com/aretw0/cadence/pkg/definition"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/dsl"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/aretw0/cadence/pkg/registry"
)

const probeRef = "registry:probe"

// probe is a short experiment touching every track.
func probe() domain.Experiment {
	defaults := domain.ParameterSet{
		domain.ParamPatternLength:  100,
		domain.ParamNeedsCamera:    false,
		domain.ParamNeedsStage:     false,
		domain.ParamNumberOfFrames: 2,
		domain.ParamTSAcceleration: 1.0,
		domain.ParamTSDeceleration: 1.0,
		domain.ParamTSDistance:     2.0,
		domain.ParamTSVelocity:     0.5,
		"pulseAt":                  10,
	}
	return dsl.NewExperiment(defaults, func(p domain.ParameterSet) (*domain.SequenceSpec, error) {
		at, err := p.Int("pulseAt")
		if err != nil {
			return nil, err
		}
		b := dsl.NewSequence().TriggerAnalogFrom("analogTrigger")
		b.Digital("analogTrigger").Pulse(0, 1)
		b.Digital("shutter").Pulse(at, 5)
		b.HighSpeed("cameraTrigger").Pulse(at+10, 2)
		b.Analog("coils").Set(0, 2.5).Set(at+20, 0)
		return b.Build()
	})
}

func testLoader() *definition.Loader {
	reg := registry.NewRegistry()
	reg.Register("probe", "test probe", probe)
	return definition.NewLoader(definition.WithSource(reg))
}

func testConfig() runtime.Config {
	cfg := runtime.DefaultConfig()
	cfg.SettleDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.HandoffTimeout = time.Second
	cfg.CleanupTimeout = 2 * time.Second
	cfg.AcquisitionTimeout = 2 * time.Second
	return cfg
}

// recordingArchive keeps stored records in memory.
type recordingArchive struct {
	mu      sync.Mutex
	records []*domain.RunRecord
	err     error
}

func (a *recordingArchive) StoreRun(ctx context.Context, record *domain.RunRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.records = append(a.records, record)
	return fmt.Sprintf("/archive/%s.zip", record.ExperimentID), nil
}

func (a *recordingArchive) LoadForReplay(ctx context.Context, path string) (*ports.ReplayBundle, error) {
	return nil, domain.ErrNotFound
}

func (a *recordingArchive) ReadParameters(path string) (domain.ParameterSet, error) {
	return nil, domain.ErrNotFound
}

func (a *recordingArchive) Dispose(*ports.ReplayBundle) error { return nil }

func (a *recordingArchive) stored() []*domain.RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*domain.RunRecord(nil), a.records...)
}

type fixture struct {
	rig     *memory.Rig
	archive *recordingArchive
	locker  *memory.Locker
	index   *memory.Index
	engine  *runtime.Engine
}

func newFixture(t *testing.T, rigOpts []memory.RigOption, opts ...runtime.Option) *fixture {
	t.Helper()
	f := &fixture{
		archive: &recordingArchive{},
		locker:  memory.NewLocker(),
		index:   memory.NewIndex(),
	}
	f.rig = memory.NewRig(rigOpts...)
	opts = append([]runtime.Option{runtime.WithConfig(testConfig()), runtime.WithIndex(f.index)}, opts...)
	f.engine = runtime.NewEngine(testLoader(), f.rig.Hardware(), f.archive, f.locker, opts...)
	return f
}

func (f *fixture) run(t *testing.T, overrides map[string]any) (*domain.RunResult, error) {
	t.Helper()
	return f.engine.Run(context.Background(), runtime.Request{
		Definition: probeRef,
		Overrides:  overrides,
		Save:       true,
	})
}

// indexOf returns the journal position of op, or -1.
func indexOf(calls []string, op string) int {
	for i, c := range calls {
		if c == op {
			return i
		}
	}
	return -1
}
