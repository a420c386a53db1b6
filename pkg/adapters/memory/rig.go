package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/imaging"
	"github.com/aretw0/cadence/pkg/ports"
)

// Rig is simulated lab hardware: camera, translation stage, pattern
// generators, status reporter and the hardware controller that owns the
// high-speed generator between runs.
//
// Every call is journaled by name ("stage.connect", "hsdigital.output", ...)
// and any call can be made to fail with Fail.
type Rig struct {
	mu       sync.Mutex
	calls    []string
	faults   map[string]error
	outputs  map[domain.TrackKind]int
	report   map[string]any
	noCamera bool

	camera   *imaging.Controller
	sim      *imaging.Simulated
	locker   ports.Locker
	leaseTTL time.Duration
	unlock   ports.UnlockFunc
	analyzer ports.Analyzer
	trigger  func(context.Context) error
}

// RigOption configures a Rig.
type RigOption func(*Rig)

// WithoutCamera simulates an imaging service with no camera loaded.
func WithoutCamera() RigOption {
	return func(r *Rig) {
		r.noCamera = true
	}
}

// WithLeaseHolder makes the simulated hardware controller hold the
// high-speed lease on locker whenever it owns the generator.
func WithLeaseHolder(locker ports.Locker, ttl time.Duration) RigOption {
	return func(r *Rig) {
		r.locker = locker
		r.leaseTTL = ttl
	}
}

// WithReport sets the hardware status report.
func WithReport(report map[string]any) RigOption {
	return func(r *Rig) {
		r.report = report
	}
}

// WithAnalyzer sets the analyzer handed out by Hardware.
func WithAnalyzer(a ports.Analyzer) RigOption {
	return func(r *Rig) {
		r.analyzer = a
	}
}

// WithTriggerLine routes the camera trigger carried by the high-speed
// pattern to fire instead of the rig's own camera.
func WithTriggerLine(fire func(context.Context) error) RigOption {
	return func(r *Rig) {
		r.trigger = fire
	}
}

// NewRig creates simulated hardware with a 64x48 camera.
func NewRig(opts ...RigOption) *Rig {
	sim := imaging.NewSimulated(64, 48)
	r := &Rig{
		faults:  make(map[string]error),
		outputs: make(map[domain.TrackKind]int),
		report: map[string]any{
			"oven_temperature_c":   312.5,
			"source_pressure_mbar": 2.1e-7,
			"coil_current_a":       2.5,
		},
		sim:    sim,
		camera: imaging.NewController(sim, imaging.WithAttributes("exposure_ms=10\ngain=1\nbinning=1\n")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hold takes the lease on behalf of the hardware controller.
func (r *Rig) Hold(ctx context.Context) error {
	if r.locker == nil {
		return nil
	}
	unlock, err := r.locker.Lock(ctx, runtime.LeaseKey, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("hardware controller failed to take the lease: %w", err)
	}
	r.mu.Lock()
	r.unlock = unlock
	r.mu.Unlock()
	return nil
}

// Fail makes every later call to op return err. A nil err clears the fault.
func (r *Rig) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.faults, op)
		return
	}
	r.faults[op] = err
}

// DropFrames makes the camera finish acquisitions without data.
func (r *Rig) DropFrames(drop bool) {
	r.sim.DropFrames(drop)
}

// Trigger pulses the external trigger input of the camera.
// It is a no-op unless the camera is under remote control.
func (r *Rig) Trigger() {
	if r.camera.Remote() {
		r.sim.Fire()
	}
}

// Camera exposes the camera state machine.
func (r *Rig) Camera() *imaging.Controller {
	return r.camera
}

// Calls returns the journal in call order.
func (r *Rig) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns how often op was called.
func (r *Rig) Count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// OutputLength returns the length of the last pattern output on track.
func (r *Rig) OutputLength(track domain.TrackKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[track]
}

// Reset clears the journal.
func (r *Rig) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.outputs = make(map[domain.TrackKind]int)
}

func (r *Rig) call(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls = append(r.calls, op)
	err := r.faults[op]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Hardware returns the rig wired as run collaborators.
func (r *Rig) Hardware() runtime.Hardware {
	return runtime.Hardware{
		Imaging:   &rigImaging{r},
		Stage:     &rigStage{r},
		Reporter:  &rigReporter{r},
		Releaser:  &rigReleaser{r},
		Analyzer:  r.analyzer,
		Digital:   &rigDigital{rig: r, track: domain.TrackDigital},
		Analog:    &rigAnalog{r},
		HighSpeed: &rigHighSpeed{r},
	}
}

// Imaging returns the journaled camera client.
func (r *Rig) Imaging() ports.Imaging { return &rigImaging{r} }

// Stage returns the simulated translation stage.
func (r *Rig) Stage() ports.Stage { return &rigStage{r} }

// Reporter returns the simulated status reporter.
func (r *Rig) Reporter() ports.Reporter { return &rigReporter{r} }

// Releaser returns the simulated hardware controller.
func (r *Rig) Releaser() ports.HardwareReleaser { return &rigReleaser{r} }

type rigImaging struct{ r *Rig }

func (i *rigImaging) CameraExists(ctx context.Context) (bool, error) {
	if err := i.r.call(ctx, "camera.exists"); err != nil {
		return false, err
	}
	if i.r.noCamera {
		return false, nil
	}
	return i.r.camera.CameraExists(ctx)
}

func (i *rigImaging) PrepareRemoteControl(ctx context.Context) error {
	if err := i.r.call(ctx, "camera.prepare"); err != nil {
		return err
	}
	return i.r.camera.PrepareRemoteControl(ctx)
}

func (i *rigImaging) Grab(ctx context.Context, frames int) ([]domain.Image, error) {
	if err := i.r.call(ctx, "camera.grab"); err != nil {
		return nil, err
	}
	return i.r.camera.Grab(ctx, frames)
}

func (i *rigImaging) IsReadyForAcquisition(ctx context.Context) (bool, error) {
	if err := i.r.call(ctx, "camera.ready"); err != nil {
		return false, err
	}
	return i.r.camera.IsReadyForAcquisition(ctx)
}

func (i *rigImaging) FinishRemoteControl(ctx context.Context) error {
	if err := i.r.call(ctx, "camera.finish"); err != nil {
		return err
	}
	return i.r.camera.FinishRemoteControl(ctx)
}

func (i *rigImaging) Attributes(ctx context.Context) (string, error) {
	if err := i.r.call(ctx, "camera.attributes"); err != nil {
		return "", err
	}
	return i.r.camera.Attributes(ctx)
}

type rigStage struct{ r *Rig }

func (s *rigStage) Connect(ctx context.Context) error { return s.r.call(ctx, "stage.connect") }

func (s *rigStage) Initialize(ctx context.Context, m domain.StageMotion) error {
	return s.r.call(ctx, "stage.initialize")
}

func (s *rigStage) Enable(ctx context.Context) error { return s.r.call(ctx, "stage.enable") }

func (s *rigStage) DisableAutoTrigger(ctx context.Context) error {
	return s.r.call(ctx, "stage.autotrigger_disable")
}

func (s *rigStage) Go(ctx context.Context) error { return s.r.call(ctx, "stage.go") }

func (s *rigStage) EnableAutoTrigger(ctx context.Context) error {
	return s.r.call(ctx, "stage.autotrigger_enable")
}

func (s *rigStage) Return(ctx context.Context) error { return s.r.call(ctx, "stage.return") }

func (s *rigStage) Disconnect(ctx context.Context) error { return s.r.call(ctx, "stage.disconnect") }

type rigReporter struct{ r *Rig }

func (p *rigReporter) Report(ctx context.Context) (map[string]any, error) {
	if err := p.r.call(ctx, "report"); err != nil {
		return nil, err
	}
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	out := make(map[string]any, len(p.r.report))
	for k, v := range p.r.report {
		out[k] = v
	}
	return out, nil
}

// rigReleaser gives up the lease on Release and takes it back on Reclaim.
type rigReleaser struct{ r *Rig }

func (h *rigReleaser) Release(ctx context.Context) error {
	if err := h.r.call(ctx, "hardware.release"); err != nil {
		return err
	}
	h.r.mu.Lock()
	unlock := h.r.unlock
	h.r.unlock = nil
	h.r.mu.Unlock()
	if unlock == nil {
		return nil
	}
	return unlock(ctx)
}

func (h *rigReleaser) Reclaim(ctx context.Context) error {
	if err := h.r.call(ctx, "hardware.reclaim"); err != nil {
		return err
	}
	return h.r.Hold(ctx)
}

type rigDigital struct {
	rig   *Rig
	track domain.TrackKind
}

func (g *rigDigital) Configure(ctx context.Context, cfg ports.GeneratorConfig) error {
	return g.rig.call(ctx, string(g.track)+".configure")
}

func (g *rigDigital) Output(ctx context.Context, p domain.DigitalPattern) error {
	if err := g.rig.call(ctx, string(g.track)+".output"); err != nil {
		return err
	}
	g.rig.mu.Lock()
	g.rig.outputs[g.track] = p.Len()
	g.rig.mu.Unlock()

	// The high-speed pattern carries the camera trigger.
	if g.track != domain.TrackHighSpeed {
		return nil
	}
	if g.rig.trigger != nil {
		return g.rig.trigger(ctx)
	}
	g.rig.Trigger()
	return nil
}

func (g *rigDigital) Stop(ctx context.Context) error {
	return g.rig.call(ctx, string(g.track)+".stop")
}

func (g *rigDigital) Close() error {
	return g.rig.call(context.Background(), string(g.track)+".close")
}

type rigAnalog struct{ r *Rig }

func (a *rigAnalog) Configure(ctx context.Context, cfg ports.GeneratorConfig, p domain.AnalogPattern) error {
	return a.r.call(ctx, "analog.configure")
}

func (a *rigAnalog) OutputAndWait(ctx context.Context, p domain.AnalogPattern) error {
	if err := a.r.call(ctx, "analog.output"); err != nil {
		return err
	}
	a.r.mu.Lock()
	a.r.outputs[domain.TrackAnalog] = p.Len()
	a.r.mu.Unlock()
	return nil
}

func (a *rigAnalog) Stop(ctx context.Context) error { return a.r.call(ctx, "analog.stop") }

type rigHighSpeed struct{ r *Rig }

func (f *rigHighSpeed) Open(ctx context.Context) (ports.HighSpeedGenerator, error) {
	if err := f.r.call(ctx, "hsdigital.open"); err != nil {
		return nil, err
	}
	return &rigDigital{rig: f.r, track: domain.TrackHighSpeed}, nil
}
