package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/google/uuid"
)

type grabResult struct {
	images []domain.Image
	err    error
}

// run carries the state of one execution. Each armed flag records a step whose
// cleanup must run, so cleanup only undoes what was actually done.
type run struct {
	e      *Engine
	req    Request
	logger *slog.Logger

	eid, runID string
	started    time.Time
	phase      domain.Phase
	messages   []string

	def     *domain.Definition
	pattern *domain.Pattern
	gates   domain.Gates
	motion  domain.StageMotion
	frames  int

	acquired       bool
	unlock         ports.UnlockFunc
	hs             ports.HighSpeedGenerator
	cameraPrepared bool
	stageArmed     bool
	grab           chan grabResult
	grabbed        *grabResult
	cancelGrab     context.CancelFunc
	triggered      bool

	images      []domain.Image
	dataMissing bool
	archivePath string
	primary     error
}

func (e *Engine) newRun(ctx context.Context, req Request) *run {
	r := &run{
		e:       e,
		req:     req,
		eid:     e.ids.Next(),
		runID:   uuid.NewString(),
		started: e.now(),
		phase:   domain.PhaseIdle,
	}
	r.logger = e.logger.With("eid", r.eid, "run_id", r.runID)
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, r.event())
	}
	r.logf("Experiment %s started (%s)", r.eid, req.Definition)
	return r
}

func (r *run) event() *domain.RunEvent {
	name := r.req.Definition
	if r.def != nil {
		name = r.def.Name
	}
	return &domain.RunEvent{
		Timestamp:     r.e.now(),
		CorrelationID: r.runID,
		ExperimentID:  r.eid,
		Definition:    name,
		Phase:         r.phase,
	}
}

func (r *run) enter(ctx context.Context, phase domain.Phase) {
	r.phase = phase
	r.logger.DebugContext(ctx, "phase", "phase", phase)
	if r.e.hooks.OnPhase != nil {
		r.e.hooks.OnPhase(ctx, r.event())
	}
}

func (r *run) logf(format string, args ...any) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

// fail records the primary error. Later errors are logged and appended only.
func (r *run) fail(ctx context.Context, err error) {
	r.report(ctx, err)
	if r.primary == nil {
		r.primary = err
	}
}

// report logs a failure and notifies the hooks without making it primary.
func (r *run) report(ctx context.Context, err error) {
	kind := domain.KindOf(err)
	r.logger.ErrorContext(ctx, "run step failed", "phase", r.phase, "kind", kind, "error", err)
	r.logf("%v", err)
	if r.e.hooks.OnError != nil {
		r.e.hooks.OnError(ctx, &domain.ErrorEvent{RunEvent: *r.event(), Kind: kind, Err: err})
	}
}

func (r *run) execute(ctx context.Context) {
	if !r.prepare(ctx) {
		return
	}
	defer r.cleanup(ctx)

	r.enter(ctx, domain.PhaseAcquiring)
	if err := r.acquire(ctx); err != nil {
		r.fail(ctx, err)
		return
	}

	r.enter(ctx, domain.PhaseArming)
	if err := r.arm(ctx); err != nil {
		r.fail(ctx, err)
		return
	}

	r.enter(ctx, domain.PhaseTriggering)
	if err := r.trigger(ctx); err != nil {
		r.fail(ctx, err)
		return
	}
	r.triggered = true

	if !r.req.Save {
		r.logf("Saving disabled, nothing stored")
		return
	}
	if err := r.save(ctx); err != nil {
		r.fail(ctx, err)
	}
}

// prepare loads the definition and checks every precondition before hardware is touched.
func (r *run) prepare(ctx context.Context) bool {
	r.enter(ctx, domain.PhaseLoading)
	def, err := r.e.loader.Load(ctx, r.req.Definition, r.req.Overrides)
	if err != nil {
		r.fail(ctx, err)
		return false
	}
	r.def = def
	r.gates = domain.GatesOf(def.Parameters)
	r.logger.InfoContext(ctx, "definition loaded", "name", def.Name, "camera", r.gates.Camera, "stage", r.gates.Stage, "analysis", r.gates.Analysis)

	r.enter(ctx, domain.PhasePreconditionChecking)
	if r.gates.Camera {
		exists, err := r.e.hw.Imaging.CameraExists(ctx)
		if err != nil {
			r.fail(ctx, classify("camera exists", err))
			return false
		}
		if !exists {
			r.fail(ctx, domain.NewError(domain.KindConfiguration, "precondition",
				fmt.Errorf("Couldn't run, %w", domain.ErrCameraNotLoaded)))
			return false
		}
		if r.frames, err = def.Parameters.Int(domain.ParamNumberOfFrames); err != nil {
			r.fail(ctx, domain.NewError(domain.KindConfiguration, "precondition", err))
			return false
		}
	}
	if r.gates.Stage {
		if r.motion, err = domain.StageMotionOf(def.Parameters); err != nil {
			r.fail(ctx, err)
			return false
		}
	}

	if r.pattern, err = def.Build(); err != nil {
		r.fail(ctx, err)
		return false
	}
	return true
}

// acquire takes the shared high-speed generator from the hardware controller.
func (r *run) acquire(ctx context.Context) error {
	hw := r.e.hw
	r.acquired = true
	if err := hw.Releaser.Release(ctx); err != nil {
		return domain.NewError(domain.KindResourceHandoff, "release", err)
	}

	leaseCtx, cancel := context.WithTimeout(ctx, r.e.cfg.HandoffTimeout)
	defer cancel()
	unlock, err := r.e.locker.Lock(leaseCtx, LeaseKey, r.e.cfg.LeaseTTL)
	if err != nil {
		return domain.NewError(domain.KindResourceHandoff, "lease", err)
	}
	r.unlock = unlock

	hs, err := hw.HighSpeed.Open(ctx)
	if err != nil {
		return domain.NewError(domain.KindResourceHandoff, "open high-speed generator", err)
	}
	r.hs = hs
	r.logger.InfoContext(ctx, "high-speed generator acquired")
	return nil
}

// arm starts the camera acquisition, arms the stage and waits for the camera.
func (r *run) arm(ctx context.Context) error {
	hw := r.e.hw
	if r.gates.Camera {
		if err := hw.Imaging.PrepareRemoteControl(ctx); err != nil {
			return classify("prepare camera", err)
		}
		r.cameraPrepared = true

		grabCtx, cancel := context.WithCancel(ctx)
		r.cancelGrab = cancel
		r.grab = make(chan grabResult, 1)
		go func(out chan<- grabResult, frames int) {
			images, err := hw.Imaging.Grab(grabCtx, frames)
			out <- grabResult{images: images, err: err}
		}(r.grab, r.frames)
	}

	if r.gates.Stage {
		if err := r.armStage(ctx); err != nil {
			return err
		}
	}

	length, err := r.def.Parameters.Int(domain.ParamPatternLength)
	if err != nil {
		return domain.NewError(domain.KindPatternBuild, "pattern length", err)
	}
	if err := r.pattern.CheckLength(length); err != nil {
		return err
	}

	if r.gates.Camera {
		backoff := Backoff{Initial: r.e.cfg.PollInterval, Max: r.e.cfg.PollMaxInterval}
		err := Poll(ctx, backoff, r.e.cfg.AcquisitionTimeout, "camera ready", func(ctx context.Context) (bool, error) {
			// A grab that ends before the camera reports ready never will.
			select {
			case res := <-r.grab:
				r.grab = nil
				r.grabbed = &res
				if res.err != nil && !errors.Is(res.err, domain.ErrDataNotArrived) {
					return false, classify("grab images", res.err)
				}
				return true, nil
			default:
			}
			ready, err := hw.Imaging.IsReadyForAcquisition(ctx)
			if err != nil {
				return false, classify("camera ready", err)
			}
			return ready, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) armStage(ctx context.Context) error {
	stage := r.e.hw.Stage
	steps := []struct {
		op string
		fn func(context.Context) error
	}{
		{"stage connect", stage.Connect},
		{"stage initialize", func(ctx context.Context) error { return stage.Initialize(ctx, r.motion) }},
		{"stage enable", stage.Enable},
		{"stage disable autotrigger", stage.DisableAutoTrigger},
		{"stage go", stage.Go},
	}
	for i, step := range steps {
		if i > 0 {
			if err := Sleep(ctx, r.e.cfg.SettleDelay); err != nil {
				return err
			}
		}
		if err := step.fn(ctx); err != nil {
			return classify(step.op, err)
		}
		r.stageArmed = true
	}
	return nil
}

// trigger outputs the three patterns: analog first, since it waits for the
// digital trigger, then digital, then high-speed. Generators are stopped whatever happens.
func (r *run) trigger(ctx context.Context) error {
	hw := r.e.hw
	cfg := ports.GeneratorConfig{ClockHz: r.e.cfg.ClockHz, Length: r.pattern.Length}

	if err := hw.Digital.Configure(ctx, cfg); err != nil {
		return classify("configure digital", err)
	}
	if err := r.hs.Configure(ctx, cfg); err != nil {
		return errors.Join(classify("configure high-speed", err), r.stopGenerators(ctx))
	}
	if err := hw.Analog.Configure(ctx, cfg, r.pattern.Analog); err != nil {
		return errors.Join(classify("configure analog", err), r.stopGenerators(ctx))
	}

	err := func() error {
		if err := hw.Analog.OutputAndWait(ctx, r.pattern.Analog); err != nil {
			return classify("output analog", err)
		}
		if err := hw.Digital.Output(ctx, r.pattern.Digital); err != nil {
			return classify("output digital", err)
		}
		if err := r.hs.Output(ctx, r.pattern.HighSpeed); err != nil {
			return classify("output high-speed", err)
		}
		return nil
	}()
	if stopErr := r.stopGenerators(ctx); stopErr != nil {
		if err == nil {
			return stopErr
		}
		r.report(ctx, stopErr)
	}
	if err == nil {
		r.logf("Pattern of %d ticks output at %d Hz", r.pattern.Length, r.e.cfg.ClockHz)
	}
	return err
}

func (r *run) stopGenerators(ctx context.Context) error {
	var errs []error
	if err := r.e.hw.Analog.Stop(ctx); err != nil {
		errs = append(errs, classify("stop analog", err))
	}
	if err := r.e.hw.Digital.Stop(ctx); err != nil {
		errs = append(errs, classify("stop digital", err))
	}
	if err := r.hs.Stop(ctx); err != nil {
		errs = append(errs, classify("stop high-speed", err))
	}
	return errors.Join(errs...)
}

// save waits for the images, gathers the reports and stores the archive.
// Missing image data skips the save without failing the cleanup.
func (r *run) save(ctx context.Context) error {
	hw := r.e.hw
	if r.gates.Camera {
		r.enter(ctx, domain.PhaseAwaitingCompletion)
		images, err := r.awaitImages(ctx)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			r.dataMissing = true
			r.report(ctx, domain.NewError(domain.KindDataNotArrived, "save", domain.ErrDataNotArrived))
			return nil
		}
		r.images = images
	}

	r.enter(ctx, domain.PhaseReporting)
	report, err := hw.Reporter.Report(ctx)
	if err != nil {
		return classify("hardware report", err)
	}

	var attributes string
	if r.gates.Camera {
		if attributes, err = hw.Imaging.Attributes(ctx); err != nil {
			return classify("camera attributes", err)
		}
	}

	var analysis map[string]any
	if r.gates.Analysis {
		if hw.Analyzer == nil {
			r.logger.WarnContext(ctx, "analysis requested but no analyzer configured")
			r.logf("Analysis skipped: no analyzer configured")
		} else if analysis, err = hw.Analyzer.Analyze(ctx, r.eid, r.images, r.def.Parameters.Clone()); err != nil {
			return classify("analysis", err)
		}
	}

	record := &domain.RunRecord{
		ExperimentID:     r.eid,
		CorrelationID:    r.runID,
		DefinitionName:   r.def.Name,
		DefinitionSource: r.def.Source,
		SourceExt:        r.def.SourceExt,
		Parameters:       r.def.Parameters.Clone(),
		HardwareReport:   report,
		AnalysisReport:   analysis,
		CameraAttributes: attributes,
		Images:           r.images,
		BatchNumber:      r.req.Batch,
		Success:          true,
		Message:          strings.Join(r.messages, "\n"),
		StartedAt:        r.started,
		FinishedAt:       r.e.now(),
	}
	path, err := r.e.archive.StoreRun(ctx, record)
	if err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	r.archivePath = path
	r.logf("Stored %s", path)
	r.logger.InfoContext(ctx, "run stored", "path", path, "images", len(r.images))
	return nil
}

func (r *run) awaitImages(ctx context.Context) ([]domain.Image, error) {
	if r.grabbed != nil {
		return r.grabResult(*r.grabbed)
	}
	var timeout <-chan time.Time
	if d := r.e.cfg.AcquisitionTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case res := <-r.grab:
		r.grab = nil
		return r.grabResult(res)
	case <-timeout:
		return nil, domain.NewError(domain.KindTimeout, "grab images", domain.ErrTimeout)
	case <-ctx.Done():
		return nil, timeoutError("grab images", ctx.Err())
	}
}

func (r *run) grabResult(res grabResult) ([]domain.Image, error) {
	if res.err != nil {
		if errors.Is(res.err, domain.ErrDataNotArrived) {
			return nil, nil
		}
		return nil, classify("grab images", res.err)
	}
	return res.images, nil
}

// cleanup undoes every armed step. It runs on a context detached from the
// caller's cancellation so a cancelled run still hands the hardware back.
func (r *run) cleanup(ctx context.Context) {
	r.enter(ctx, domain.PhaseReleasing)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.e.cfg.CleanupTimeout)
	defer cancel()

	if r.cancelGrab != nil {
		defer r.cancelGrab()
	}

	if r.cameraPrepared {
		if err := r.e.hw.Imaging.FinishRemoteControl(cctx); err != nil {
			r.report(ctx, classify("finish camera", err))
		}
	}
	if r.stageArmed {
		r.disarmStage(ctx, cctx)
	}
	if r.hs != nil {
		if err := r.hs.Close(); err != nil {
			r.report(ctx, domain.NewError(domain.KindResourceHandoff, "close high-speed generator", err))
		}
	}
	if r.unlock != nil {
		if err := r.unlock(cctx); err != nil {
			r.report(ctx, domain.NewError(domain.KindResourceHandoff, "unlock", err))
		}
	}
	if r.acquired {
		// A failed reclaim leaves the hardware controller without its generator.
		if err := r.e.hw.Releaser.Reclaim(cctx); err != nil {
			r.fail(ctx, domain.NewError(domain.KindResourceHandoff, "reclaim", err))
		} else {
			r.logger.InfoContext(ctx, "high-speed generator handed back")
		}
	}
}

func (r *run) disarmStage(ctx, cctx context.Context) {
	stage := r.e.hw.Stage
	steps := []struct {
		op string
		fn func(context.Context) error
	}{
		{"stage enable autotrigger", stage.EnableAutoTrigger},
		{"stage return", stage.Return},
		{"stage disconnect", stage.Disconnect},
	}
	for i, step := range steps {
		if i > 0 {
			if err := Sleep(cctx, r.e.cfg.SettleDelay); err != nil {
				r.report(ctx, err)
				return
			}
		}
		if err := step.fn(cctx); err != nil {
			r.report(ctx, classify(step.op, err))
		}
	}
}

func (r *run) outcome() domain.Outcome {
	switch {
	case r.primary == nil && !r.dataMissing:
		return domain.OutcomeCompleted
	case r.triggered:
		return domain.OutcomePartial
	default:
		return domain.OutcomeAborted
	}
}

func (r *run) finish(ctx context.Context) (*domain.RunResult, error) {
	success := r.primary == nil && !r.dataMissing
	outcome := r.outcome()
	if success {
		r.enter(ctx, domain.PhaseDone)
		r.logf("Experiment %s finished", r.eid)
	} else {
		r.enter(ctx, domain.PhaseFailed)
	}

	primary := r.primary
	if primary == nil && r.dataMissing {
		primary = domain.NewError(domain.KindDataNotArrived, "save", domain.ErrDataNotArrived)
	}

	result := &domain.RunResult{
		Message:       strings.Join(r.messages, "\n"),
		ExperimentID:  r.eid,
		ArchivePath:   r.archivePath,
		Success:       success,
		Outcome:       outcome,
		Phase:         r.phase,
		ErrorKind:     domain.KindOf(primary),
		ImageCount:    len(r.images),
		CorrelationID: r.runID,
	}

	if r.archivePath != "" && r.e.index != nil {
		summary := domain.RunSummary{
			ExperimentID:  r.eid,
			CorrelationID: r.runID,
			ArchivePath:   r.archivePath,
			Definition:    r.req.Definition,
			Success:       success,
			Outcome:       outcome,
			BatchNumber:   r.req.Batch,
			ImageCount:    len(r.images),
			StartedAt:     r.started,
		}
		if err := r.e.index.Record(ctx, summary); err != nil {
			r.logger.WarnContext(ctx, "failed to index run", "error", err)
		}
	}

	duration := r.e.now().Sub(r.started)
	r.logger.InfoContext(ctx, "run finished", "success", success, "outcome", outcome, "duration", duration)
	if r.e.hooks.OnRunEnd != nil {
		r.e.hooks.OnRunEnd(ctx, &domain.RunEndEvent{
			RunEvent: *r.event(),
			Outcome:  outcome,
			Success:  success,
			Duration: duration,
		})
	}
	return result, primary
}
