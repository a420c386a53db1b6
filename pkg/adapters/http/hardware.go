package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/imaging"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// HardwareService is the hardware controller published by NewHardwareHandler.
// Camera and Trigger are optional; without them the local camera endpoints
// answer 404.
type HardwareService struct {
	Imaging  ports.Imaging
	Stage    ports.Stage
	Reporter ports.Reporter
	Releaser ports.HardwareReleaser

	// Camera serves local snapshots and streaming.
	Camera *imaging.Controller
	// Trigger pulses the camera's external trigger input.
	Trigger func()
}

// Wire types of the hardware controller API.
type (
	CameraInfo struct {
		Exists bool   `json:"exists"`
		State  string `json:"state,omitempty"`
		Remote bool   `json:"remote"`
	}
	FramesRequest struct {
		Frames int `json:"frames"`
	}
	ImagesResponse struct {
		Images []domain.Image `json:"images"`
	}
	ReadyResponse struct {
		Ready bool `json:"ready"`
	}
	AttributesBody struct {
		Attributes string `json:"attributes"`
	}
	FrameResponse struct {
		Image  *domain.Image `json:"image,omitempty"`
		Frames int           `json:"frames"`
	}
)

type hardwareServer struct {
	svc    HardwareService
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	latest *domain.Image
	frames int
}

// HardwareOption configures the hardware server.
type HardwareOption func(*hardwareServer)

// WithHardwareLogger sets the request logger.
func WithHardwareLogger(logger *slog.Logger) HardwareOption {
	return func(s *hardwareServer) {
		s.logger = logger
	}
}

// NewHardwareHandler creates the HTTP handler for the hardware controller.
func NewHardwareHandler(svc HardwareService, opts ...HardwareOption) http.Handler {
	s := &hardwareServer{
		svc:    svc,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/camera", s.getCamera)
		r.Post("/camera/remote", s.prepareRemote)
		r.Delete("/camera/remote", s.finishRemote)
		r.Post("/camera/grab", s.grab)
		r.Get("/camera/ready", s.ready)
		r.Get("/camera/attributes", s.getAttributes)
		r.Put("/camera/attributes", s.putAttributes)
		r.Post("/camera/trigger", s.trigger)
		r.Post("/camera/snapshot", s.snapshot)
		r.Post("/camera/stream/start", s.startStream)
		r.Post("/camera/stream/stop", s.stopStream)
		r.Get("/camera/stream/frame", s.latestFrame)

		r.Post("/stage/initialize", s.initializeStage)
		r.Post("/stage/{op}", s.stageOp)

		r.Get("/report", s.report)
		r.Post("/hardware/release", s.release)
		r.Post("/hardware/reclaim", s.reclaim)
	})
	return r
}

func (s *hardwareServer) getCamera(w http.ResponseWriter, r *http.Request) {
	exists, err := s.svc.Imaging.CameraExists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	info := CameraInfo{Exists: exists}
	if s.svc.Camera != nil {
		info.State = s.svc.Camera.State().String()
		info.Remote = s.svc.Camera.Remote()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *hardwareServer) prepareRemote(w http.ResponseWriter, r *http.Request) {
	s.endStream()
	if err := s.svc.Imaging.PrepareRemoteControl(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) finishRemote(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Imaging.FinishRemoteControl(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// grab answers with an empty image list when the acquisition ended without data.
func (s *hardwareServer) grab(w http.ResponseWriter, r *http.Request) {
	var body FramesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Frames <= 0 {
		writeError(w, fmt.Errorf("%w: frames must be positive", errBadRequest))
		return
	}
	images, err := s.svc.Imaging.Grab(r.Context(), body.Frames)
	if err != nil && !errors.Is(err, domain.ErrDataNotArrived) {
		writeError(w, err)
		return
	}
	if images == nil {
		images = []domain.Image{}
	}
	writeJSON(w, http.StatusOK, ImagesResponse{Images: images})
}

func (s *hardwareServer) ready(w http.ResponseWriter, r *http.Request) {
	ready, err := s.svc.Imaging.IsReadyForAcquisition(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Ready: ready})
}

func (s *hardwareServer) getAttributes(w http.ResponseWriter, r *http.Request) {
	text, err := s.svc.Imaging.Attributes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AttributesBody{Attributes: text})
}

func (s *hardwareServer) putAttributes(w http.ResponseWriter, r *http.Request) {
	if s.svc.Camera == nil {
		writeError(w, fmt.Errorf("local camera: %w", domain.ErrNotFound))
		return
	}
	var body AttributesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	if err := s.svc.Camera.SetAttributes(body.Attributes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) trigger(w http.ResponseWriter, r *http.Request) {
	if s.svc.Trigger == nil {
		writeError(w, fmt.Errorf("trigger line: %w", domain.ErrNotFound))
		return
	}
	s.svc.Trigger()
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) snapshot(w http.ResponseWriter, r *http.Request) {
	if s.svc.Camera == nil {
		writeError(w, fmt.Errorf("local camera: %w", domain.ErrNotFound))
		return
	}
	body := FramesRequest{Frames: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
			return
		}
	}
	var images []domain.Image
	var err error
	if body.Frames <= 1 {
		var img domain.Image
		if img, err = s.svc.Camera.SingleSnapshot(r.Context()); err == nil {
			images = []domain.Image{img}
		}
	} else {
		images, err = s.svc.Camera.MultipleSnapshot(r.Context(), body.Frames)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImagesResponse{Images: images})
}

func (s *hardwareServer) startStream(w http.ResponseWriter, r *http.Request) {
	if s.svc.Camera == nil {
		writeError(w, fmt.Errorf("local camera: %w", domain.ErrNotFound))
		return
	}
	// The stream outlives the request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	err := s.svc.Camera.Stream(ctx, func(img domain.Image) {
		s.mu.Lock()
		s.latest = &img
		s.frames++
		s.mu.Unlock()
	})
	if err != nil {
		cancel()
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.cancel = cancel
	s.frames = 0
	s.mu.Unlock()
	s.logger.InfoContext(r.Context(), "camera streaming")
	w.WriteHeader(http.StatusAccepted)
}

func (s *hardwareServer) stopStream(w http.ResponseWriter, r *http.Request) {
	if s.svc.Camera == nil {
		writeError(w, fmt.Errorf("local camera: %w", domain.ErrNotFound))
		return
	}
	if err := s.svc.Camera.StopStream(); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.endStream()
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) endStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *hardwareServer) latestFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := FrameResponse{Image: s.latest, Frames: s.frames}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *hardwareServer) initializeStage(w http.ResponseWriter, r *http.Request) {
	var motion domain.StageMotion
	if err := json.NewDecoder(r.Body).Decode(&motion); err != nil {
		writeError(w, fmt.Errorf("%w: invalid stage motion: %v", errBadRequest, err))
		return
	}
	if err := s.svc.Stage.Initialize(r.Context(), motion); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) stageOp(w http.ResponseWriter, r *http.Request) {
	ops := map[string]func(context.Context) error{
		"connect":         s.svc.Stage.Connect,
		"enable":          s.svc.Stage.Enable,
		"autotrigger-off": s.svc.Stage.DisableAutoTrigger,
		"go":              s.svc.Stage.Go,
		"autotrigger-on":  s.svc.Stage.EnableAutoTrigger,
		"return":          s.svc.Stage.Return,
		"disconnect":      s.svc.Stage.Disconnect,
	}
	op := chi.URLParam(r, "op")
	fn, ok := ops[op]
	if !ok {
		writeError(w, fmt.Errorf("stage operation %q: %w", op, domain.ErrNotFound))
		return
	}
	if err := fn(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) report(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Reporter.Report(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *hardwareServer) release(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Releaser.Release(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "release failed", "error", err)
		writeError(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "high-speed generator released")
	w.WriteHeader(http.StatusNoContent)
}

func (s *hardwareServer) reclaim(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Releaser.Reclaim(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "reclaim failed", "error", err)
		writeError(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "high-speed generator reclaimed")
	w.WriteHeader(http.StatusNoContent)
}
