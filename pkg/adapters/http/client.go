package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// DefaultCallTimeout bounds every remote call except Grab and Analyze.
const DefaultCallTimeout = 10 * time.Second

// RemoteError is a non-2xx answer of a collaborator.
// It unwraps to the domain sentinel the server reported, if any.
type RemoteError struct {
	Status   int
	Message  string
	sentinel error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.sentinel
}

// sentinels travel by status code plus message.
var sentinels = []error{
	domain.ErrCameraNotLoaded,
	domain.ErrDataNotArrived,
	domain.ErrRunInProgress,
	domain.ErrCameraBusy,
	domain.ErrCameraTerminated,
	domain.ErrTimeout,
	domain.ErrNotFound,
	domain.ErrLeaseNotHeld,
}

func decodeError(resp *http.Response) *RemoteError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	re := &RemoteError{Status: resp.StatusCode, Message: msg}
	for _, s := range sentinels {
		if strings.Contains(msg, s.Error()) {
			re.sentinel = s
			break
		}
	}
	return re
}

type client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ClientOption configures a remote client.
type ClientOption func(*client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *client) {
		cl.http = c
	}
}

// WithCallTimeout bounds every short call. Zero disables the bound.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(cl *client) {
		cl.timeout = d
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cl *client) {
		cl.logger = logger
	}
}

func newClient(baseURL string, opts []ClientOption) client {
	c := client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultCallTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// do sends in as JSON and decodes the answer into out.
// Unbounded calls rely on ctx alone.
func (c *client) do(ctx context.Context, op, method, path string, in, out any, bounded bool) error {
	if bounded && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return domain.NewError(domain.KindTransport, op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NewError(domain.KindTimeout, op, ctxErr)
		}
		return domain.NewError(domain.KindTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := decodeError(resp)
		c.logger.DebugContext(ctx, "remote call failed", "op", op, "status", re.Status, "error", re.Message)
		switch {
		case errors.Is(re, domain.ErrTimeout):
			return domain.NewError(domain.KindTimeout, op, re)
		case re.sentinel != nil:
			return re
		default:
			return domain.NewError(domain.KindTransport, op, re)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewError(domain.KindTransport, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// HardwareClient talks to the hardware controller service.
// It implements ports.Imaging, ports.Stage, ports.Reporter and ports.HardwareReleaser.
type HardwareClient struct {
	client
}

var (
	_ ports.Imaging          = (*HardwareClient)(nil)
	_ ports.Stage            = (*HardwareClient)(nil)
	_ ports.Reporter         = (*HardwareClient)(nil)
	_ ports.HardwareReleaser = (*HardwareClient)(nil)
)

// NewHardwareClient creates a client for the service at baseURL.
func NewHardwareClient(baseURL string, opts ...ClientOption) *HardwareClient {
	return &HardwareClient{client: newClient(baseURL, opts)}
}

func (c *HardwareClient) CameraExists(ctx context.Context) (bool, error) {
	var info CameraInfo
	if err := c.do(ctx, "camera exists", http.MethodGet, "/v1/camera", nil, &info, true); err != nil {
		return false, err
	}
	return info.Exists, nil
}

func (c *HardwareClient) PrepareRemoteControl(ctx context.Context) error {
	return c.do(ctx, "prepare camera", http.MethodPost, "/v1/camera/remote", nil, nil, true)
}

// Grab blocks until the service answers; only ctx bounds it.
func (c *HardwareClient) Grab(ctx context.Context, frames int) ([]domain.Image, error) {
	var resp ImagesResponse
	if err := c.do(ctx, "grab images", http.MethodPost, "/v1/camera/grab", FramesRequest{Frames: frames}, &resp, false); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

func (c *HardwareClient) IsReadyForAcquisition(ctx context.Context) (bool, error) {
	var resp ReadyResponse
	if err := c.do(ctx, "camera ready", http.MethodGet, "/v1/camera/ready", nil, &resp, true); err != nil {
		return false, err
	}
	return resp.Ready, nil
}

func (c *HardwareClient) FinishRemoteControl(ctx context.Context) error {
	return c.do(ctx, "finish camera", http.MethodDelete, "/v1/camera/remote", nil, nil, true)
}

func (c *HardwareClient) Attributes(ctx context.Context) (string, error) {
	var resp AttributesBody
	if err := c.do(ctx, "camera attributes", http.MethodGet, "/v1/camera/attributes", nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Attributes, nil
}

// Trigger pulses the camera's external trigger input.
func (c *HardwareClient) Trigger(ctx context.Context) error {
	return c.do(ctx, "trigger camera", http.MethodPost, "/v1/camera/trigger", nil, nil, true)
}

// Snapshot takes frames with the local camera of the service.
func (c *HardwareClient) Snapshot(ctx context.Context, frames int) ([]domain.Image, error) {
	var resp ImagesResponse
	if err := c.do(ctx, "snapshot", http.MethodPost, "/v1/camera/snapshot", FramesRequest{Frames: frames}, &resp, false); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

func (c *HardwareClient) stage(ctx context.Context, op string) error {
	return c.do(ctx, "stage "+op, http.MethodPost, "/v1/stage/"+op, nil, nil, true)
}

func (c *HardwareClient) Connect(ctx context.Context) error { return c.stage(ctx, "connect") }

func (c *HardwareClient) Initialize(ctx context.Context, motion domain.StageMotion) error {
	return c.do(ctx, "stage initialize", http.MethodPost, "/v1/stage/initialize", motion, nil, true)
}

func (c *HardwareClient) Enable(ctx context.Context) error { return c.stage(ctx, "enable") }

func (c *HardwareClient) DisableAutoTrigger(ctx context.Context) error {
	return c.stage(ctx, "autotrigger-off")
}

func (c *HardwareClient) Go(ctx context.Context) error { return c.stage(ctx, "go") }

func (c *HardwareClient) EnableAutoTrigger(ctx context.Context) error {
	return c.stage(ctx, "autotrigger-on")
}

func (c *HardwareClient) Return(ctx context.Context) error { return c.stage(ctx, "return") }

func (c *HardwareClient) Disconnect(ctx context.Context) error { return c.stage(ctx, "disconnect") }

func (c *HardwareClient) Report(ctx context.Context) (map[string]any, error) {
	var report map[string]any
	if err := c.do(ctx, "hardware report", http.MethodGet, "/v1/report", nil, &report, true); err != nil {
		return nil, err
	}
	return report, nil
}

// Release returns once the service acknowledged.
func (c *HardwareClient) Release(ctx context.Context) error {
	return c.do(ctx, "release", http.MethodPost, "/v1/hardware/release", nil, nil, true)
}

func (c *HardwareClient) Reclaim(ctx context.Context) error {
	return c.do(ctx, "reclaim", http.MethodPost, "/v1/hardware/reclaim", nil, nil, true)
}
