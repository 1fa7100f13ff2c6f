// Package enhance talks to the super-resolution backend: the /enhance and
// /super-resolve calls and the /health probe.
package enhance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the request ceiling for enhancement calls. CPU-bound
// inference on large images can take minutes.
const DefaultTimeout = 5 * time.Minute

// DefaultMaxResponseBytes caps a response body when no other limit is set.
const DefaultMaxResponseBytes = 64 << 20

// maxErrorBodyBytes caps how much of a non-2xx body is read for its message.
const maxErrorBodyBytes = 64 << 10

// Result is the outcome of a successful enhancement call.
type Result struct {
	// Image holds the decoded output image bytes.
	Image []byte
	// Scale echoes the scale the backend applied.
	Scale int
	// ElapsedSeconds is the processing time: reported by the backend for
	// /enhance, measured round trip for /super-resolve.
	ElapsedSeconds float64
	// RoundTrip is the measured request duration.
	RoundTrip time.Duration
}

// Client calls the backend.
//
// Thread-Safety: Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	maxResponse int64
}

// NewClient creates a client for the backend at baseURL. A nil httpClient
// gets one with DefaultTimeout; a nil logger discards output.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("enhance-client"),
		now:        time.Now,

		maxResponse: DefaultMaxResponseBytes,
	}
}

// WithMaxResponseBytes sets the largest response body the client accepts.
// n <= 0 keeps the current limit.
func (c *Client) WithMaxResponseBytes(n int64) *Client {
	if n > 0 {
		c.maxResponse = n
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type enhanceResponse struct {
	OutputImage string  `json:"output_image"`
	Scale       int     `json:"scale"`
	Time        float64 `json:"time"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Enhance sends the image to POST /enhance?outscale={scale} as multipart
// field "image" and decodes the base64 output.
func (c *Client) Enhance(ctx context.Context, u Upload, scale int) (*Result, error) {
	if err := ValidateScale(scale); err != nil {
		return nil, err
	}
	if len(u.Data) == 0 {
		return nil, ErrEmptyImage
	}

	log := c.logger.With(
		zap.String("endpoint", "/enhance"),
		zap.Int("scale", scale),
		zap.Int("image_size_bytes", len(u.Data)),
	)
	log.Info("sending enhancement request")

	endpoint := c.baseURL + "/enhance?outscale=" + strconv.Itoa(scale)
	start := c.now()
	body, err := c.postImage(ctx, endpoint, "image", u)
	roundTrip := c.now().Sub(start)
	if err != nil {
		log.Warn("enhancement request failed", zap.Error(err), zap.Duration("round_trip", roundTrip))
		return nil, err
	}

	var resp enhanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &RequestError{Message: "Invalid response from server", Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.OutputImage == "" {
		return nil, &RequestError{Message: "Server returned no image"}
	}
	img, err := base64.StdEncoding.DecodeString(resp.OutputImage)
	if err != nil {
		return nil, &RequestError{Message: "Invalid image data from server", Err: err}
	}
	if resp.Scale == 0 {
		resp.Scale = scale
	}

	log.Info("enhancement completed",
		zap.Int("output_size_bytes", len(img)),
		zap.Float64("backend_seconds", resp.Time),
		zap.Duration("round_trip", roundTrip))

	return &Result{
		Image:          img,
		Scale:          resp.Scale,
		ElapsedSeconds: resp.Time,
		RoundTrip:      roundTrip,
	}, nil
}

// SuperResolve sends the image to POST /super-resolve as multipart field
// "file". The response body is the raw output image.
func (c *Client) SuperResolve(ctx context.Context, u Upload) (*Result, error) {
	if len(u.Data) == 0 {
		return nil, ErrEmptyImage
	}

	log := c.logger.With(
		zap.String("endpoint", "/super-resolve"),
		zap.Int("image_size_bytes", len(u.Data)),
	)
	log.Info("sending super-resolve request")

	start := c.now()
	body, err := c.postImage(ctx, c.baseURL+"/super-resolve", "file", u)
	roundTrip := c.now().Sub(start)
	if err != nil {
		log.Warn("super-resolve request failed", zap.Error(err), zap.Duration("round_trip", roundTrip))
		return nil, err
	}
	if len(body) == 0 {
		return nil, &RequestError{Message: "Server returned no image"}
	}

	log.Info("super-resolve completed",
		zap.Int("output_size_bytes", len(body)),
		zap.Duration("round_trip", roundTrip))

	return &Result{
		Image:          body,
		ElapsedSeconds: roundTrip.Seconds(),
		RoundTrip:      roundTrip,
	}, nil
}

// Health probes GET /health. The backend is healthy iff it answers with
// status "ok".
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("enhance: failed to create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("enhance: health probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("enhance: health probe: status %d", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&h); err != nil {
		return false, fmt.Errorf("enhance: health probe: decode: %w", err)
	}
	return h.Status == "ok", nil
}

// postImage uploads u as a single multipart field and returns the body of
// a 2xx response.
func (c *Client) postImage(ctx context.Context, endpoint, field string, u Upload) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := u.Name
	if name == "" {
		name = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	ct := u.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("enhance: create form part: %w", err)
	}
	if _, err := part.Write(u.Data); err != nil {
		return nil, fmt.Errorf("enhance: write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("enhance: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("enhance: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return nil, transportError(err)
		}
		return nil, serverError(resp.StatusCode, errorText(body))
	}

	if resp.ContentLength > c.maxResponse {
		return nil, tooLargeError(resp.StatusCode, c.maxResponse)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return nil, transportError(err)
	}
	if int64(len(body)) > c.maxResponse {
		return nil, tooLargeError(resp.StatusCode, c.maxResponse)
	}
	return body, nil
}

func tooLargeError(status int, limit int64) *RequestError {
	return &RequestError{
		Status:  status,
		Message: "Response too large",
		Err:     fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, limit),
	}
}

// errorText extracts a message from an error body: FastAPI's {"detail"}
// when present, otherwise the trimmed text.
func errorText(body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var detail struct {
			Detail any `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil {
			if s, ok := detail.Detail.(string); ok && s != "" {
				return s
			}
		}
	}
	if len(text) > 500 {
		text = text[:500]
	}
	return text
}

func transportError(err error) *RequestError {
	switch {
	case errors.Is(err, context.Canceled):
		return &RequestError{Message: "Request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &RequestError{Message: "Request timed out", Err: err}
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return &RequestError{Message: "Request timed out", Err: err}
	}
	return &RequestError{Message: "Network error: backend unreachable", Err: err}
}

// IsCanceled reports whether err came from a cancelled request context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
