package validation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"srdash/core"
)

// ConnectivityResult is the outcome of a backend probe.
type ConnectivityResult struct {
	Reachable  bool
	Healthy    bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker probes the enhancement backend's /health endpoint.
type ConnectivityChecker struct {
	client *http.Client
}

// NewConnectivityChecker probes with client. A nil client gets a 10 s
// timeout.
func NewConnectivityChecker(client *http.Client) *ConnectivityChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ConnectivityChecker{client: client}
}

// CheckBackend calls GET {baseURL}/health. Any response means reachable;
// only a 2xx means healthy.
func (c *ConnectivityChecker) CheckBackend(ctx context.Context, baseURL string) ConnectivityResult {
	if err := ValidateBaseURL(baseURL); err != nil {
		return ConnectivityResult{
			Message: "Invalid URL format",
			Error:   core.ErrInvalidAPIURL(baseURL, err.Error()),
		}
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConnectivityResult{
			Message: "Failed to create request",
			Error:   core.ErrBackendUnreachable(baseURL, err.Error()),
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		msg := "Connection failed"
		if ctx.Err() != nil {
			msg = "Request cancelled or timed out"
		}
		return ConnectivityResult{
			Message: msg,
			Latency: latency,
			Error:   core.ErrBackendUnreachable(baseURL, err.Error()),
		}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result := ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Healthy = true
		result.Message = fmt.Sprintf("Backend healthy (latency: %v)", latency.Round(time.Millisecond))
	} else {
		result.Message = fmt.Sprintf("Backend answered %d", resp.StatusCode)
		result.Error = core.ErrBackendUnreachable(baseURL, fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}
	return result
}
