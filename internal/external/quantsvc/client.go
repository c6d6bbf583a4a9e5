package quantsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/httputil"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 1 << 20

// ErrRemoteStatus the remote engine answered with a non-2xx status
var ErrRemoteStatus = errors.New("remote engine returned non-success status")

// Client handles communication with the remote quantitative engine
// ⭐ SSOT: POST /optimize is only called from here
type Client struct {
	httpClient *httputil.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
	baseURL    string
}

var _ contracts.Allocator = (*Client)(nil)

// NewClient creates a remote engine client.
// httpClient should have retry disabled: a failed tier falls through instead.
func NewClient(baseURL string, requestsPerSecond float64, httpClient *httputil.Client, log *logger.Logger) *Client {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:     log.Component("quant-client"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the configured engine address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Optimize posts {capital, risk_tolerance, market_data} and decodes the plan
func (c *Client) Optimize(ctx context.Context, req contracts.OptimizationRequest) (*contracts.AllocationPlan, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/optimize", req)
	if err != nil {
		return nil, fmt.Errorf("remote optimize request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d %s", ErrRemoteStatus, resp.StatusCode, snippet(body))
	}

	plan, err := contracts.DecodePlan(body)
	if err != nil {
		return nil, fmt.Errorf("remote engine response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"line_items":       plan.Count(),
		"projected_return": plan.TotalProjectedReturn,
	}).Debug("Remote plan received")

	return plan, nil
}

// Status calls GET / and returns the reported status line
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/")
	if err != nil {
		return "", fmt.Errorf("remote status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d %s", ErrRemoteStatus, resp.StatusCode, snippet(body))
	}

	return strings.TrimSpace(string(body)), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
