// Package transport implements the HTTP client that talks to the external
// workflow engine and classifies its failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmarceau/agentrunner/pkg/agenterrors"
	"github.com/dmarceau/agentrunner/pkg/logging"
)

// DefaultTimeout bounds a single engine round trip
const DefaultTimeout = 30 * time.Second

// proxyPrefix is the same-origin forwarding path prefix
const proxyPrefix = "/proxy/webhook/"

// Config contains settings for the transport client
type Config struct {
	// EngineBaseURL is the external engine's base URL
	EngineBaseURL string

	// ForwardBase is the base URL of the same-origin forwarding proxy
	ForwardBase string

	// UseProxy routes triggers through the forwarding proxy
	UseProxy bool

	// Timeout bounds a single round trip
	Timeout time.Duration
}

// Client sends requests to the external workflow engine
type Client struct {
	config     Config
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a transport client
func NewClient(config Config, logger logging.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Trigger POSTs a JSON payload to the webhook resolved from webhookURL
func (c *Client) Trigger(ctx context.Context, webhookURL string, payload map[string]interface{}) (*EngineResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	target := c.ResolveURL(webhookURL)
	c.logger.Debug("triggering webhook", logging.F("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "trigger")
}

// FetchStatus GETs a job's status from an absolute or engine-relative
// poll URL
func (c *Client) FetchStatus(ctx context.Context, pollURL string) (*EngineResponse, error) {
	target := c.resolvePollURL(pollURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	return c.do(req, "status fetch")
}

// CheckAvailability HEADs the engine base URL. A 2xx or 404 answer means
// the engine is up; the path may still be wrong, but something answered.
func (c *Client) CheckAvailability(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.config.EngineBaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotFound
}

// Forward relays an arbitrary request to {engine}/webhook/{path}. Used by
// the forwarding proxy handler; the response body is the caller's to close.
func (c *Client) Forward(ctx context.Context, method string, path string, body io.Reader, header http.Header) (*http.Response, error) {
	target := strings.TrimSuffix(c.config.EngineBaseURL, "/") + "/webhook/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	CopyEndToEndHeaders(req.Header, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError("proxy request", err)
	}
	return resp, nil
}

// ResolveURL maps a webhook URL onto the concrete dispatch URL.
// Forwarding paths pass through unchanged; everything else is reduced to
// its bare path and prefixed for either the proxy or the engine.
func (c *Client) ResolveURL(webhookURL string) string {
	if strings.HasPrefix(webhookURL, proxyPrefix) {
		return strings.TrimSuffix(c.config.ForwardBase, "/") + webhookURL
	}

	path := bareWebhookPath(webhookURL)
	if c.config.UseProxy {
		return strings.TrimSuffix(c.config.ForwardBase, "/") + proxyPrefix + path
	}
	return strings.TrimSuffix(c.config.EngineBaseURL, "/") + "/webhook/" + path
}

// resolvePollURL makes a poll URL absolute
func (c *Client) resolvePollURL(pollURL string) string {
	if strings.HasPrefix(pollURL, "http://") || strings.HasPrefix(pollURL, "https://") {
		return pollURL
	}
	return strings.TrimSuffix(c.config.EngineBaseURL, "/") + "/" + strings.TrimLeft(pollURL, "/")
}

// do executes a request and classifies the answer
func (c *Client) do(req *http.Request, op string) (*EngineResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeNetwork, op+" response read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		classified := classifyStatus(resp.StatusCode, body)
		c.logger.Warn("engine request failed",
			logging.F("op", op),
			logging.F("status", resp.StatusCode),
			logging.F("code", string(classified.Code)),
		)
		return nil, classified
	}

	return newEngineResponse(resp, body), nil
}

// classifyTransportError maps a failure with no HTTP response into the
// taxonomy
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return agenterrors.Wrap(agenterrors.CodeExecutionTimeout, op+" aborted", err)
	}
	return agenterrors.Wrap(agenterrors.CodeNetwork, op+" failed", err)
}

// classifyStatus maps a non-2xx engine answer into the taxonomy
func classifyStatus(status int, body []byte) *agenterrors.Error {
	switch {
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return agenterrors.NewWithStatus(agenterrors.CodeNetwork, "service temporarily unavailable", status)
	case status == http.StatusNotFound:
		return agenterrors.NewWithStatus(agenterrors.CodeWebhook, "webhook not found or not activated", status)
	default:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		classified := agenterrors.NewWithStatus(agenterrors.CodeWebhook, fmt.Sprintf("engine returned %d: %s", status, msg), status)
		classified.Details = string(body)
		return classified
	}
}

// bareWebhookPath reduces a webhook URL to the path segment after
// /webhook/, dropping any scheme, host, and leading slashes
func bareWebhookPath(webhookURL string) string {
	path := webhookURL
	if u, err := url.Parse(webhookURL); err == nil && u.Scheme != "" {
		path = u.Path
	}
	if idx := strings.Index(path, "/webhook/"); idx >= 0 {
		path = path[idx+len("/webhook/"):]
	}
	return strings.TrimLeft(path, "/")
}

// hopByHopHeaders are stripped when forwarding requests
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// CopyEndToEndHeaders copies headers from src to dst, skipping
// hop-by-hop headers. The proxy uses it on both legs.
func CopyEndToEndHeaders(dst http.Header, src http.Header) {
	for name, values := range src {
		if hopByHopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
