package eyes

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

	"golang.org/x/time/rate"

	"imagefeeder/internal/services"
	"imagefeeder/internal/sink"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	apiKeyHeader       = "X-Api-Key"
	maxErrorBody       = 4096
)

// HTTPDoer describes the HTTP client used by the sink.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config captures the settings required to reach the service.
type Config struct {
	BaseURL string
	APIKey  string
	// UploadsPerSecond limits artifact uploads. Zero disables limiting.
	UploadsPerSecond float64
	TimeoutSeconds   int
}

// Client talks to the comparison service.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	limiter *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}
	if cfg.UploadsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.UploadsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type openRequest struct {
	AppName  string `json:"app_name"`
	TestName string `json:"test_name"`
	HostOS   string `json:"host_os,omitempty"`
	HostApp  string `json:"host_app,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
}

type openResponse struct {
	ID string `json:"id"`
}

type closeResponse struct {
	Verdict string `json:"verdict"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("eyes %s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("eyes %s: http %d: %s", e.Op, e.StatusCode, body)
}

// OpenSession starts a remote session.
func (c *Client) OpenSession(ctx context.Context, info sink.SessionInfo) (sink.Handle, error) {
	payload, err := json.Marshal(openRequest{
		AppName:  info.AppName,
		TestName: info.TestName,
		HostOS:   info.HostOS,
		HostApp:  info.HostApp,
		BatchID:  info.BatchID,
	})
	if err != nil {
		return sink.Handle{}, fmt.Errorf("encode session request: %w", err)
	}
	var out openResponse
	if err := c.do(ctx, "open session", http.MethodPost, "/api/sessions", "application/json", payload, &out); err != nil {
		return sink.Handle{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return sink.Handle{}, services.Wrap(services.ErrExternalService, "eyes", "open session", "response carried no session id", nil)
	}
	return sink.Handle{ID: out.ID, Info: info}, nil
}

// Submit uploads one artifact. Payloads the service cannot decode are reported
// as sink.ErrUnrecognizedArtifact.
func (c *Client) Submit(ctx context.Context, h sink.Handle, data []byte, tag string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for upload slot: %w", err)
		}
	}
	path := fmt.Sprintf("/api/sessions/%s/artifacts?tag=%s", url.PathEscape(h.ID), url.QueryEscape(tag))
	err := c.do(ctx, "submit artifact", http.MethodPost, path, "application/octet-stream", data, nil)
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
			return fmt.Errorf("%s: %w: %s", tag, sink.ErrUnrecognizedArtifact, strings.TrimSpace(statusErr.Body))
		}
	}
	return err
}

// CloseSession finishes the session and returns the comparison verdict.
func (c *Client) CloseSession(ctx context.Context, h sink.Handle) (sink.Verdict, error) {
	var out closeResponse
	path := fmt.Sprintf("/api/sessions/%s/close", url.PathEscape(h.ID))
	if err := c.do(ctx, "close session", http.MethodPost, path, "", nil, &out); err != nil {
		return sink.VerdictUnknown, err
	}
	verdict := sink.ParseVerdict(out.Verdict)
	if verdict == sink.VerdictUnknown {
		return sink.VerdictUnknown, services.Wrap(services.ErrExternalService, "eyes", "close session",
			fmt.Sprintf("unknown verdict %q", out.Verdict), nil)
	}
	return verdict, nil
}

// AbortSession discards the session.
func (c *Client) AbortSession(ctx context.Context, h sink.Handle) error {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(h.ID))
	return c.do(ctx, "abort session", http.MethodDelete, path, "", nil, nil)
}

// Check verifies the service is reachable and accepts the API key.
func (c *Client) Check(ctx context.Context) error {
	return c.do(ctx, "health check", http.MethodGet, "/api/health", "", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		marker := services.ErrExternalService
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "eyes", op, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
		marker := services.ErrExternalService
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			marker = services.ErrConfiguration
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			marker = services.ErrTransient
		}
		return fmt.Errorf("%w: %w", marker, statusErr)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalService, "eyes", op, "decode response", err)
	}
	return nil
}
