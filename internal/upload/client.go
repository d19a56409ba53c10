// Package upload hosts normalized images on a remote service.
package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/shared/logging"
)

const (
	DefaultEndpoint = "https://api.imgbb.com/1/upload"
	DefaultTimeout  = 30 * time.Second

	maxResponseBytes = 1 << 20
	maxSnippetBytes  = 512
)

// Uploader hosts an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, img imaging.NormalizedImage) (string, error)
}

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client posts base64 form-encoded images to an imgbb-compatible endpoint.
type Client struct {
	endpoint *url.URL
	apiKey   string
	http     *http.Client
	log      *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Its Timeout is overwritten by Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse upload endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("upload endpoint %q: unsupported scheme", cfg.Endpoint)
	}

	c := &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.http
	hc.Timeout = cfg.Timeout
	c.http = &hc
	c.log = logging.OrDefault(c.log)
	return c, nil
}

type hostResponse struct {
	Success *bool           `json:"success"`
	Data    *hostData       `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type hostData struct {
	URL string `json:"url"`
}

func (c *Client) Upload(ctx context.Context, img imaging.NormalizedImage) (string, error) {
	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(img.Data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", networkError("send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippetBytes))
		c.log.Warn("upload http error", "status", resp.StatusCode, "elapsed", time.Since(start))
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", networkError("read", err)
	}

	hosted, err := parseHostResponse(body)
	if err != nil {
		c.log.Warn("upload failed", "error", err, "elapsed", time.Since(start))
		return "", err
	}
	c.log.Info("upload succeeded", "url", hosted, "bytes", len(img.Data), "elapsed", time.Since(start))
	return hosted, nil
}

func (c *Client) requestURL() string {
	u := *c.endpoint
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func parseHostResponse(body []byte) (string, error) {
	var parsed hostResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &MalformedResponseError{Reason: "invalid json", Body: snippet(body), Err: err}
	}
	if parsed.Success == nil {
		return "", &MalformedResponseError{Reason: "missing success field", Body: snippet(body)}
	}
	if !*parsed.Success {
		return "", &APIError{Message: apiMessage(parsed.Error), Raw: parsed.Error}
	}
	if parsed.Data == nil || parsed.Data.URL == "" {
		return "", &MalformedResponseError{Reason: "missing data.url", Body: snippet(body)}
	}
	return parsed.Data.URL, nil
}

// apiMessage pulls a readable message out of the free-form error field.
func apiMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "upload failed"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil && text != "" {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func networkError(op string, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	return &NetworkError{Op: op, Timeout: timeout, Err: err}
}

func snippet(body []byte) string {
	if len(body) > maxSnippetBytes {
		return string(body[:maxSnippetBytes])
	}
	return string(body)
}
