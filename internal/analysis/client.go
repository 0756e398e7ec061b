package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/schoolscreen/internal/config"
	"github.com/roach88/schoolscreen/internal/httpclient"
)

// Timeouts bound each proxy action.
type Timeouts struct {
	Text  time.Duration
	Image time.Duration
	OCR   time.Duration
	Audio time.Duration
}

// DefaultTimeouts are the per-action deadlines used when none are given.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Text:  30 * time.Second,
		Image: 45 * time.Second,
		OCR:   20 * time.Second,
		Audio: 30 * time.Second,
	}
}

func (t Timeouts) forAction(a Action) time.Duration {
	switch a {
	case ActionAnalyzeImage:
		return t.Image
	case ActionOCR:
		return t.OCR
	case ActionAnalyzeAudio:
		return t.Audio
	default:
		return t.Text
	}
}

// proxyRequest is the proxy's request body.
type proxyRequest struct {
	Action             Action `json:"action"`
	Prompt             string `json:"prompt"`
	Base64ImageData    string `json:"base64ImageData,omitempty"`
	MIMEType           string `json:"mimeType,omitempty"`
	SimulatedInputType string `json:"simulatedInputType,omitempty"`
}

// proxyResponse is either {result} or {error, details}.
type proxyResponse struct {
	Result  string `json:"result"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Client is the HTTP Analyzer backed by the AI proxy.
type Client struct {
	url      string
	http     *resty.Client
	timeouts Timeouts
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeouts overrides the per-action deadlines. Zero fields keep their
// defaults.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *Client) {
		if t.Text > 0 {
			c.timeouts.Text = t.Text
		}
		if t.Image > 0 {
			c.timeouts.Image = t.Image
		}
		if t.OCR > 0 {
			c.timeouts.OCR = t.OCR
		}
		if t.Audio > 0 {
			c.timeouts.Audio = t.Audio
		}
	}
}

// WithHTTPClient replaces the resty client.
func WithHTTPClient(h *resty.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client posting to the proxy at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{url: url, timeouts: DefaultTimeouts(), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(httpclient.Options{Logger: c.logger})
	}
	return c
}

// NewClientFromConfig builds a client from the analysis config section.
func NewClientFromConfig(cfg config.Analysis, logger *slog.Logger) *Client {
	return NewClient(cfg.URL,
		WithClientLogger(logger),
		WithTimeouts(Timeouts{
			Text:  cfg.TextTimeout,
			Image: cfg.ImageTimeout,
			OCR:   cfg.OCRTimeout,
			Audio: cfg.AudioTimeout,
		}),
		WithHTTPClient(httpclient.New(httpclient.Options{
			RetryCount: cfg.RetryCount,
			Logger:     logger,
		})),
	)
}

var _ Analyzer = (*Client)(nil)

func (c *Client) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	return c.call(ctx, proxyRequest{Action: ActionGenerateText, Prompt: prompt})
}

func (c *Client) AnalyzeImage(ctx context.Context, img Image, prompt string) (string, error) {
	return c.call(ctx, imageRequest(ActionAnalyzeImage, img, prompt))
}

func (c *Client) ExtractText(ctx context.Context, img Image, prompt string) (string, error) {
	return c.call(ctx, imageRequest(ActionOCR, img, prompt))
}

// AnalyzeSimulatedAudio sends no audio. The proxy answers the prompt for
// the named simulated input.
func (c *Client) AnalyzeSimulatedAudio(ctx context.Context, inputType, prompt string) (string, error) {
	return c.call(ctx, proxyRequest{Action: ActionAnalyzeAudio, Prompt: prompt, SimulatedInputType: inputType})
}

func imageRequest(a Action, img Image, prompt string) proxyRequest {
	mime := img.MIMEType
	if mime == "" {
		mime = DefaultMIMEType
	}
	return proxyRequest{Action: a, Prompt: prompt, Base64ImageData: img.Data, MIMEType: mime}
}

func (c *Client) call(ctx context.Context, req proxyRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.forAction(req.Action))
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.url)
	if err != nil {
		c.logger.Warn("analysis request failed", "action", req.Action, "error", err)
		return "", &RemoteError{Action: req.Action, Err: err}
	}

	var body proxyResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if resp.IsError() {
		msg := body.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		c.logger.Warn("analysis proxy returned error",
			"action", req.Action,
			"status", resp.StatusCode(),
			"error", msg,
		)
		return "", &RemoteError{Action: req.Action, Status: resp.StatusCode(), Message: msg, Details: body.Details}
	}
	if decodeErr != nil {
		return "", &RemoteError{Action: req.Action, Status: resp.StatusCode(), Message: "malformed proxy response", Err: decodeErr}
	}
	if body.Error != "" {
		return "", &RemoteError{Action: req.Action, Status: resp.StatusCode(), Message: body.Error, Details: body.Details}
	}
	if body.Result == "" {
		return "", &RemoteError{Action: req.Action, Status: resp.StatusCode(), Message: "no result text"}
	}

	c.logger.Debug("analysis complete",
		"action", req.Action,
		"duration", time.Since(start),
		"chars", len(body.Result),
	)
	return body.Result, nil
}
