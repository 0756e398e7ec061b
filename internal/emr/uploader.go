package emr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/roach88/schoolscreen/internal/config"
	"github.com/roach88/schoolscreen/internal/httpclient"
	"github.com/roach88/schoolscreen/internal/record"
)

// Auth types.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "apikey"
)

// Uploader sends one record to the EMR and returns the EMR's ID for it,
// which may be empty.
type Uploader interface {
	Upload(ctx context.Context, rec record.Record) (emrID string, err error)
}

// UploadError is a rejected or failed upload.
type UploadError struct {
	SubjectID string
	Status    int
	Err       error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("emr upload %s: status %d %s", e.SubjectID, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("emr upload %s: %v", e.SubjectID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrNoEndpoint is returned when no EMR endpoint is configured.
var ErrNoEndpoint = errors.New("emr endpoint not configured")

// Client is the HTTP Uploader.
type Client struct {
	endpoint string
	format   Format
	http     *resty.Client
	now      func() time.Time
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock sets the time source for export timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient builds an uploader from the emr config section.
func NewClient(cfg config.EMR, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	c := &Client{endpoint: cfg.Endpoint, format: format, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	switch cfg.AuthType {
	case "", AuthNone:
	case AuthBearer:
		if cfg.APIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.APIKey
		}
	case AuthAPIKey:
		if cfg.APIKey != "" {
			headers["X-API-Key"] = cfg.APIKey
		}
	default:
		return nil, fmt.Errorf("unknown emr auth type %q", cfg.AuthType)
	}
	c.http = httpclient.New(httpclient.Options{Timeout: cfg.Timeout, Headers: headers, Logger: c.logger})
	return c, nil
}

var _ Uploader = (*Client)(nil)

// Upload renders rec in the configured format and posts it.
func (c *Client) Upload(ctx context.Context, rec record.Record) (string, error) {
	now := c.now()
	doc, err := BuildDocument(rec, now)
	if err != nil {
		return "", err
	}
	body, err := Render(doc, c.format, now)
	if err != nil {
		return "", err
	}

	req := c.http.R().SetContext(ctx)
	if c.format == FormatHL7 {
		req.SetHeader("Content-Type", HL7ContentType).SetBody(body.(string))
	} else {
		req.SetBody(body)
	}
	resp, err := req.Post(c.endpoint)
	if err != nil {
		return "", &UploadError{SubjectID: rec.SubjectID, Err: err}
	}
	if resp.IsError() {
		return "", &UploadError{SubjectID: rec.SubjectID, Status: resp.StatusCode()}
	}

	id := responseID(resp.Body())
	c.logger.Info("uploaded screening to emr",
		"subject_id", rec.SubjectID,
		"format", c.format,
		"emr_id", id,
	)
	return id, nil
}

// responseID picks the EMR's identifier from id, recordId or patientId.
func responseID(body []byte) string {
	var r struct {
		ID        json.RawMessage `json:"id"`
		RecordID  json.RawMessage `json:"recordId"`
		PatientID json.RawMessage `json:"patientId"`
	}
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{r.ID, r.RecordID, r.PatientID} {
		if id := scalar(raw); id != "" {
			return id
		}
	}
	return ""
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// TestConnection posts a test body and reports whether the EMR accepted it.
func (c *Client) TestConnection(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"test": true, "timestamp": c.now().UTC()}).
		Post(c.endpoint)
	if err != nil {
		return &UploadError{SubjectID: "connection test", Err: err}
	}
	if resp.IsError() {
		return &UploadError{SubjectID: "connection test", Status: resp.StatusCode()}
	}
	return nil
}
