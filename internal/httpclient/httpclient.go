// Package httpclient builds the resty clients used for outbound calls.
package httpclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options configure New.
type Options struct {
	// Timeout bounds a whole request including retries. Zero leaves it
	// to the request context.
	Timeout    time.Duration
	RetryCount int
	Headers    map[string]string
	Logger     *slog.Logger
}

// New returns a JSON client with retry backoff and resty's own log output
// routed through slog.
func New(opts Options) *resty.Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := resty.New().
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(slogAdapter{logger})
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	for k, v := range opts.Headers {
		c.SetHeader(k, v)
	}
	return c
}

// slogAdapter satisfies resty.Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(format string, v ...any) { a.l.Error(fmt.Sprintf(format, v...)) }
func (a slogAdapter) Warnf(format string, v ...any)  { a.l.Warn(fmt.Sprintf(format, v...)) }
func (a slogAdapter) Debugf(format string, v ...any) { a.l.Debug(fmt.Sprintf(format, v...)) }
