// Package webhook delivers renderer payloads as JSON POSTs.
//
// A renderer that answers 410 Gone has shut down, which ends the run.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/juicer/adapter"
	"github.com/pithecene-io/juicer/iox"
)

// Delivery defaults.
const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 2
)

// Config configures the webhook publisher.
type Config struct {
	// URL is the renderer's payload endpoint.
	URL string
	// Headers are set on every POST, e.g. an overlay auth token.
	Headers map[string]string
	// Timeout bounds one POST. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is how many times a 5xx or transport failure is retried.
	Retries int
}

// Publisher posts payloads to a renderer over HTTP.
type Publisher struct {
	config Config
	client *http.Client
}

// New validates cfg and builds a publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook publisher requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish POSTs one payload. A 4xx is returned at once; 410 Gone maps to
// adapter.ErrRendererGone. Anything else is retried with adapter.WaitRetry.
func (p *Publisher) Publish(ctx context.Context, payload *adapter.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s payload: %w", payload.Kind, err)
	}

	var lastErr error
	tries := p.config.Retries + 1
	for i := range tries {
		if i > 0 {
			if err := adapter.WaitRetry(ctx, i); err != nil {
				return fmt.Errorf("webhook: %s payload abandoned: %w", payload.Kind, err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: %s payload abandoned: %w", payload.Kind, err)
		}

		lastErr = p.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if !errors.As(lastErr, &se) {
			continue
		}
		switch {
		case se.Code == http.StatusGone:
			return fmt.Errorf("webhook: %w", adapter.ErrRendererGone)
		case se.Code >= 400 && se.Code < 500:
			return fmt.Errorf("webhook: renderer rejected %s payload: %w", payload.Kind, lastErr)
		}
	}
	return fmt.Errorf("webhook: %s payload undelivered after %d tries: %w", payload.Kind, tries, lastErr)
}

// StatusError is a non-2xx answer from the renderer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("renderer answered %d", e.Code)
}

func (p *Publisher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections to the renderer.
func (p *Publisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ adapter.Publisher = (*Publisher)(nil)
