package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultTimeout       = 10 * time.Second
	maxErrorBodyBytes    = 512
	contentTypeJSON      = "application/json"
	dispatcherLoggerName = "pipeline.webhooks"
)

// DeliveryError reports a failed delivery. StatusCode is zero when the
// request never produced a response.
type DeliveryError struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("webhooks: deliver to %s: %v", e.URL, e.Cause)
	}
	if e.Body != "" {
		return fmt.Sprintf("webhooks: deliver to %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("webhooks: deliver to %s: status %d", e.URL, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type DispatcherOption func(*Dispatcher)

func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithSignatureHeader(header string) DispatcherOption {
	return func(d *Dispatcher) {
		if trimmed := strings.TrimSpace(header); trimmed != "" {
			d.header = trimmed
		}
	}
}

func WithLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithThrottle holds deliveries back while a receiver is rate limiting us.
func WithThrottle(policy *ratelimit.AdaptivePolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.throttle = policy
	}
}

// Dispatcher performs one signed POST per Send. Retrying is left to the
// outgoing webhook queue.
type Dispatcher struct {
	client   *http.Client
	signer   Signer
	header   string
	timeout  time.Duration
	logger   core.Logger
	throttle *ratelimit.AdaptivePolicy
}

func NewDispatcher(signer Signer, opts ...DispatcherOption) (*Dispatcher, error) {
	if signer == nil {
		return nil, fmt.Errorf("webhooks: signer is required")
	}
	d := &Dispatcher{
		client:  &http.Client{},
		signer:  signer,
		header:  core.DefaultSignatureHeader,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.logger == nil {
		_, d.logger = glog.Resolve(dispatcherLoggerName, nil, nil)
	}
	return d, nil
}

func (d *Dispatcher) Send(ctx context.Context, url string, payload core.WebhookPayload) error {
	if d == nil || d.signer == nil {
		return fmt.Errorf("webhooks: dispatcher is not configured")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("webhooks: destination url is required")
	}
	body, err := core.CanonicalPayload(payload)
	if err != nil {
		return err
	}
	signature, err := d.signer.Sign(body)
	if err != nil {
		return err
	}
	receiver := ratelimit.KeyForURL(url)
	if err := d.throttle.BeforeCall(ctx, receiver); err != nil {
		var throttled ratelimit.ThrottledError
		if errors.As(err, &throttled) {
			d.logger.Debug("webhook receiver throttled", "url", url, "retry_after", throttled.RetryAfter)
			return core.DeferFor(throttled.ToPipelineError(), throttled.RetryAfter)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Cause: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(d.header, signature)

	started := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed",
			"url", url,
			"escrow_address", payload.EscrowAddress,
			"error", err,
		)
		return &DeliveryError{URL: url, Cause: err}
	}
	defer resp.Body.Close()
	if err := d.throttle.AfterCall(ctx, receiver, ratelimit.ResponseMeta{StatusCode: resp.StatusCode, Headers: resp.Header}); err != nil {
		d.logger.Warn("webhook throttle state not updated", "url", url, "error", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		d.logger.Warn("webhook delivery rejected",
			"url", url,
			"escrow_address", payload.EscrowAddress,
			"status", resp.StatusCode,
		)
		return &DeliveryError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Debug("webhook delivered",
		"url", url,
		"event_type", string(payload.EventType),
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)
	return nil
}

var _ core.WebhookSender = (*Dispatcher)(nil)
