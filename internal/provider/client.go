// Package provider implements the rate-limited HTTP client for the external
// market-data API: one call per unit of work, with outcome classification,
// exponential backoff on transient errors, cooldown on rate limits, and a
// dead-letter sink for unrecovered failures.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/util"
)

// Class is the outcome class of one fetch. Errors propagate as values, not
// panics: the scheduler inspects the class to decide whether to continue,
// skip, or cancel the whole task.
type Class int

const (
	// ClassSuccess carries the response payload.
	ClassSuccess Class = iota
	// ClassRetryable means the transient-error retry budget was exhausted;
	// the unit is dead-lettered.
	ClassRetryable
	// ClassRateLimited means the 429 cooldown budget was exhausted; the
	// unit is dead-lettered.
	ClassRateLimited
	// ClassFatal is an auth/authorization failure (401/403). The scheduler
	// must stop dispatching units and the orchestrator aborts the run.
	ClassFatal
	// ClassPermanent is a non-retryable per-unit failure (400 or an
	// unexpected status); the unit is dead-lettered and the run continues.
	ClassPermanent
	// ClassCanceled means the surrounding context was cancelled; the unit
	// is not dead-lettered.
	ClassCanceled
)

// String returns the class name used in logs and run metadata.
func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	case ClassPermanent:
		return "permanent"
	case ClassCanceled:
		return "canceled"
	}
	return "unknown"
}

// Outcome is the result of one fetch for one unit of work. It is never
// mutated after creation.
type Outcome struct {
	Unit    domain.Unit
	Class   Class
	Status  int    // last HTTP status seen; 0 for pure transport errors
	Body    []byte // payload, ClassSuccess only
	Err     error
	Retries int // transient retries consumed (429 waits excluded)
	Elapsed time.Duration
}

// Options configures a Client. Zero fields get defaults in NewClient.
type Options struct {
	BaseURL           string
	APIKey            string
	Endpoints         map[domain.Domain]string
	Timeout           time.Duration // per-request, default 30s
	MaxRetries        int           // transient retries per unit, default 3
	BackoffBase       time.Duration // default 1s, doubling per retry
	BackoffJitter     time.Duration // default 500ms
	RateLimitCooldown time.Duration // wait after a 429, default 10s
	RateLimitBudget   time.Duration // total 429 waiting per unit, default 5m
	Limiter           *util.RateLimiter
	HTTPClient        *http.Client
}

// Client fetches one unit of work per call against the provider API. It is
// safe for concurrent use by scheduler workers.
type Client struct {
	opts       Options
	httpc      *http.Client
	deadLetter *DeadLetter
	log        *slog.Logger
}

// NewClient builds a Client. deadLetter receives unrecovered per-unit
// failures and must not be nil.
func NewClient(opts Options, deadLetter *DeadLetter, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffJitter < 0 {
		opts.BackoffJitter = 0
	} else if opts.BackoffJitter == 0 {
		opts.BackoffJitter = 500 * time.Millisecond
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = 10 * time.Second
	}
	if opts.RateLimitBudget <= 0 {
		opts.RateLimitBudget = 5 * time.Minute
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:       opts,
		httpc:      httpc,
		deadLetter: deadLetter,
		log:        logger.With("component", "provider"),
	}
}

// Fetch performs the retry state machine for one unit of work:
//
//   - 2xx: return the payload.
//   - 500/502/503/504 or transport error: exponential backoff (base
//     doubling, plus jitter) up to MaxRetries, then dead-letter.
//   - 429: wait RateLimitCooldown and retry without consuming the retry
//     budget, bounded by RateLimitBudget and the context.
//   - 401/403: dead-letter, log at error level, return ClassFatal.
//   - 400 and anything else: dead-letter, return ClassPermanent.
func (c *Client) Fetch(ctx context.Context, unit domain.Unit) Outcome {
	start := time.Now()
	out := Outcome{Unit: unit}

	reqURL, err := c.buildURL(unit)
	if err != nil {
		out.Class = ClassPermanent
		out.Err = err
		out.Elapsed = time.Since(start)
		c.deadLetter.Append(unit, 0, err.Error())
		return out
	}

	delay := c.opts.BackoffBase
	var rateLimitWaited time.Duration

	for {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return c.canceled(out, start, err)
		}

		status, body, err := c.do(ctx, reqURL)
		out.Status = status

		switch {
		case err != nil && ctx.Err() != nil:
			return c.canceled(out, start, ctx.Err())

		case err != nil:
			// Transport error or timeout: transient.
			if out.Retries >= c.opts.MaxRetries {
				msg := fmt.Sprintf("transport error after %d retries: %v", out.Retries, err)
				c.deadLetter.Append(unit, 0, msg)
				out.Class = ClassRetryable
				out.Err = fmt.Errorf("%s", msg)
				out.Elapsed = time.Since(start)
				return out
			}
			if !c.backoff(ctx, unit, &delay, &out.Retries, fmt.Sprintf("transport error: %v", err)) {
				return c.canceled(out, start, ctx.Err())
			}

		case status >= 200 && status < 300:
			out.Class = ClassSuccess
			out.Body = body
			out.Elapsed = time.Since(start)
			return out

		case status == 500 || status == 502 || status == 503 || status == 504:
			if out.Retries >= c.opts.MaxRetries {
				msg := fmt.Sprintf("transient error %d after %d retries", status, out.Retries)
				c.deadLetter.Append(unit, status, msg)
				out.Class = ClassRetryable
				out.Err = fmt.Errorf("%s", msg)
				out.Elapsed = time.Since(start)
				return out
			}
			if !c.backoff(ctx, unit, &delay, &out.Retries, fmt.Sprintf("status %d", status)) {
				return c.canceled(out, start, ctx.Err())
			}

		case status == http.StatusTooManyRequests:
			// Does not consume the transient retry budget; bounded by the
			// cumulative cooldown budget and the task context.
			if rateLimitWaited >= c.opts.RateLimitBudget {
				msg := fmt.Sprintf("rate limited beyond budget (%s waited)", rateLimitWaited.Round(time.Second))
				c.deadLetter.Append(unit, status, msg)
				out.Class = ClassRateLimited
				out.Err = fmt.Errorf("%s", msg)
				out.Elapsed = time.Since(start)
				return out
			}
			c.log.Warn("rate limited, cooling down",
				"unit", unit.Key(), "wait", c.opts.RateLimitCooldown, "waited", rateLimitWaited)
			if !sleepCtx(ctx, c.opts.RateLimitCooldown) {
				return c.canceled(out, start, ctx.Err())
			}
			rateLimitWaited += c.opts.RateLimitCooldown

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			msg := fmt.Sprintf("auth failure (status %d): invalid API key or expired plan", status)
			c.log.Error("fatal provider auth failure, run must abort", "unit", unit.Key(), "status", status)
			c.deadLetter.Append(unit, status, msg)
			out.Class = ClassFatal
			out.Err = fmt.Errorf("%s", msg)
			out.Elapsed = time.Since(start)
			return out

		case status == http.StatusBadRequest:
			msg := "bad request: invalid or unknown symbol"
			c.deadLetter.Append(unit, status, msg)
			out.Class = ClassPermanent
			out.Err = fmt.Errorf("%s", msg)
			out.Elapsed = time.Since(start)
			return out

		default:
			msg := fmt.Sprintf("unexpected status %d", status)
			c.deadLetter.Append(unit, status, msg)
			out.Class = ClassPermanent
			out.Err = fmt.Errorf("%s", msg)
			out.Elapsed = time.Since(start)
			return out
		}
	}
}

// do issues a single GET and reads the body. Returns the status and body, or
// a transport error.
func (c *Client) do(ctx context.Context, reqURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// buildURL joins the base URL with the unit's domain endpoint and attaches
// symbol, date range, and API key query parameters. The endpoint may carry
// fixed query parameters of its own.
func (c *Client) buildURL(unit domain.Unit) (string, error) {
	ep, ok := c.opts.Endpoints[unit.Domain]
	if !ok || ep == "" {
		return "", fmt.Errorf("no endpoint for domain %q", unit.Domain)
	}

	u, err := url.Parse(c.opts.BaseURL + ep)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint URL: %w", err)
	}

	q := u.Query()
	q.Set("symbol", unit.Ticker)
	if !unit.From.IsZero() {
		q.Set("from", unit.From.Format("2006-01-02"))
	}
	if !unit.To.IsZero() {
		q.Set("to", unit.To.Format("2006-01-02"))
	}
	q.Set("apikey", c.opts.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// backoff sleeps for the current delay plus jitter, then doubles the delay
// and bumps the retry counter. Returns false if the context was cancelled.
func (c *Client) backoff(ctx context.Context, unit domain.Unit, delay *time.Duration, retries *int, reason string) bool {
	wait := *delay
	if c.opts.BackoffJitter > 0 {
		wait += time.Duration(rand.Int63n(int64(c.opts.BackoffJitter)))
	}
	c.log.Warn("transient failure, backing off",
		"unit", unit.Key(), "reason", reason, "wait", wait.Round(time.Millisecond),
		"attempt", *retries+1, "max", c.opts.MaxRetries)
	if !sleepCtx(ctx, wait) {
		return false
	}
	*delay *= 2
	*retries++
	return true
}

func (c *Client) canceled(out Outcome, start time.Time, err error) Outcome {
	out.Class = ClassCanceled
	out.Err = err
	out.Elapsed = time.Since(start)
	return out
}

// sleepCtx sleeps for d or until ctx is done; reports whether the full sleep
// completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
