package fetch

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/metrics"
)

// maxBodyBytes caps how much of a response body is retained.
const maxBodyBytes = 10 << 20

// TransportConfig controls the retry decision table.
type TransportConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Timeout     time.Duration
	UserAgent   string
}

// RetryingTransport performs one logical fetch with bounded retries. The
// retry policy is an explicit decision table rather than a client-library
// default: 429, 5xx and connection-level errors retry; any other non-2xx
// status is terminal. A Retry-After header takes precedence over the
// computed backoff. Every physical attempt is appended to the sink before
// control returns.
type RetryingTransport struct {
	client *http.Client
	cfg    TransportConfig
	sink   AttemptSink
	clock  Clock
	logger *zap.Logger
}

// NewRetryingTransport builds a transport; zero config fields get the
// defaults the collector ships with.
func NewRetryingTransport(cfg TransportConfig, sink AttemptSink, clock Clock, logger *zap.Logger) *RetryingTransport {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &RetryingTransport{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		sink:   sink,
		clock:  clock,
		logger: logger,
	}
}

// Fetch executes the target until success, a terminal condition, or
// attempt exhaustion. The returned outcome carries every attempt made.
func (t *RetryingTransport) Fetch(ctx context.Context, target Target) Outcome {
	out := Outcome{Target: target}
	var lastErr error

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		started := t.clock.Now()
		res, err := t.do(ctx, target)
		rec := Attempt{
			Target:        target,
			Number:        attempt,
			StartedAt:     started,
			Elapsed:       t.clock.Now().Sub(started),
			Status:        res.status,
			RobotsAllowed: true,
		}
		if err != nil {
			rec.Err = err.Error()
		}

		out.Attempts = append(out.Attempts, rec)
		metrics.IncAttempt(statusClass(res.status, err))
		if serr := t.sink.Append(rec); serr != nil {
			out.Status = StatusFailed
			out.Err = &PersistenceError{Op: "ledger append", Err: serr}
			return out
		}

		if err == nil && res.status >= 200 && res.status <= 299 {
			out.Status = StatusSuccess
			out.HTTPStatus = res.status
			out.Body = res.body
			out.ContentType = res.contentType
			return out
		}

		retryable, delay := t.classify(ctx, res, err, attempt)
		if err != nil {
			lastErr = err
		} else {
			lastErr = statusError(res.status)
		}
		if !retryable || attempt == t.cfg.MaxAttempts {
			break
		}

		metrics.IncRetry(target.Domain)
		t.logger.Debug("retrying fetch",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt),
			zap.Int("status", res.status),
			zap.Duration("delay", delay),
			zap.Error(err))
		if werr := sleepCtx(ctx, delay); werr != nil {
			lastErr = werr
			break
		}
	}

	out.Status = StatusFailed
	out.Err = lastErr
	return out
}

// attemptResult is what one physical request produced.
type attemptResult struct {
	status      int
	body        []byte
	contentType string
	retryAfter  string
}

// do performs a single physical request.
func (t *RetryingTransport) do(ctx context.Context, target Target) (attemptResult, error) {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target.URL, nil)
	if err != nil {
		return attemptResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return attemptResult{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	res := attemptResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		retryAfter:  resp.Header.Get("Retry-After"),
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return res, fmt.Errorf("read body: %w", err)
	}
	res.body = body
	return res, nil
}

// classify is the retry decision table. It returns whether the condition
// is transient and, if so, how long to wait before the next attempt.
func (t *RetryingTransport) classify(ctx context.Context, res attemptResult, err error, attempt int) (bool, time.Duration) {
	switch {
	case err != nil:
		// Connection-level failures (timeouts included) retry unless the
		// run itself is over. The run's state is read from ctx, not from
		// the request error: a per-request Client.Timeout error also
		// satisfies errors.Is(err, context.DeadlineExceeded), so matching
		// the error would misread an ordinary network timeout as a dead
		// run and never retry it.
		if ctx.Err() != nil {
			return false, 0
		}
		return true, t.backoff(attempt)
	case res.status == http.StatusTooManyRequests || res.status >= 500:
		if d, ok := parseRetryAfter(res.retryAfter, t.clock.Now()); ok {
			return true, d
		}
		return true, t.backoff(attempt)
	default:
		// Everything else (terminal 4xx, leftover 3xx) does not retry.
		return false, 0
	}
}

// backoff computes base*2^(attempt-1) capped, with half-window jitter.
func (t *RetryingTransport) backoff(attempt int) time.Duration {
	delay := float64(t.cfg.BackoffBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(t.cfg.BackoffCap) {
		delay = float64(t.cfg.BackoffCap)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func statusClass(status int, err error) string {
	switch {
	case err != nil:
		return "error"
	case status == http.StatusTooManyRequests:
		return "429"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func statusError(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &TransientHTTPError{Status: status}
	}
	return &TerminalHTTPError{Status: status}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
