package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 8 * time.Second
	defaultMultiplier     = 2.0
	defaultMaxAttempts    = 4
	defaultJitterFraction = 0.30
)

type Sleeper func(ctx context.Context, d time.Duration) error
type NowFunc func() time.Time
type RandFunc func() float64

// Policy describes bounded exponential backoff for vendor HTTP calls.
// Sleep/Now/Rand are injectable for deterministic tests.
type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxAttempts    int
	JitterFraction float64
	Sleep          Sleeper
	Now            NowFunc
	Rand           RandFunc
}

func DefaultPolicy() Policy {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return Policy{
		BaseDelay:      defaultBaseDelay,
		MaxDelay:       defaultMaxDelay,
		Multiplier:     defaultMultiplier,
		MaxAttempts:    defaultMaxAttempts,
		JitterFraction: defaultJitterFraction,
		Sleep:          defaultSleep,
		Now:            time.Now,
		Rand:           rng.Float64,
	}
}

// HTTPStatusError marks a retryable vendor status that survived all attempts.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transient status %d", e.StatusCode)
	}
	return fmt.Sprintf("transient status %d: %s", e.StatusCode, e.Body)
}

// DoHTTP executes do until it returns a non-retryable outcome or attempts run out.
// Retryable: transport-level network errors, 408/429 and 5xx statuses.
// The final response and body are returned as-is for non-retryable statuses,
// so callers keep their own status handling.
func DoHTTP(ctx context.Context, policy Policy, logger *slog.Logger, do func(ctx context.Context) (*http.Response, []byte, error)) (*http.Response, []byte, error) {
	policy = withDefaults(policy)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		resp, body, err := do(ctx)
		if err != nil {
			if !isRetryableNetErr(ctx, err) || attempt == policy.MaxAttempts {
				return resp, body, err
			}
			delay := policy.nextDelay(attempt, 0, false)
			logRetry(logger, attempt, policy.MaxAttempts, 0, delay, err.Error())
			if err := policy.Sleep(ctx, delay); err != nil {
				return nil, nil, err
			}
			continue
		}

		if resp == nil {
			return nil, nil, errors.New("nil response from http client")
		}
		if !isRetryableStatus(resp.StatusCode) {
			return resp, body, nil
		}
		if attempt == policy.MaxAttempts {
			return resp, body, &HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
		}

		retryAfter, hasRetryAfter := parseRetryAfter(resp.Header, policy.Now())
		delay := policy.nextDelay(attempt, retryAfter, hasRetryAfter)
		logRetry(logger, attempt, policy.MaxAttempts, resp.StatusCode, delay, "")
		if err := policy.Sleep(ctx, delay); err != nil {
			return nil, nil, err
		}
	}
}

func withDefaults(p Policy) Policy {
	if p.BaseDelay == 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = defaultMultiplier
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Sleep == nil {
		p.Sleep = defaultSleep
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Rand == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		p.Rand = rng.Float64
	}
	return p
}

func (p Policy) nextDelay(attempt int, retryAfter time.Duration, hasRetryAfter bool) time.Duration {
	if hasRetryAfter {
		if retryAfter > p.MaxDelay {
			return p.MaxDelay
		}
		return retryAfter
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		// Percentage jitter: +/- JitterFraction to reduce thundering herd.
		delay *= 1 + (p.Rand()*2-1)*p.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func defaultSleep(ctx context.Context, d time.Duration) error {
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

func parseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, true
		}
		return time.Duration(seconds) * time.Second, true
	}
	if parsed, err := http.ParseTime(value); err == nil {
		delay := parsed.Sub(now)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableNetErr(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection reset")
}

func logRetry(logger *slog.Logger, attempt, maxAttempts, status int, delay time.Duration, reason string) {
	if logger == nil {
		return
	}
	args := []any{
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("retry_in", delay),
	}
	if status > 0 {
		args = append(args, slog.Int("status", status))
	}
	if reason != "" {
		args = append(args, slog.String("reason", reason))
	}
	logger.Warn("retrying request", args...)
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
