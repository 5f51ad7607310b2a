package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

// ErrExhausted is returned when every attempt failed without a response.
var ErrExhausted = errors.New("exhausted retries")

// PreAttempt lets callers run logic (e.g., rate limiting) before each try; return an error to abort.
type PreAttempt func(ctx context.Context, attempt int) error

// AttemptInfo describes a single attempt outcome.
type AttemptInfo struct {
	Attempt int
	Method  string
	URL     string
	Status  int
	Err     error
	Wait    time.Duration
}

// Observer callback to report attempt telemetry.
type Observer func(info AttemptInfo)

// Options controls retry behaviour.
type Options struct {
	MaxAttempts int           // total attempts, at least 1
	BaseDelay   time.Duration // linear backoff step
	MaxJitter   time.Duration // random extra delay per backoff
	LogRetries  bool
	Pre         PreAttempt
	Observer    Observer
}

// OptionsFromConfig builds retry options from the HTTP_* settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts: cfg.HTTPMaxRetries,
		BaseDelay:   cfg.HTTPRetryBase,
		MaxJitter:   200 * time.Millisecond,
		LogRetries:  cfg.LogHTTPRetries,
	}
}

// Do sends the request produced by build, retrying transport errors, 429s
// and 5xx responses with linear backoff. Retry-After is honoured. The last
// 429/5xx response is returned as-is once attempts run out; the caller owns
// its body.
func Do(ctx context.Context, client *http.Client, build func(ctx context.Context) (*http.Request, error), opts Options) (*http.Response, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := logger.Get()
	report := func(info AttemptInfo) {
		if opts.Observer != nil {
			opts.Observer(info)
		}
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if opts.Pre != nil {
			if err := opts.Pre(ctx, attempt); err != nil {
				return nil, err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		url := req.URL.String()

		resp, err := client.Do(req)
		var wait time.Duration
		if err != nil {
			// Network or transport error
			metrics.JellyfinHTTPRequests.WithLabelValues("error").Inc()
			report(AttemptInfo{Attempt: attempt, Method: req.Method, URL: url, Err: err})
			if attempt == maxAttempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if opts.LogRetries {
					log.Warn("HTTP request failed, no more retries", "attempt", attempt, "method", req.Method, "url", url, "error", err)
				}
				return nil, err
			}
		} else {
			// success unless 429/5xx
			if !retryable(resp.StatusCode) {
				metrics.JellyfinHTTPRequests.WithLabelValues("success").Inc()
				if opts.LogRetries && attempt > 1 {
					log.Info("HTTP request succeeded after retry", "attempt", attempt, "method", req.Method, "url", url, "status", resp.StatusCode)
				}
				report(AttemptInfo{Attempt: attempt, Method: req.Method, URL: url, Status: resp.StatusCode})
				return resp, nil
			}
			metrics.JellyfinHTTPRequests.WithLabelValues("retry").Inc()
			if attempt == maxAttempts {
				if opts.LogRetries {
					log.Warn("HTTP request giving up", "attempt", attempt, "method", req.Method, "url", url, "status", resp.StatusCode)
				}
				report(AttemptInfo{Attempt: attempt, Method: req.Method, URL: url, Status: resp.StatusCode})
				return resp, nil
			}
			wait = retryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			if wait > 0 {
				metrics.JellyfinRetryAfterWaits.Observe(wait.Seconds())
				if opts.LogRetries {
					log.Info("HTTP request honouring Retry-After", "attempt", attempt, "wait", wait, "method", req.Method, "url", url)
				}
			}
			report(AttemptInfo{Attempt: attempt, Method: req.Method, URL: url, Status: resp.StatusCode, Wait: wait})
		}

		metrics.JellyfinHTTPRetries.Inc()
		if wait == 0 {
			// backoff with jitter
			wait = opts.BaseDelay * time.Duration(attempt)
			if opts.MaxJitter > 0 {
				wait += time.Duration(rand.Int63n(int64(opts.MaxJitter)))
			}
			if opts.LogRetries {
				log.Info("HTTP request backing off", "attempt", attempt, "wait", wait, "method", req.Method, "url", url)
			}
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, ErrExhausted
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if delta := time.Until(t); delta > 0 {
			return delta
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
