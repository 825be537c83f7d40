// Package probe waits for services to become ready after a deployment. It
// is a bounded finite state machine (Pending until Ready or TimedOut after
// N attempts) over a pluggable health check, so the wait is deterministic
// under test and exhaustion degrades to a warning rather than a failure.
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/jguan/chatstack/pkg/infra/logger"
)

// Result is the terminal state of one readiness wait.
type Result int

const (
	// Ready means the service answered a health check within budget.
	Ready Result = iota
	// TimedOut means the attempt ceiling was exhausted. Services may
	// legitimately still be initializing; callers warn, never abort.
	TimedOut
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Checker performs one health check against an endpoint.
type Checker interface {
	Check(ctx context.Context, endpoint string) error
}

// Target describes one service's readiness contract: where to check, how
// often, and how many times before giving up.
type Target struct {
	Service     string
	Endpoint    string
	MaxAttempts int
	Interval    time.Duration
}

// Waiter polls targets until ready or exhausted. Sleep is injectable so
// tests run on a virtual clock.
type Waiter struct {
	Checker Checker
	Sleep   func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a Waiter with a real clock.
func NewWaiter(c Checker) *Waiter {
	return &Waiter{
		Checker: c,
		Sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until the target reports healthy or its attempt budget is
// exhausted. Cancellation of ctx counts as exhaustion.
func (w *Waiter) Wait(ctx context.Context, t Target) Result {
	log := logger.WithContext(ctx).With("service", t.Service)

	for attempt := 1; attempt <= t.MaxAttempts; attempt++ {
		if err := w.Checker.Check(ctx, t.Endpoint); err == nil {
			log.Info("service ready", "attempt", attempt)
			return Ready
		} else {
			log.Debug("service not ready yet", "attempt", attempt, "max", t.MaxAttempts, "error", err)
		}

		if attempt == t.MaxAttempts {
			break
		}
		if err := w.Sleep(ctx, t.Interval); err != nil {
			break
		}
	}

	log.Warn("service did not become ready within budget", "attempts", t.MaxAttempts)
	return TimedOut
}

// WaitAll waits for each target in order and returns one warning per
// service that timed out.
func (w *Waiter) WaitAll(ctx context.Context, targets []Target) []string {
	var warnings []string
	for _, t := range targets {
		if w.Wait(ctx, t) == TimedOut {
			warnings = append(warnings, fmt.Sprintf(
				"%s did not answer at %s after %d attempts; it may still be initializing",
				t.Service, t.Endpoint, t.MaxAttempts))
		}
	}
	return warnings
}

// HTTPChecker checks readiness with a GET request. Any response below 500
// counts as ready: a 401 or 404 still proves the service is up.
type HTTPChecker struct {
	Client *http.Client
}

var _ Checker = (*HTTPChecker)(nil)

// NewHTTPChecker creates an HTTPChecker with a short per-request timeout.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// NewInsecureHTTPChecker creates a checker that accepts any TLS
// certificate. The advanced-mode proxy serves a self-signed pair, so
// verification against the system roots would always fail.
func NewInsecureHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (c *HTTPChecker) Check(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}
