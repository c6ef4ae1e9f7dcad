// Package health decides whether a freshly applied service may receive
// traffic. A Gate polls a Prober until it succeeds or the attempts of the
// service's health check are exhausted.
package health

import (
	"context"
	"fmt"
	"time"

	"relctl/internal/release"
	"relctl/pkg/logging"
)

const subsystem = "HealthGate"

// Target identifies the service being gated.
type Target struct {
	Service   string
	Namespace string
	// Workload is the Deployment and Service object name.
	Workload string
	Port     int32
}

func (t Target) String() string {
	return t.Namespace + "/" + t.Workload
}

// Prober runs a single health probe. ctx carries the per-poll deadline.
type Prober interface {
	Probe(ctx context.Context, target Target, check release.HealthCheck) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, target Target, check release.HealthCheck) error

func (f ProberFunc) Probe(ctx context.Context, target Target, check release.HealthCheck) error {
	return f(ctx, target, check)
}

// UnhealthyError is returned when a service never passed its health check.
type UnhealthyError struct {
	Service   string
	Attempts  int
	LastError error
}

func (e *UnhealthyError) Error() string {
	return fmt.Sprintf("service %s unhealthy after %d attempts: %v", e.Service, e.Attempts, e.LastError)
}

func (e *UnhealthyError) Unwrap() error {
	return e.LastError
}

// Gate polls a Prober with the cadence of a release.HealthCheck.
type Gate struct {
	prober Prober

	// sleep waits between polls; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a Gate around a prober.
func NewGate(prober Prober) *Gate {
	return &Gate{prober: prober, sleep: sleepContext}
}

// Await polls every check.IntervalSeconds, bounding each poll by
// check.TimeoutSeconds, until a poll succeeds or check.MaxAttempts polls have
// failed. Cancellation of ctx is returned as the context error, wrapped.
func (g *Gate) Await(ctx context.Context, target Target, check release.HealthCheck) error {
	check = check.WithDefaults()

	var lastErr error
	for attempt := 1; attempt <= check.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("health gate for %s interrupted: %w", target.Service, err)
		}

		pollCtx, cancel := context.WithTimeout(ctx, check.Timeout())
		err := g.prober.Probe(pollCtx, target, check)
		timedOut := pollCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			logging.Info(subsystem, "%s healthy after %d attempt(s)", target, attempt)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("health gate for %s interrupted: %w", target.Service, ctxErr)
		}
		if timedOut {
			err = fmt.Errorf("probe timed out after %s: %w", check.Timeout(), err)
		}
		lastErr = err
		logging.Debug(subsystem, "%s attempt %d/%d failed: %v", target, attempt, check.MaxAttempts, err)

		if attempt == check.MaxAttempts {
			break
		}
		if err := g.sleep(ctx, check.Interval()); err != nil {
			return fmt.Errorf("health gate for %s interrupted: %w", target.Service, err)
		}
	}

	logging.Warn(subsystem, "%s unhealthy after %d attempts: %v", target, check.MaxAttempts, lastErr)
	return &UnhealthyError{Service: target.Service, Attempts: check.MaxAttempts, LastError: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
