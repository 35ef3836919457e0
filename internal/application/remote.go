package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

// remoteCaller runs blocking calls against external sources with an
// independent timeout each. Calls are never retried.
type remoteCaller struct {
	timeout time.Duration
	metrics output.MetricsCollector
	logger  *slog.Logger
}

func newRemoteCaller(timeout time.Duration, metrics output.MetricsCollector, logger *slog.Logger) *remoteCaller {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &remoteCaller{timeout: timeout, metrics: metrics, logger: logger}
}

// do runs fn under the call timeout. A deadline overrun is returned as
// domain.ErrTimeout, other failures as a *domain.SourceError.
func (c *remoteCaller) do(ctx context.Context, source, operation string, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	c.metrics.ObserveRemoteCallDuration(source, operation, time.Since(start))

	switch {
	case err == nil:
		c.metrics.IncRemoteCall(source, operation, output.OutcomeSuccess)
		return nil
	case isTimeout(err):
		c.metrics.IncRemoteCall(source, operation, output.OutcomeTimeout)
		c.logger.Warn("remote call timed out",
			"source", source,
			"operation", operation,
			"timeout", c.timeout,
		)
		return fmt.Errorf("%s %s after %s: %w", source, operation, c.timeout, domain.ErrTimeout)
	default:
		c.metrics.IncRemoteCall(source, operation, output.OutcomeError)
		c.logger.Warn("remote call failed",
			"source", source,
			"operation", operation,
			"error", err,
		)
		return &domain.SourceError{Source: source, Operation: operation, Err: err}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout)
}

// reason turns a degraded call into the text shown in a report.
func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrNoScene):
		return "no scene available"
	default:
		return err.Error()
	}
}
