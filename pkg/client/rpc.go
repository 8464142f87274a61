package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/ext2fs/pkg/rpc"
)

// callWithRetry executes an RPC call with retry logic
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(callCtx)
		cancel()

		if err == nil || !isRetryableError(err) {
			return wrapError(operation, err)
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		// Calculate retry delay with exponential backoff
		delay := c.config.RetryDelay * time.Duration(float64(attempt+1)*c.config.BackoffFactor)
		c.log.WithFields(logrus.Fields{
			"op":      operation,
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Debug("Retrying call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, c.config.MaxRetries+1, wrapError(operation, lastErr))
}

// isRetryableError checks if an error is retryable. Failures the server
// reported as filesystem errors are final: retrying a NO_SPACE write cannot
// succeed.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if rpc.HasReason(err) {
		return false
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
			return true
		case codes.Internal, codes.Unknown:
			return true
		default:
			return false
		}
	}
	return false
}
