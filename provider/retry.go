package provider

import (
	"context"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const maxRetries = 3

// completeWithRetry runs fn up to maxRetries times, backing off linearly
// between attempts. Only network-level failures are retried; API errors
// (bad request, auth, quota) surface immediately.
func completeWithRetry(ctx context.Context, logger *zap.SugaredLogger, providerName string, fn func() (*Response, error)) (*Response, error) {
	var resp *Response
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			if logger != nil {
				logger.Debugw("Retrying provider request",
					"provider", providerName,
					"attempt", attempt,
					"delay", delay,
				)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err = fn()
		if err == nil {
			if attempt > 0 && logger != nil {
				logger.Infow("Provider request succeeded after retries",
					"provider", providerName,
					"attempts", attempt+1,
				)
			}
			return resp, nil
		}

		if logger != nil {
			logger.Warnw("Provider API error",
				"provider", providerName,
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"error", err,
			)
		}

		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, err
}

// isRetryableError checks if an error is worth retrying (network-related)
func isRetryableError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}

	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}
