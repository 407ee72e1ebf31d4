// Package inference defines the text-completion contract the engine consumes
// and helpers for calling it with timeouts and bounded retries. Providers
// live in contrib/provider.
package inference

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single completion call unless the caller already
// set a deadline.
const DefaultTimeout = 8 * time.Second

// Service is a stateless text completion provider.
type Service interface {
	// Complete returns the model's text output for a prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name identifies the provider for logs and traces.
	Name() string
}

// CompleteWithRetry calls the service up to attempts times with linear
// backoff between attempts, optionally validating each response before
// accepting it. The attempt in flight always completes; cancellation is
// honored between attempts.
func CompleteWithRetry(ctx context.Context, svc Service, prompt string, attempts int, validate func(string) error) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		out, err := svc.Complete(ctx, prompt)
		if err == nil {
			if validate == nil {
				return out, nil
			}
			err = validate(out)
			if err == nil {
				return out, nil
			}
		}
		lastErr = err
		if i == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("inference failed after %d attempts: %w", attempts, lastErr)
}

type timeoutService struct {
	svc Service
	d   time.Duration
}

// WithTimeout wraps a service so each completion call carries a timeout.
func WithTimeout(svc Service, d time.Duration) Service {
	if d <= 0 {
		d = DefaultTimeout
	}
	return timeoutService{svc: svc, d: d}
}

func (s timeoutService) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.svc.Complete(ctx, prompt)
}

func (s timeoutService) Name() string {
	return s.svc.Name()
}
