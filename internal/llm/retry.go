package llm

import (
	"context"
	"time"

	"github.com/wolfman30/health-chat-api/pkg/logging"
)

// RetryClient retries transient failures with exponential backoff.
type RetryClient struct {
	next      Client
	attempts  int
	baseDelay time.Duration
	logger    *logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRetryClient(next Client, attempts int, baseDelay time.Duration, logger *logging.Logger) *RetryClient {
	if next == nil {
		panic("llm: retry client requires a delegate")
	}
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryClient{next: next, attempts: attempts, baseDelay: baseDelay, logger: logger, sleep: sleepContext}
}

func (c *RetryClient) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		resp, err := c.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == c.attempts-1 {
			break
		}
		delay := c.baseDelay << attempt
		c.logger.Warn("llm call failed, retrying", "attempt", attempt+1, "delay", delay.String(), "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
