package engine

import (
	"context"
	"time"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// maxAttemptsFor resolves a step's attempt budget. No policy means one shot.
func maxAttemptsFor(policy *schema.RetryPolicy) int {
	if policy == nil || policy.MaxAttempts < 1 {
		return 1
	}
	return policy.MaxAttempts
}

// retryDelayFor resolves the inter-attempt wait.
func retryDelayFor(policy *schema.RetryPolicy) time.Duration {
	if policy == nil || policy.DelayMs <= 0 {
		return 0
	}
	return time.Duration(policy.DelayMs) * time.Millisecond
}

// WaitFor sleeps for the given duration or returns early if the context is
// cancelled. All engine suspension points (retry delays, "delay" actions) go
// through here so a shutdown never blocks on a sleeping run.
func WaitFor(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
