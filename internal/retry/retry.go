// Package retry wraps sethvargo/go-retry with the two bounded
// backoff-with-jitter policies spec §4.5/§4.6/§9 call for: the LLM call
// (base 2s, jitter 250ms, 3 attempts) and the warehouse insert (base 1s, up
// to 5 attempts). The bus's own redelivery is the outer retry loop; these
// are the inner, in-process retries the spec explicitly carves out.
package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bundles a backoff shape with a retry predicate.
type Policy struct {
	base       time.Duration
	maxRetries uint64
	jitter     time.Duration
}

// LLMPolicy is Stage C's LLM-call retry policy.
func LLMPolicy() Policy {
	return Policy{base: 2 * time.Second, maxRetries: 2, jitter: 250 * time.Millisecond}
}

// WarehousePolicy is Stage D's warehouse-insert retry policy.
func WarehousePolicy() Policy {
	return Policy{base: time.Second, maxRetries: 4, jitter: 250 * time.Millisecond}
}

// Do runs fn, retrying on any error for which shouldRetry returns true,
// until the policy's attempt budget or ctx is exhausted. The final error
// (if any) is returned unwrapped, so callers can still classify it via
// kernel/errs.
func (p Policy) Do(ctx context.Context, shouldRetry func(error) bool, fn func(context.Context) error) error {
	backoff, err := retry.NewExponential(p.base)
	if err != nil {
		return err
	}
	backoff = retry.WithJitter(p.jitter, backoff)
	backoff = retry.WithMaxRetries(p.maxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
