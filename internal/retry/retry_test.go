package retry

import (
	"context"
	"errors"
	"testing"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	p := Policy{base: 0, maxRetries: 3, jitter: 0}
	err := p.Do(context.Background(), func(error) bool { return true }, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	p := Policy{base: 0, maxRetries: 3, jitter: 0}
	err := p.Do(context.Background(), func(error) bool { return false }, func(ctx context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	calls := 0
	p := Policy{base: 0, maxRetries: 2, jitter: 0}
	err := p.Do(context.Background(), func(error) bool { return true }, func(ctx context.Context) error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Fatal("expected error after exhausting retry budget")
	}
	if calls != 3 { // 1 initial + 2 retries
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
