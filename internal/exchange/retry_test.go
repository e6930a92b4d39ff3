package exchange

import (
	"context"
	"errors"
	"testing"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	RetryDelay = 0
	calls := 0
	v, err := Retry(context.Background(), "op", 3, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 || calls != 3 {
		t.Errorf("expected 42 after 3 calls, got %d after %d", v, calls)
	}
}

func TestRetry_ExhaustedKeepsLastError(t *testing.T) {
	RetryDelay = 0
	last := errors.New("third")
	errs := []error{errors.New("first"), errors.New("second"), last}
	calls := 0
	_, err := Retry(context.Background(), "CreateMarketSellOrder", 3, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errs[calls-1]
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("expected ErrAttemptsExhausted, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnCanceledContext(t *testing.T) {
	RetryDelay = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, "op", 5, func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestRetry_AtLeastOneAttempt(t *testing.T) {
	calls := 0
	_, _ = Retry(context.Background(), "op", 0, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if calls != 1 {
		t.Errorf("expected one call, got %d", calls)
	}
}

func TestOrderCost(t *testing.T) {
	o := &Order{Filled: 0.5, Average: 200}
	if o.Cost() != 100 {
		t.Errorf("expected cost 100, got %f", o.Cost())
	}
}
