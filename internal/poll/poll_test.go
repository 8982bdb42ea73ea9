package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petasbytes/ctxassist/internal/poll"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPolicy_Delay_FixedByDefault(t *testing.T) {
	var p poll.Policy
	for i := 0; i < 5; i++ {
		if got := p.Delay(i); got != poll.DefaultInterval {
			t.Fatalf("attempt %d: got %s want %s", i, got, poll.DefaultInterval)
		}
	}
}

func TestPolicy_Delay_BackoffCapped(t *testing.T) {
	p := poll.Policy{Interval: 100 * time.Millisecond, Multiplier: 2, MaxInterval: 500 * time.Millisecond}
	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got := p.Delay(i); got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %s want %s", i, got, w*time.Millisecond)
		}
	}
}

func TestPoller_MaxAttempts(t *testing.T) {
	clk := poll.NewFakeClock(epoch)
	w := poll.Policy{Interval: time.Second, MaxAttempts: 2}.Start(clk)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if err := w.Wait(ctx); !errors.Is(err, poll.ErrMaxAttempts) {
		t.Fatalf("want ErrMaxAttempts, got %v", err)
	}
	if got := len(clk.Waits()); got != 2 {
		t.Fatalf("expected 2 waits, got %d", got)
	}
}

func TestPoller_Timeout(t *testing.T) {
	clk := poll.NewFakeClock(epoch)
	w := poll.Policy{Interval: time.Second, Timeout: 3 * time.Second}.Start(clk)
	ctx := context.Background()
	var err error
	n := 0
	for ; n < 10; n++ {
		if err = w.Wait(ctx); err != nil {
			break
		}
	}
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 waits before timeout, got %d", n)
	}
}

func TestPoller_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := poll.DefaultPolicy().Start(poll.NewFakeClock(epoch))
	if err := w.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if w.Attempts() != 0 {
		t.Fatalf("cancelled wait must not count as an attempt")
	}
}

func TestUntil_StopsWhenDone(t *testing.T) {
	clk := poll.NewFakeClock(epoch)
	calls := 0
	err := poll.Until(context.Background(), clk, poll.DefaultPolicy(), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 checks, got %d", calls)
	}
}

func TestUntil_PropagatesCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := poll.Until(context.Background(), poll.NewFakeClock(epoch), poll.DefaultPolicy(), func(context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (poll.Policy{Interval: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if err := (poll.Policy{MaxAttempts: -1}).Validate(); err == nil {
		t.Fatal("expected error for negative attempts")
	}
	if err := poll.DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}
