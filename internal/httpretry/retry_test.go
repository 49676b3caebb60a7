package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{MaxAttempts: 4, Base: time.Millisecond, Cap: 4 * time.Millisecond}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, testPolicy(), nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("always failing")
	err := Do(context.Background(), nil, testPolicy(), nil, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestDoStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := errors.New("terminal")
	err := Do(context.Background(), nil, testPolicy(), func(err error) bool { return false }, func(ctx context.Context) error {
		calls++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("terminal error must not retry, got %d calls", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, nil, Policy{MaxAttempts: 5, Base: time.Hour, Cap: time.Hour}, nil, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestPolicyDelaySchedule(t *testing.T) {
	p := Policy{MaxAttempts: 6, Base: 100 * time.Millisecond, Cap: 800 * time.Millisecond}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{40, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	p := Policy{MaxAttempts: 3, Base: 10 * time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 5 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		if d < 10*time.Millisecond || d >= 15*time.Millisecond {
			t.Fatalf("jittered delay %v outside [10ms, 15ms)", d)
		}
	}
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{Code: 429}, true},
		{"server error", &StatusError{Code: 503}, true},
		{"not found", &StatusError{Code: 404}, false},
		{"bad request", &StatusError{Code: 400}, false},
		{"wrapped status", fmt.Errorf("explorer: %w", &StatusError{Code: 500}), true},
		{"net timeout", &net.DNSError{IsTimeout: true}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestJitterSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := JitterSleep(ctx, time.Second, 2*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}

	start := time.Now()
	if err := JitterSleep(context.Background(), 0, 0); err != nil {
		t.Fatalf("zero sleep failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("zero sleep took %v", elapsed)
	}
}
