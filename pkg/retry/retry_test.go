package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Multiplier:       2.0,
		MaxSameErrorType: 5,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	wantErr := errors.New("always fails")
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 { // initial attempt + 3 retries
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   10,
		InitialDelay: time.Hour, // would block forever without cancellation
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func() error { return errors.New("fail") })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
}

type explicitError struct{ retryable bool }

func (e *explicitError) Error() string     { return "explicit" }
func (e *explicitError) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit retryable", &explicitError{retryable: true}, true},
		{"explicit permanent", &explicitError{retryable: false}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("HTTP 429 too many requests"), true},
		{"service unavailable", errors.New("503 service unavailable"), true},
		{"auth failure", errors.New("invalid api key"), false},
		{"plain failure", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid api key")
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 3

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("HTTP 503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected escalated error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls before escalation, got %d", calls)
	}
}
