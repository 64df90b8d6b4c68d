/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:  maxRetries,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), "op",
		func(error) bool { return true },
		func() (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if got != "ok" {
		t.Errorf("result: got = %q, wanted = %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("calls: got = %d, wanted = 1", calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	transient := errors.New("overloaded")

	got, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), "op",
		func(err error) bool { return errors.Is(err, transient) },
		func() (int, error) {
			calls++
			if calls < 3 {
				return 0, transient
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if got != 42 {
		t.Errorf("result: got = %d, wanted = 42", got)
	}
	if calls != 3 {
		t.Errorf("calls: got = %d, wanted = 3", calls)
	}
}

func TestRetryGivesUpOnNonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("invalid request")

	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), "op",
		func(error) bool { return false },
		func() (int, error) {
			calls++
			return 0, fatal
		})
	if !errors.Is(err, fatal) {
		t.Errorf("error: got = %v, wanted = %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls: got = %d, wanted = 1", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := errors.New("rate limited")

	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(2), "op",
		func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, transient
		})
	if !errors.Is(err, transient) {
		t.Errorf("error: got = %v, wanted wrapped %v", err, transient)
	}
	// Initial attempt + 2 retries.
	if calls != 3 {
		t.Errorf("calls: got = %d, wanted = 3", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxRetries: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
	_, err := RetryWithBackoff(ctx, cfg, "op",
		func(error) bool { return true },
		func() (int, error) { return 0, errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got = %v, wanted = context.Canceled", err)
	}
}

func TestRetryConfigValidate(t *testing.T) {
	if err := DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	if err := (RetryConfig{MaxRetries: -1}).Validate(); err == nil {
		t.Error("negative retries: got = nil, wanted = error")
	}
	if err := (RetryConfig{BaseBackoff: -time.Second}).Validate(); err == nil {
		t.Error("negative backoff: got = nil, wanted = error")
	}
}
