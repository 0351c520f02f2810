package analysis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedProvider struct {
	errs  []error
	text  string
	calls int
}

func (p *scriptedProvider) Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error) {
	p.calls++
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return "", CompletionMeta{}, p.errs[p.calls-1]
	}
	return p.text, CompletionMeta{Model: "fake"}, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestClient(p CompletionProvider) *LLMClient {
	c := NewLLMClient(p, testLogger())
	c.sleep = noSleep
	return c
}

func TestLLMClient_RetriesRetryableThenSucceeds(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		errs: []error{
			&ProviderError{Class: ErrClassRateLimit, Err: errors.New("429")},
			&ProviderError{Class: ErrClassServer, Err: errors.New("500")},
		},
		text: "ok",
	}
	c := newTestClient(p)

	text, _, err := c.Invoke(context.Background(), SystemUserPrompt("s", "u"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if text != "ok" || p.calls != 3 {
		t.Fatalf("text=%q calls=%d, want ok after 3 calls", text, p.calls)
	}
}

func TestLLMClient_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{
		errs: []error{&ProviderError{Class: ErrClassAuth, Err: errors.New("401")}},
	}
	c := newTestClient(p)

	_, _, err := c.Invoke(context.Background(), SystemUserPrompt("s", "u"))
	if err == nil {
		t.Fatalf("want error")
	}
	if p.calls != 1 {
		t.Fatalf("calls=%d, want 1 (no retry on auth)", p.calls)
	}
}

func TestLLMClient_ExhaustionWrapsLastCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	p := &scriptedProvider{
		errs: []error{
			&ProviderError{Class: ErrClassNetwork, Err: cause},
			&ProviderError{Class: ErrClassNetwork, Err: cause},
			&ProviderError{Class: ErrClassNetwork, Err: cause},
		},
	}
	c := newTestClient(p)

	_, _, err := c.Invoke(context.Background(), SystemUserPrompt("s", "u"))
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err=%v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("attempts=%d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("original cause lost: %v", err)
	}
}

func TestLLMClient_UnknownErrorWrappedNonRetryable(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{errs: []error{errors.New("something odd happened")}}
	c := newTestClient(p)

	_, _, err := c.Invoke(context.Background(), SystemUserPrompt("s", "u"))
	if err == nil {
		t.Fatalf("want error")
	}
	if p.calls != 1 {
		t.Fatalf("calls=%d, want 1 (unknown errors are not retried)", p.calls)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Class != ErrClassUnknown {
		t.Fatalf("err=%v, want wrapped unknown-class provider error", err)
	}
}

func TestLLMClient_ContextCancellationPropagates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{errs: []error{context.Canceled}}
	c := newTestClient(p)
	cancel()

	_, _, err := c.Invoke(ctx, SystemUserPrompt("s", "u"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestClassify_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: ErrClassUnknown},
		{name: "provider_tagged", err: &ProviderError{Class: ErrClassPermission, Err: errors.New("x")}, want: ErrClassPermission},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrClassTimeout},
		{name: "rate_limit_text", err: errors.New("429 Too Many Requests"), want: ErrClassRateLimit},
		{name: "server_text", err: errors.New("internal server error"), want: ErrClassServer},
		{name: "auth_text", err: errors.New("invalid API key provided"), want: ErrClassAuth},
		{name: "not_found_text", err: errors.New("model not found"), want: ErrClassNotFound},
		{name: "network_text", err: errors.New("dial tcp: connection refused"), want: ErrClassNetwork},
		{name: "unknown", err: errors.New("weird"), want: ErrClassUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorClass_RetryableTable(t *testing.T) {
	t.Parallel()

	retryable := []ErrorClass{ErrClassNetwork, ErrClassTimeout, ErrClassRateLimit, ErrClassServer}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Fatalf("%v should be retryable", c)
		}
	}
	fatal := []ErrorClass{ErrClassAuth, ErrClassPermission, ErrClassBadRequest, ErrClassNotFound, ErrClassUnknown}
	for _, c := range fatal {
		if c.Retryable() {
			t.Fatalf("%v should not be retryable", c)
		}
	}
}
