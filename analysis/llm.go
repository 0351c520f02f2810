package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrorClass buckets provider failures for the retry dispatch table.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassNetwork
	ErrClassTimeout
	ErrClassRateLimit
	ErrClassServer
	ErrClassAuth
	ErrClassPermission
	ErrClassBadRequest
	ErrClassNotFound
)

// String returns the class name used in logs and error text.
func (c ErrorClass) String() string {
	switch c {
	case ErrClassNetwork:
		return "network"
	case ErrClassTimeout:
		return "timeout"
	case ErrClassRateLimit:
		return "rate_limit"
	case ErrClassServer:
		return "server"
	case ErrClassAuth:
		return "auth"
	case ErrClassPermission:
		return "permission"
	case ErrClassBadRequest:
		return "bad_request"
	case ErrClassNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether the class is worth a backoff-and-retry.
// Anything not explicitly retryable is treated as fatal.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrClassNetwork, ErrClassTimeout, ErrClassRateLimit, ErrClassServer:
		return true
	default:
		return false
	}
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Class ErrorClass
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RetryExhaustedError wraps the final failure after the retry budget is
// spent. It is itself classified retryable so callers can distinguish
// "gave up" from "must not retry".
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Classify maps err onto an ErrorClass. Provider adapters attach classes via
// ProviderError; everything else falls back to net error inspection and the
// usual status/keyword matching on the error text.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ErrClassTimeout
		}
		return ErrClassNetwork
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429"), strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"):
		return ErrClassRateLimit
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"),
		strings.Contains(s, "internal server error"), strings.Contains(s, "server_error"):
		return ErrClassServer
	case strings.Contains(s, "401"), strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"),
		strings.Contains(s, "authentication"):
		return ErrClassAuth
	case strings.Contains(s, "403"), strings.Contains(s, "permission"), strings.Contains(s, "forbidden"):
		return ErrClassPermission
	case strings.Contains(s, "404"), strings.Contains(s, "not found"):
		return ErrClassNotFound
	case strings.Contains(s, "400"), strings.Contains(s, "invalid request"), strings.Contains(s, "malformed"):
		return ErrClassBadRequest
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"):
		return ErrClassTimeout
	case strings.Contains(s, "connection refused"), strings.Contains(s, "connection reset"),
		strings.Contains(s, "no such host"), strings.Contains(s, "eof"):
		return ErrClassNetwork
	default:
		return ErrClassUnknown
	}
}

// PromptSegment is one role-tagged piece of a completion request.
type PromptSegment struct {
	Role    string
	Content string
}

// Prompt is an ordered list of role-tagged segments.
type Prompt []PromptSegment

// SystemUserPrompt builds the common two-segment prompt.
func SystemUserPrompt(system, user string) Prompt {
	return Prompt{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// CompletionMeta is optional usage metadata returned with a completion.
type CompletionMeta struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// CompletionProvider is the underlying text-completion contract. Concrete
// providers live in the provider subpackage and are chosen by a factory at
// startup.
type CompletionProvider interface {
	Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error)
}

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second
	defaultBackoffFactor  = 2.0
)

// LLMClient wraps a CompletionProvider with retry-and-backoff. Only
// retryable error classes trigger another attempt; everything else fails
// immediately.
type LLMClient struct {
	provider CompletionProvider
	log      zerolog.Logger

	// MaxAttempts caps total attempts (first call included).
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the delay after every failed attempt.
	BackoffFactor float64

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLLMClient returns a client with default retry settings.
func NewLLMClient(provider CompletionProvider, log zerolog.Logger) *LLMClient {
	return &LLMClient{
		provider:       provider,
		log:            log,
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		BackoffFactor:  defaultBackoffFactor,
		sleep:          sleepCtx,
	}
}

// retryState is the explicit machine driving Invoke:
// attempting -> (ok) done | (fatal) failed | (retryable) backing off ->
// attempting, until the attempt budget runs out.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackingOff
	stateDone
	stateFailed
)

// Invoke calls the provider, retrying retryable failures with exponential
// backoff. Context cancellation propagates unchanged; exhausting the budget
// returns a RetryExhaustedError wrapping the last cause.
func (c *LLMClient) Invoke(ctx context.Context, prompt Prompt) (string, CompletionMeta, error) {
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := c.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	factor := c.BackoffFactor
	if factor < 1 {
		factor = defaultBackoffFactor
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var (
		text    string
		meta    CompletionMeta
		lastErr error
		attempt int
	)

	state := stateAttempting
	for {
		switch state {
		case stateAttempting:
			attempt++
			text, meta, lastErr = c.provider.Invoke(ctx, prompt)
			if lastErr == nil {
				state = stateDone
				break
			}
			if ctx.Err() != nil {
				return "", CompletionMeta{}, ctx.Err()
			}
			class := Classify(lastErr)
			if !class.Retryable() {
				c.log.Debug().Int("attempt", attempt).Stringer("class", class).Err(lastErr).
					Msg("completion failed, not retryable")
				if class == ErrClassUnknown {
					lastErr = &ProviderError{Class: ErrClassUnknown, Err: lastErr}
				}
				state = stateFailed
				break
			}
			if attempt >= maxAttempts {
				lastErr = &RetryExhaustedError{Attempts: attempt, Err: lastErr}
				state = stateFailed
				break
			}
			c.log.Warn().Int("attempt", attempt).Stringer("class", class).
				Dur("backoff", backoff).Err(lastErr).Msg("completion failed, backing off")
			state = stateBackingOff

		case stateBackingOff:
			if err := sleep(ctx, backoff); err != nil {
				return "", CompletionMeta{}, err
			}
			backoff = time.Duration(float64(backoff) * factor)
			state = stateAttempting

		case stateDone:
			return text, meta, nil

		case stateFailed:
			return "", CompletionMeta{}, lastErr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
