package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("all engines failed")

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of candidates, each behind a breaker.
// Entries are added before first use and never removed.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
}

// Add appends a candidate. A nil breaker gets a fresh default one.
func (fg *FallbackGroup[T]) Add(name string, value T, breaker *CircuitBreaker) {
	if breaker == nil {
		breaker = NewCircuitBreaker(CircuitBreakerConfig{Name: name})
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: value, breaker: breaker})
}

// Len returns the number of candidates.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// ExecuteWithResult calls fn with each candidate in order until one
// succeeds. Entries with an open breaker are skipped. When all fail the
// error wraps both [ErrAllFailed] and the last failure.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		var result R
		err := e.breaker.Execute(func() error {
			var err error
			result, err = fn(e.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Warn("using fallback engine", "engine", e.name, "primary", fg.entries[0].name)
			}
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping engine, circuit open", "engine", e.name)
		} else if i < len(fg.entries)-1 {
			slog.Warn("engine failed, trying next", "engine", e.name, "err", err)
		}
	}
	if lastErr == nil {
		return zero, ErrAllFailed
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
