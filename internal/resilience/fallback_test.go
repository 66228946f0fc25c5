package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(names ...string) *FallbackGroup[string] {
	fg := &FallbackGroup[string]{}
	for _, n := range names {
		fg.Add(n, n, NewCircuitBreaker(CircuitBreakerConfig{Name: n, MaxFailures: 2, ResetTimeout: time.Hour}))
	}
	return fg
}

func TestExecuteWithResult_PrimarySuccess(t *testing.T) {
	fg := newGroup("primary", "secondary")
	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := newGroup("primary", "secondary")
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want secondary", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := newGroup("primary", "secondary")
	_, err := ExecuteWithResult(fg, func(string) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the last failure wrapped", err)
	}
}

func TestExecuteWithResult_Empty(t *testing.T) {
	_, err := ExecuteWithResult(&FallbackGroup[string]{}, func(string) (int, error) { return 1, nil })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestExecuteWithResult_SkipsOpenCircuit(t *testing.T) {
	fg := newGroup("primary", "secondary")
	calls := map[string]int{}
	fn := func(v string) (string, error) {
		calls[v]++
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}
	for range 2 {
		if _, err := ExecuteWithResult(fg, fn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// The primary's breaker is open now and must not be called again.
	if _, err := ExecuteWithResult(fg, fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls["primary"] != 2 {
		t.Errorf("primary calls = %d, want 2", calls["primary"])
	}
	if calls["secondary"] != 3 {
		t.Errorf("secondary calls = %d, want 3", calls["secondary"])
	}
}

func TestFallbackGroup_AddDefaultsBreaker(t *testing.T) {
	fg := &FallbackGroup[int]{}
	fg.Add("one", 1, nil)
	if fg.Len() != 1 || fg.entries[0].breaker == nil {
		t.Fatal("Add with a nil breaker did not create one")
	}
}
