package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestGroup_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	g := NewGroup[string]()
	g.Add("primary", "a")
	g.Add("backup", "b")

	got, err := Do(g, func(v string) (string, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "a" {
		t.Fatalf("Do() = %q, want %q", got, "a")
	}
}

func TestGroup_FallsBackOnFailure(t *testing.T) {
	t.Parallel()

	g := NewGroup[string]()
	g.Add("primary", "a")
	g.Add("backup", "b")

	got, err := Do(g, func(v string) (string, error) {
		if v == "a" {
			return "", errBoom
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "b" {
		t.Fatalf("Do() = %q, want %q", got, "b")
	}
}

func TestGroup_AllFail(t *testing.T) {
	t.Parallel()

	g := NewGroup[string]()
	g.Add("primary", "a")
	g.Add("backup", "b")

	_, err := Do(g, func(string) (string, error) {
		return "", errBoom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	g := NewGroup[string](WithFailLimit(1), WithCooldown(time.Hour))
	g.Add("primary", "a")
	g.Add("backup", "b")

	// Trip the primary's breaker.
	if _, err := Do(g, func(v string) (string, error) {
		if v == "a" {
			return "", errBoom
		}
		return v, nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	// Primary must not be called again while its breaker is open.
	calls := 0
	got, err := Do(g, func(v string) (string, error) {
		calls++
		if v == "a" {
			t.Fatal("primary called with open breaker")
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "b" || calls != 1 {
		t.Fatalf("Do() = %q with %d calls, want %q with 1 call", got, calls, "b")
	}
}

func TestGroup_EmptyExhaustsImmediately(t *testing.T) {
	t.Parallel()

	g := NewGroup[int]()
	_, err := Do(g, func(int) (int, error) { return 0, nil })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
}
