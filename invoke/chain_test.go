package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// traceMW appends "before_N" on entry and "after_N" after proceed resolves.
func traceMW(n int, trace *[]string) Middleware {
	return func(ctx context.Context, ictx *Context, proceed func() error) error {
		*trace = append(*trace, fmt.Sprintf("before_%d", n))
		if err := proceed(); err != nil {
			return err
		}
		*trace = append(*trace, fmt.Sprintf("after_%d", n))
		return nil
	}
}

func TestChain_OnionOrdering(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			chain := NewChain()
			var trace []string
			for i := 1; i <= n; i++ {
				chain.Use(traceMW(i, &trace))
			}

			ictx := NewContext("t", nil, Metadata{})
			err := chain.Execute(context.Background(), ictx, func(ctx context.Context, ictx *Context) error {
				trace = append(trace, "terminal")
				return nil
			})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}

			want := make([]string, 0, 2*n+1)
			for i := 1; i <= n; i++ {
				want = append(want, fmt.Sprintf("before_%d", i))
			}
			want = append(want, "terminal")
			for i := n; i >= 1; i-- {
				want = append(want, fmt.Sprintf("after_%d", i))
			}

			if len(trace) != len(want) {
				t.Fatalf("trace = %v, want %v", trace, want)
			}
			for i := range want {
				if trace[i] != want[i] {
					t.Fatalf("trace[%d] = %q, want %q (full: %v)", i, trace[i], want[i], trace)
				}
			}
		})
	}
}

func TestChain_EmptyChainRunsTerminal(t *testing.T) {
	chain := NewChain()
	if chain.HasMiddleware() {
		t.Fatal("empty chain reports HasMiddleware")
	}

	ran := false
	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Fatal("terminal did not run")
	}
}

func TestChain_MultipleProceedNamesOffender(t *testing.T) {
	// The double-proceed middleware sits at index 1, with neighbors on both
	// sides; the error must name index 1 regardless.
	chain := NewChain()
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		return proceed()
	})
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		if err := proceed(); err != nil {
			return err
		}
		return proceed()
	})
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		return proceed()
	})

	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), noopTerminal)
	ie, ok := AsError(err)
	if !ok {
		t.Fatalf("Execute returned %v, want *Error", err)
	}
	if ie.Kind != KindMiddlewareControl {
		t.Errorf("Kind = %s, want %s", ie.Kind, KindMiddlewareControl)
	}
	if ie.Position != 1 {
		t.Errorf("Position = %d, want 1", ie.Position)
	}
}

func TestChain_ProceedTrackingResetsBetweenExecutes(t *testing.T) {
	chain := NewChain()
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		return proceed()
	})

	for i := 0; i < 3; i++ {
		err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), noopTerminal)
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
}

func TestChain_ShortCircuitSkipsDownstream(t *testing.T) {
	chain := NewChain()
	var trace []string
	chain.Use(traceMW(1, &trace))
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		trace = append(trace, "short")
		return nil // never proceeds
	})
	chain.Use(traceMW(3, &trace))

	terminalRan := false
	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		terminalRan = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if terminalRan {
		t.Error("terminal ran despite short-circuit")
	}
	want := []string{"before_1", "short", "after_1"}
	if fmt.Sprint(trace) != fmt.Sprint(want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestChain_ErrorUnwindsInReverseOrder(t *testing.T) {
	chain := NewChain()
	var seen []int
	for i := 0; i < 3; i++ {
		i := i
		chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
			err := proceed()
			if err != nil {
				seen = append(seen, i)
			}
			return err
		})
	}

	boom := errors.New("boom")
	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute = %v, want boom", err)
	}
	want := []int{2, 1, 0}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("unwind order = %v, want %v", seen, want)
	}
}

func TestChain_AncestorCanSuppressError(t *testing.T) {
	chain := NewChain()
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		if err := proceed(); err != nil {
			ictx.SetResponse(map[string]any{"recovered": true})
			return nil
		}
		return nil
	})

	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		return errors.New("downstream failure")
	})
	if err != nil {
		t.Fatalf("Execute = %v, want suppressed error", err)
	}
}

func TestChain_StateVisibleDownstream(t *testing.T) {
	chain := NewChain()
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		ictx.Set("user", "u1")
		return proceed()
	})
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		if v, _ := ictx.Get("user"); v != "u1" {
			t.Errorf("downstream middleware sees user = %v, want u1", v)
		}
		return proceed()
	})

	err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		if v, _ := ictx.Get("user"); v != "u1" {
			t.Errorf("terminal sees user = %v, want u1", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestChain_WritesAfterProceedVisibleUpstream(t *testing.T) {
	chain := NewChain()
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		if err := proceed(); err != nil {
			return err
		}
		if v, _ := ictx.Get("late"); v != "written" {
			t.Errorf("outer middleware sees late = %v, want written", v)
		}
		return nil
	})
	chain.Use(func(ctx context.Context, ictx *Context, proceed func() error) error {
		if err := proceed(); err != nil {
			return err
		}
		ictx.Set("late", "written")
		return nil
	})

	if err := chain.Execute(context.Background(), NewContext("t", nil, Metadata{}), noopTerminal); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestWithTimeout_DeadlineWins(t *testing.T) {
	chain := NewChain()
	chain.Use(WithTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	err := chain.Execute(context.Background(), NewContext("slow", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		<-release
		return nil
	})
	ie, ok := AsError(err)
	if !ok || ie.Kind != KindMiddlewareControl {
		t.Fatalf("Execute = %v, want MIDDLEWARE_CONTROL timeout", err)
	}
}

func TestWithTimeout_AbandonedTerminalWritesSafely(t *testing.T) {
	// An abandoned terminal keeps running after the timeout fires and still
	// writes the response key; the caller's error path reads the same state
	// concurrently. Both sides must be safe under the race detector.
	chain := NewChain()
	chain.Use(WithTimeout(10 * time.Millisecond))

	release := make(chan struct{})
	wrote := make(chan struct{})
	ictx := NewContext("slow", nil, Metadata{})

	err := chain.Execute(context.Background(), ictx, func(ctx context.Context, ictx *Context) error {
		<-release
		ictx.Set("started", time.Now())
		ictx.SetResponse(map[string]any{"late": true})
		close(wrote)
		return nil
	})
	ie, ok := AsError(err)
	if !ok || ie.Kind != KindMiddlewareControl {
		t.Fatalf("Execute = %v, want MIDDLEWARE_CONTROL timeout", err)
	}

	close(release)
	for i := 0; i < 100; i++ {
		ictx.Get("started")
		ictx.HasResponse()
	}
	<-wrote
	if !ictx.HasResponse() {
		t.Error("abandoned terminal's response write was lost")
	}
}

func TestWithTimeout_FastPathPassesThrough(t *testing.T) {
	chain := NewChain()
	chain.Use(WithTimeout(time.Second))

	err := chain.Execute(context.Background(), NewContext("fast", nil, Metadata{}), func(ctx context.Context, ictx *Context) error {
		ictx.SetResponse(map[string]any{"ok": true})
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func noopTerminal(ctx context.Context, ictx *Context) error {
	return nil
}
