package gesture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSession struct {
	mu        sync.Mutex
	calls     []string
	beginErr  error
	blockAuth bool
}

func (f *fakeSession) Begin(ctx context.Context) error {
	f.record("begin")
	if f.blockAuth {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.beginErr
}

func (f *fakeSession) Commit() { f.record("commit") }
func (f *fakeSession) Cancel() { f.record("cancel") }

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSession) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func waitForCalls(t *testing.T, session *fakeSession, want ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if equalCalls(session.snapshot(), want) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected calls %v, got %v", want, session.snapshot())
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func waitListening(t *testing.T, c *PressHoldController) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State().Listening {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("long press never fired")
}

func TestReleaseWithoutDragCommits(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	c := NewPressHoldController(session, 5*time.Millisecond, nil, zerolog.Nop())
	defer c.Close()

	c.PointerDown()
	waitListening(t, c)
	if c.Hint() != HintListening {
		t.Fatalf("unexpected hint %q", c.Hint())
	}
	c.PointerMove(12)
	c.PointerUp()

	waitForCalls(t, session, "begin", "commit")
	if c.Hint() != HintIdle {
		t.Fatalf("expected idle hint, got %q", c.Hint())
	}
}

func TestDragAboveOriginCancels(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	var mu sync.Mutex
	var seen []State
	c := NewPressHoldController(session, 5*time.Millisecond, func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}, zerolog.Nop())
	defer c.Close()

	c.PointerDown()
	waitListening(t, c)
	c.PointerMove(-50)
	if state := c.State(); !state.CancelRequested || state.Hint != HintCancel {
		t.Fatalf("expected cancel requested, got %+v", state)
	}
	c.PointerUp()

	waitForCalls(t, session, "begin", "cancel")
	state := c.State()
	if state.Offset != 0 || state.CancelRequested || state.Listening {
		t.Fatalf("expected reset state, got %+v", state)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected three observed states, got %+v", seen)
	}
	cancelHints, idle := 0, 0
	for _, s := range seen {
		if s.Hint == HintCancel {
			cancelHints++
		}
		if !s.Listening {
			idle++
		}
	}
	if cancelHints != 1 || idle != 1 {
		t.Fatalf("unexpected observed states %+v", seen)
	}
}

func TestDragBackBelowOriginCommits(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	c := NewPressHoldController(session, 5*time.Millisecond, nil, zerolog.Nop())
	defer c.Close()

	c.PointerDown()
	waitListening(t, c)
	c.PointerMove(-20)
	c.PointerMove(0)
	c.PointerUp()

	waitForCalls(t, session, "begin", "commit")
}

func TestShortPressNeverStartsSession(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	c := NewPressHoldController(session, 50*time.Millisecond, nil, zerolog.Nop())

	c.PointerDown()
	c.PointerMove(-10)
	c.PointerUp()
	time.Sleep(80 * time.Millisecond)
	c.Close()

	if calls := session.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no session calls, got %v", calls)
	}
	if c.State().Listening {
		t.Fatalf("expected idle state")
	}
}

func TestReleaseDuringAuthorizationAbandonsBegin(t *testing.T) {
	t.Parallel()

	session := &fakeSession{blockAuth: true}
	c := NewPressHoldController(session, time.Millisecond, nil, zerolog.Nop())
	defer c.Close()

	c.LongPress()
	waitForCalls(t, session, "begin")
	c.PointerUp()

	waitForCalls(t, session, "begin", "commit")
}

func TestLongPressIsIgnoredWhileListening(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	c := NewPressHoldController(session, time.Hour, nil, zerolog.Nop())
	defer c.Close()

	c.PointerDown()
	c.LongPress()
	c.LongPress()
	c.PointerUp()

	waitForCalls(t, session, "begin", "commit")
}

func TestDefaultThreshold(t *testing.T) {
	t.Parallel()

	c := NewPressHoldController(&fakeSession{}, 0, nil, zerolog.Nop())
	defer c.Close()
	if c.threshold != DefaultLongPress {
		t.Fatalf("expected default threshold, got %v", c.threshold)
	}
}
