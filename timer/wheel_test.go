package timer

import (
	"testing"
	"time"
)

func TestScheduleAndRun(t *testing.T) {
	w := New(4)
	base := time.Unix(1000, 0)

	var fired []string
	id := w.Schedule(base, 100*time.Millisecond, func(now time.Time, user interface{}) {
		fired = append(fired, user.(string))
	}, "a")
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	w.Run(base)
	if len(fired) != 0 {
		t.Fatalf("fired too early: %v", fired)
	}

	w.Run(base.Add(100 * time.Millisecond))
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("fired = %v", fired)
	}

	// entry is consumed, a second Run must not refire it
	w.Run(base.Add(time.Second))
	if len(fired) != 1 {
		t.Fatalf("refired: %v", fired)
	}
}

func TestScheduleFullTable(t *testing.T) {
	w := New(2)
	base := time.Unix(0, 0)
	noop := func(time.Time, interface{}) {}

	if id := w.Schedule(base, time.Second, noop, nil); id == 0 {
		t.Fatal("expected id 1")
	}
	if id := w.Schedule(base, time.Second, noop, nil); id == 0 {
		t.Fatal("expected id 2")
	}
	if id := w.Schedule(base, time.Second, noop, nil); id != 0 {
		t.Fatalf("expected table-full 0, got %d", id)
	}
}

func TestCancelIdempotent(t *testing.T) {
	w := New(4)
	base := time.Unix(0, 0)
	var ran bool
	id := w.Schedule(base, time.Second, func(time.Time, interface{}) { ran = true }, nil)

	w.Cancel(0) // must not panic
	w.Cancel(id)
	w.Cancel(id) // idempotent

	w.Run(base.Add(time.Hour))
	if ran {
		t.Fatal("cancelled timer fired")
	}
}

func TestNextIsEarliest(t *testing.T) {
	w := New(4)
	base := time.Unix(0, 0)
	noop := func(time.Time, interface{}) {}

	w.Schedule(base, 5*time.Second, noop, nil)
	id2 := w.Schedule(base, 1*time.Second, noop, nil)
	w.Schedule(base, 9*time.Second, noop, nil)

	next, ok := w.Next()
	if !ok {
		t.Fatal("expected a deadline")
	}
	want := base.Add(1 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}

	w.Cancel(id2)
	next, ok = w.Next()
	if !ok || !next.Equal(base.Add(5*time.Second)) {
		t.Fatalf("Next after cancel = %v, %v", next, ok)
	}
}

func TestRescheduleFromCallback(t *testing.T) {
	w := New(4)
	base := time.Unix(0, 0)

	var count int
	var self func(now time.Time, user interface{})
	self = func(now time.Time, user interface{}) {
		count++
		if count < 3 {
			w.Schedule(now, time.Second, self, nil)
		}
	}
	w.Schedule(base, time.Second, self, nil)

	w.Run(base.Add(time.Second))
	w.Run(base.Add(2 * time.Second))
	w.Run(base.Add(3 * time.Second))

	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
