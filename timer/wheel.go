// Package timer provides the fixed-capacity one-shot timer table shared by
// the Q.921 and Q.931 engines.
package timer

import "time"

// DefaultCap is the default table size, comfortably above the per-link and
// per-call timer counts a single D-channel ever holds concurrently.
const DefaultCap = 384

// ID identifies a scheduled entry. The zero ID never refers to a live entry;
// Schedule returns it when the table is full and Cancel treats it as a no-op.
type ID uint32

// Func is invoked by Run once its deadline has passed. user is the opaque
// value passed to Schedule. Func may reschedule itself via wheel.Schedule;
// by the time it runs its own slot has already been cleared.
type Func func(now time.Time, user interface{})

type entry struct {
	when time.Time
	fn   Func
	user interface{}
	used bool
}

// Wheel is a fixed-capacity table of one-shot timers. It is not safe for
// concurrent use; spec.md §5 requires a single cooperative caller, and all
// scheduling for subchannels is done against the master controller's Wheel.
type Wheel struct {
	entries []entry
	next    ID // 1-based monotonic slot cursor, wraps within len(entries)
}

// New returns a Wheel with the given capacity. Capacity<=0 uses DefaultCap.
func New(capacity int) *Wheel {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Wheel{entries: make([]entry, capacity)}
}

// Schedule arms fn to run at now+d and returns its ID, or 0 if the table is
// full.
func (w *Wheel) Schedule(now time.Time, d time.Duration, fn Func, user interface{}) ID {
	for i := range w.entries {
		idx := (int(w.next) + i) % len(w.entries)
		if !w.entries[idx].used {
			w.entries[idx] = entry{when: now.Add(d), fn: fn, user: user, used: true}
			w.next = ID(idx + 1)
			return ID(idx + 1)
		}
	}
	return 0
}

// Cancel disarms id. Cancel is idempotent, including on id 0.
func (w *Wheel) Cancel(id ID) {
	if id == 0 {
		return
	}
	idx := int(id) - 1
	if idx < 0 || idx >= len(w.entries) {
		return
	}
	w.entries[idx] = entry{}
}

// Pending reports whether id still refers to an armed timer.
func (w *Wheel) Pending(id ID) bool {
	if id == 0 {
		return false
	}
	idx := int(id) - 1
	return idx >= 0 && idx < len(w.entries) && w.entries[idx].used
}

// Next returns the earliest armed deadline and true, or the zero time and
// false if nothing is scheduled. The caller uses this to size a select/poll
// timeout: next() − now.
func (w *Wheel) Next() (time.Time, bool) {
	var earliest time.Time
	found := false
	for i := range w.entries {
		if !w.entries[i].used {
			continue
		}
		if !found || w.entries[i].when.Before(earliest) {
			earliest = w.entries[i].when
			found = true
		}
	}
	return earliest, found
}

// Run fires every entry whose deadline is at or before now. Each entry's
// callback slot is cleared before the callback itself is invoked, so a
// callback may call Schedule again (including to reschedule itself) without
// clobbering its own new entry.
func (w *Wheel) Run(now time.Time) {
	for i := range w.entries {
		e := w.entries[i]
		if !e.used || e.when.After(now) {
			continue
		}
		w.entries[i] = entry{}
		e.fn(now, e.user)
	}
}

// Len reports the number of armed timers, for diagnostics.
func (w *Wheel) Len() int {
	n := 0
	for i := range w.entries {
		if w.entries[i].used {
			n++
		}
	}
	return n
}
