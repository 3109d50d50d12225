package q931

import "time"

// Per-call timer defaults, spec.md §4.5.
const (
	DefaultT303 = 4 * time.Second   // SETUP response wait
	DefaultT305 = 30 * time.Second  // DISCONNECT -> RELEASE
	DefaultT308 = 4 * time.Second   // RELEASE -> RELEASE_COMPLETE
	DefaultT310 = 30 * time.Second  // PROCEEDING -> next progress/alert/connect
	DefaultT316 = 120 * time.Second // RESTART cycle
	DefaultN316 = 2                // restart retry cycles; Engine does not use it and never resends RESTART
)

// Timers holds the per-controller overridable timer values named in
// spec.md §6.2 "per-timer override by index".
type Timers struct {
	T303, T305, T308, T310, T316 time.Duration
}

// DefaultTimers returns the spec.md §4.5 defaults.
func DefaultTimers() Timers {
	return Timers{T303: DefaultT303, T305: DefaultT305, T308: DefaultT308, T310: DefaultT310, T316: DefaultT316}
}
