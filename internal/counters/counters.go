// Package counters holds the atomic run counters shared between the driver,
// the selector passes, and AckReader. Every field maps 1-to-1 to a Selector
// skip/admit reason or an AckReader/driver outcome (spec.md §4.3, §4.6).
package counters

import "sync/atomic"

// Counters is safe for concurrent increment from any goroutine in a run.
type Counters struct {
	BackedUp    atomic.Uint64
	Incremental atomic.Uint64
	Cyclic      atomic.Uint64
	TooRecent   atomic.Uint64
	SameOld     atomic.Uint64
	Excluded    atomic.Uint64
	Permissions atomic.Uint64
	Removed     atomic.Uint64
}

// Snapshot is a point-in-time, non-atomic copy suitable for building a
// report.Report at the end of a run.
type Snapshot struct {
	BackedUp    uint64
	Incremental uint64
	Cyclic      uint64
	TooRecent   uint64
	SameOld     uint64
	Excluded    uint64
	Permissions uint64
	Removed     uint64
}

// Snapshot reads every counter once.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BackedUp:    c.BackedUp.Load(),
		Incremental: c.Incremental.Load(),
		Cyclic:      c.Cyclic.Load(),
		TooRecent:   c.TooRecent.Load(),
		SameOld:     c.SameOld.Load(),
		Excluded:    c.Excluded.Load(),
		Permissions: c.Permissions.Load(),
		Removed:     c.Removed.Load(),
	}
}
