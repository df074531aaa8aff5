// Package report defines the aggregate result of one backup run, the shape
// handed to an external renderer. Grounded on
// original_source/pybackup2.py's `results = {...}` dict, which the Python
// reference hands straight to Jinja; this package stops at the plain
// struct, per spec.md §6 ("Consumed only by the external report renderer").
package report

import "cyclicbackup/internal/counters"

// Report is the final outcome of a run: the counter snapshot plus
// whatever diagnostic lines and informational messages accumulated.
type Report struct {
	Counters counters.Snapshot
	Errors   []string
	Messages []string
}
