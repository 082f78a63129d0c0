// Package convergence implements the field-granularity last-writer-wins
// rule every replica converges to (spec §4.3). It is intentionally the
// teacher's simplest kind of package: no I/O, no state, one decision.
package convergence

import "time"

// Stamped is anything carrying the two values LWW compares.
type Stamped struct {
	UpdatedAt time.Time
	WriterID  string
}

// Wins reports whether incoming supersedes current under the spec's rule:
// the write with the larger timestamp wins; ties are broken by lexicographic
// order of writer id, larger wins (spec §4.3 fixes the comparison but not
// the tie direction — this implementation picks the larger writer id
// consistently on every replica, which is all the spec requires for
// convergence).
func Wins(current, incoming Stamped) bool {
	if incoming.UpdatedAt.After(current.UpdatedAt) {
		return true
	}
	if incoming.UpdatedAt.Before(current.UpdatedAt) {
		return false
	}
	return incoming.WriterID > current.WriterID
}

// Max returns the later of two stamps, used when merging per-field history
// (e.g. computing the final updatedAt across all committed writes to an
// object for the §8 invariant "final stored updatedAt equals max(updatedAt
// across all committed writes)").
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
