package types

import "sync/atomic"

// SeqAny stamps a write that no local change can supersede.
const SeqAny = ^uint64(0)

// Sequence counts the changes a watcher has reported, per kind.
//
// Every reported Update carries the count it was reported with. A write for
// a side is stamped with the latest count of that side the coordinator had
// seen when it decided to write. If the side has reported a change since,
// the write is stale: the newer local value is already on its way to the
// other side and the write must be skipped so both sides converge on it.
type Sequence struct {
	counts [2]atomic.Uint64
}

// Next records a new local change of kind and returns its number.
func (s *Sequence) Next(kind SelectionKind) uint64 {
	return s.counts[kind].Add(1)
}

// Current returns the number of the latest local change of kind.
func (s *Sequence) Current(kind SelectionKind) uint64 {
	return s.counts[kind].Load()
}

// Superseded reports whether a local change of kind was reported that the
// writer had not seen when it stamped its write with seen.
func (s *Sequence) Superseded(kind SelectionKind, seen uint64) bool {
	return s.Current(kind) > seen
}
