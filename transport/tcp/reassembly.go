package tcp

import (
	"container/list"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/seqnum"
)

// oooSegment is one out-of-order run of bytes held by the reassembler,
// identified by the sequence number of its first byte.
type oooSegment struct {
	seq  seqnum.Value
	data buffer.View
}

func (s oooSegment) end() seqnum.Value {
	return s.seq.Add(seqnum.Size(len(s.data)))
}

// reassembler holds segments that arrived ahead of RCV.NXT, keeping them
// sorted by starting sequence number with no two entries overlapping, per
// spec.md §4.3's six-case insertion algorithm. Entries are evicted,
// highest-offset first, once the configured cap is exceeded.
type reassembler struct {
	segments *list.List // of oooSegment, ascending by seq
	maxEntries int
}

func newReassembler(maxEntries int) *reassembler {
	return &reassembler{
		segments:   list.New(),
		maxEntries: maxEntries,
	}
}

// Insert adds a newly arrived out-of-order segment, merging with and
// trimming any overlapping neighbors. The six cases, in the order
// spec.md §4.3 lists them:
//
//  1. New segment is entirely before an existing one with no overlap:
//     insert before it.
//  2. New segment overlaps the front of an existing one: trim the new
//     segment's tail to the existing one's start, then insert before it
//     (or discard the new segment if nothing is left).
//  3. New segment is identical to or a subset of an existing one:
//     discard the new segment.
//  4. New segment overlaps the tail of an existing one: trim the new
//     segment's head to where the existing one ends, then keep
//     comparing the trimmed remainder against its neighbors.
//  5. New segment entirely contains an existing one: remove the
//     existing one and continue comparing against its neighbors.
//  6. New segment is entirely after every existing one: append at the
//     end.
func (r *reassembler) Insert(seq seqnum.Value, data buffer.View) {
	if len(data) == 0 {
		return
	}
	seg := oooSegment{seq: seq, data: data}

	e := r.segments.Front()
	for e != nil {
		cur := e.Value.(oooSegment)
		next := e.Next()

		switch {
		case seg.end().LessThanEq(cur.seq):
			// Case 1: entirely before cur, no overlap.
			r.segments.InsertBefore(seg, e)
			r.enforceCap()
			return

		case seg.seq.LessThan(cur.seq) && cur.seq.LessThan(seg.end()):
			// seg starts before cur and overlaps it.
			if cur.end().LessThanEq(seg.end()) {
				// Case 5: seg entirely contains cur; drop cur and
				// keep comparing seg against cur's neighbors.
				r.segments.Remove(e)
				e = next
				continue
			}
			// Case 2: trim seg's tail to cur's start.
			overlap := int(cur.seq.Size(seg.end()))
			seg.data = seg.data[:len(seg.data)-overlap]
			if len(seg.data) == 0 {
				return
			}
			r.segments.InsertBefore(seg, e)
			r.enforceCap()
			return

		case seg.seq.InRange(cur.seq, cur.end()) && seg.end().LessThanEq(cur.end()):
			// Case 3: seg is a subset of (or identical to) cur.
			return

		case seg.seq.InRange(cur.seq, cur.end()):
			// Case 4: seg overlaps cur's tail; trim seg's head to
			// start where cur ends and keep comparing the
			// remainder against cur's neighbors. cur is left
			// untouched.
			trim := int(seg.seq.Size(cur.end()))
			seg.data = seg.data[trim:]
			seg.seq = cur.end()
			if len(seg.data) == 0 {
				return
			}
			e = next
			continue

		default:
			// Case 6 (for this neighbor): entirely after cur, check
			// the next one.
			e = next
		}
	}

	// Entirely after every existing segment.
	r.segments.PushBack(seg)
	r.enforceCap()
}

// enforceCap evicts the highest-offset segment(s) once the entry count
// exceeds the configured maximum, per spec.md §9's tunable cap.
func (r *reassembler) enforceCap() {
	for r.maxEntries > 0 && r.segments.Len() > r.maxEntries {
		r.segments.Remove(r.segments.Back())
	}
}

// Extract removes and returns the run of bytes starting exactly at want,
// if the front entry begins there, advancing the caller's receive
// pointer. Returns false if no entry starts at want.
func (r *reassembler) Extract(want seqnum.Value) (buffer.View, bool) {
	e := r.segments.Front()
	if e == nil {
		return nil, false
	}
	cur := e.Value.(oooSegment)
	if cur.seq != want {
		return nil, false
	}
	r.segments.Remove(e)
	return cur.data, true
}

// Empty reports whether the reassembler holds no segments.
func (r *reassembler) Empty() bool {
	return r.segments.Len() == 0
}
