// Package seqnum implements TCP sequence-number arithmetic: 32-bit values
// that wrap modulo 2³² under addition and subtraction, and whose ordering
// follows RFC 1323's serial-number comparison rule rather than raw
// unsigned integer ordering (spec.md §3, §9). The teacher's transport/tcp
// package (rcv.go, snd.go, segment.go) already names this package and its
// Value/Size types throughout; this file supplies the implementation that
// was filtered out of the retrieval pack.
package seqnum

// Value is a sequence number: the position of a single byte in a TCP
// stream, modulo 2³².
type Value uint32

// Size is a difference between two Values, or the length of a run of
// sequence space.
type Size uint32

// Add returns v+delta, wrapping modulo 2³².
func (v Value) Add(delta Size) Value {
	return v + Value(delta)
}

// Sub returns v-delta, wrapping modulo 2³².
func (v Value) Sub(delta Size) Value {
	return v - Value(delta)
}

// Size returns the number of bytes from v up to but not including to,
// i.e. to-v, wrapping modulo 2³². Size(v, v) is 0.
func (v Value) Size(to Value) Size {
	return Size(to - v)
}

// LessThan implements the RFC 1323 serial-number comparison: v < w iff
// (w-v) mod 2³² is in (0, 2³¹).
func (v Value) LessThan(w Value) bool {
	return int32(w-v) > 0
}

// LessThanEq reports whether v < w or v == w under serial-number order.
func (v Value) LessThanEq(w Value) bool {
	return v == w || v.LessThan(w)
}

// InRange reports whether v is in [lo, hi) under serial-number order,
// i.e. lo <= v < hi with wraparound, where the interval's length is
// assumed to be less than 2³¹.
func (v Value) InRange(lo, hi Value) bool {
	return lo.LessThanEq(v) && v.LessThan(hi)
}

// InWindow reports whether v is in [first, first+size) under
// serial-number order.
func (v Value) InWindow(first Value, size Size) bool {
	if size == 0 {
		return false
	}
	return v.InRange(first, first.Add(size))
}

// Max returns the serial-number-order maximum of a and b.
func Max(a, b Value) Value {
	if a.LessThan(b) {
		return b
	}
	return a
}

// Min returns the serial-number-order minimum of a and b.
func Min(a, b Value) Value {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxSize returns the larger of a and b.
func MaxSize(a, b Size) Size {
	if a > b {
		return a
	}
	return b
}

// MinSize returns the smaller of a and b.
func MinSize(a, b Size) Size {
	if a < b {
		return a
	}
	return b
}
