package seqnum

import "testing"

func TestLessThanWrap(t *testing.T) {
	a := Value(0xfffffff0)
	b := Value(0x00000010)
	if !a.LessThan(b) {
		t.Fatalf("expected %v < %v across the 2^32 wrap", a, b)
	}
	if b.LessThan(a) {
		t.Fatalf("expected %v to not be < %v", b, a)
	}
}

func TestSizeWrap(t *testing.T) {
	a := Value(0xfffffff0)
	b := Value(0x00000010)
	if got, want := a.Size(b), Size(0x20); got != want {
		t.Fatalf("Size() = %#x, want %#x", got, want)
	}
}

func TestInWindowAcrossWrap(t *testing.T) {
	// receive_next = 2^32 - 100, segment seq = 2^32 - 50, len = 200:
	// contiguous across the wrap per spec.md §8.
	rcvNxt := Value(0).Sub(100)
	segStart := Value(0).Sub(50)
	if !segStart.InWindow(rcvNxt, 1<<20) {
		t.Fatalf("expected %v to be in window starting at %v", segStart, rcvNxt)
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	v := Value(10)
	if got := v.Add(5).Sub(5); got != v {
		t.Fatalf("Add/Sub round trip = %v, want %v", got, v)
	}
}

func TestMaxMin(t *testing.T) {
	a := Value(0xfffffff0)
	b := Value(0x00000010)
	if Max(a, b) != b {
		t.Fatalf("Max(%v, %v) = wrong value", a, b)
	}
	if Min(a, b) != a {
		t.Fatalf("Min(%v, %v) = wrong value", a, b)
	}
}
