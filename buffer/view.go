// Package buffer implements the zero-copy byte buffer capability consumed
// by the TCP engine (spec.md §6): a View with front-split, tail-trim,
// front-adjust and headroom-reservation operations, all view-based so the
// ingress fast path never copies payload bytes.
package buffer

// View is a slice of a buffer, with convenience methods. The zero-length
// View returned by NewView(0) doubles as the "FIN marker" buffer pushed
// onto a receive queue to unblock readers with EOF (spec.md §4.2).
type View []byte

// NewView allocates a new buffer and returns an initialized view that
// covers the whole buffer.
func NewView(size int) View {
	return make(View, size)
}

// Len returns the number of bytes currently visible in the view.
func (v View) Len() int {
	return len(v)
}

// CapLength irreversibly reduces the length of the visible section of the
// buffer to the value specified.
func (v *View) CapLength(length int) {
	// We also set the slice cap because if we don't, one would be able to
	// expand the view back to include the region just excluded. We want to
	// prevent that to avoid potential data leak if we have uninitialized
	// data in excluding region.
	*v = (*v)[:length:length]
}

// TrimFront advances the head of the view by count bytes (the "adjust"
// operation of spec.md §9).
func (v *View) TrimFront(count int) {
	*v = (*v)[count:]
}

// TrimTail shortens the view by count bytes from the tail.
func (v *View) TrimTail(count int) {
	v.CapLength(len(*v) - count)
}

// SplitFront returns the first n bytes of the view as an independent View
// (sharing the same backing array) and advances the receiver past them,
// mirroring spec.md §4.2's Receiver.pop split-front behaviour.
func (v *View) SplitFront(n int) View {
	front := (*v)[:n:n]
	*v = (*v)[n:]
	return front
}

// Clone returns an independent copy of the view's bytes.
func (v View) Clone() View {
	c := make(View, len(v))
	copy(c, v)
	return c
}
