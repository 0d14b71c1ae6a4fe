package buffer

import "errors"

// ErrNoHeadroom is returned by Prepend when the requested size exceeds the
// headroom reserved when the Prependable was allocated.
var ErrNoHeadroom = errors.New("buffer: not enough headroom to prepend")

// Prependable is a buffer that grows backwards, that is, more data can be
// prepended to it. It is useful when building networking packets, where each
// protocol adds its own headers to the front of the higher-level protocol
// header and payload; for example, TCP would prepend its header to the
// payload, then IP would prepend its own, then ethernet. This is the
// headroom-reservation half of spec.md §6/§9's Buffer capability.
type Prependable struct {
	// buf is the buffer backing the prependable buffer.
	buf View

	// usedIdx is the index where the used part of the buffer begins.
	usedIdx int
}

// NewPrependable allocates a new prependable buffer with the given amount
// of headroom.
func NewPrependable(size int) Prependable {
	return Prependable{buf: NewView(size), usedIdx: size}
}

// Prepend reserves the requested space in front of the buffer, returning a
// slice that represents the reserved space. It returns ErrNoHeadroom if
// less than size bytes of headroom remain.
func (p *Prependable) Prepend(size int) ([]byte, error) {
	if size > p.usedIdx {
		return nil, ErrNoHeadroom
	}

	p.usedIdx -= size
	return p.buf[p.usedIdx:][:size:size], nil
}

// UsedLength returns the number of bytes used so far.
func (p *Prependable) UsedLength() int {
	return len(p.buf) - p.usedIdx
}

// UsedBytes returns a slice of the backing buffer that contains all
// prepended data so far.
func (p *Prependable) UsedBytes() []byte {
	return p.buf[p.usedIdx:]
}

// View returns a View of the backing buffer that contains all prepended
// data so far.
func (p *Prependable) View() View {
	v := p.buf
	v.TrimFront(p.usedIdx)
	return v
}
