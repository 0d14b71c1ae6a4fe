package tcp

import (
	"time"

	"github.com/kbypass/estack/buffer"
)

// Push appends data to the unsent queue and wakes the background sender;
// it does not wait for queue or window space. It returns ErrClosedForSend
// if the local side has already called Close.
func (cb *ControlBlock) Push(data []byte) error {
	cb.mu.Lock()
	if cb.localClosed {
		cb.mu.Unlock()
		return ErrClosedForSend
	}
	if cb.state == StateClosed {
		cb.mu.Unlock()
		return ErrInvalidState
	}
	cb.snd.Push(buffer.View(data))
	cb.mu.Unlock()

	cb.unsentDataWaker.Assert()
	return nil
}

// Pop removes up to len(buf) bytes of received data into buf, returning
// the number of bytes copied. It never blocks; a return of 0 means no
// data is currently available.
func (cb *ControlBlock) Pop(buf []byte) int {
	n := len(buf)
	data := cb.rcv.Pop(&n)
	copy(buf, data)
	return len(data)
}

// PopWait blocks until at least one byte of data (or the peer's FIN) is
// available, or timeout elapses first, in which case it returns
// ErrTimedOut with buf untouched, per spec.md §5's "pop(size) with a
// deadline" contract. A zero timeout blocks indefinitely.
func (cb *ControlBlock) PopWait(buf []byte, timeout time.Duration) (int, error) {
	data, err := cb.rcv.PopWait(len(buf), timeout, cb.rt)
	if err != nil {
		return 0, err
	}
	copy(buf, data)
	return len(data), nil
}

// Available reports how many received bytes are waiting to be popped.
func (cb *ControlBlock) Available() int {
	return cb.rcv.Available()
}

// WaitForFin blocks until the peer's FIN has been received in-order and
// every byte preceding it has been popped, surfacing EOF to the caller.
func (cb *ControlBlock) WaitForFin() {
	cb.rcv.WaitForFin()
}
