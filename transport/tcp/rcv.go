package tcp

import (
	"sync"
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/iface"
	"github.com/kbypass/estack/seqnum"
)

// receiver holds the receive side of a ControlBlock's sequence space:
// RCV.NXT and RCV.WND (spec.md §4.2), plus the queue of in-order bytes
// that have been accepted but not yet popped by the application, and the
// bookkeeping needed to observe the peer's FIN.
//
// receiver does not lock itself for the sequence-space fields, which are
// only ever touched with the owning ControlBlock's mutex held; the
// pending byte stream and FIN state get their own lock so that Pop and
// WaitForFin can be called by the application without taking the
// ControlBlock's lock.
type receiver struct {
	rcvNxt seqnum.Value
	rcvWnd seqnum.Size

	mu sync.Mutex

	// pending is the in-order byte stream accepted so far but not yet
	// delivered to the application via Pop.
	pending buffer.View

	// finSeqNo is set once a FIN has been accepted in-order; it names the
	// sequence number the FIN occupies.
	finSeqNo    seqnum.Value
	finReceived bool

	finCond *sync.Cond
}

func newReceiver(irs seqnum.Value, wnd seqnum.Size) *receiver {
	r := &receiver{
		rcvNxt: irs,
		rcvWnd: wnd,
	}
	r.finCond = sync.NewCond(&r.mu)
	return r
}

// acceptableWindow reports the sequence range the receiver is currently
// willing to accept, per spec.md §4.1 step 1.
func (r *receiver) acceptableWindow() (seqnum.Value, seqnum.Size) {
	return r.rcvNxt, r.rcvWnd
}

// Push appends in-order data to the pending stream and advances RCV.NXT.
// The caller (ingress processing) is responsible for having already
// verified seg.SEQ == r.rcvNxt.
func (r *receiver) Push(data buffer.View) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, data...)
	r.mu.Unlock()
	r.rcvNxt = r.rcvNxt.Add(seqnum.Size(len(data)))
	r.finCond.Broadcast()
}

// PushFin records that the peer's FIN has been accepted in-order at the
// current RCV.NXT, advances RCV.NXT past it, and wakes any WaitForFin
// callers.
func (r *receiver) PushFin() {
	r.mu.Lock()
	r.finSeqNo = r.rcvNxt
	r.finReceived = true
	r.mu.Unlock()
	r.rcvNxt = r.rcvNxt.Add(1)
	r.finCond.Broadcast()
}

// Pop removes up to *size bytes from the pending stream, returning them
// and reducing *size by the amount actually popped. It never blocks;
// callers wanting to wait for data use PopWait.
func (r *receiver) Pop(size *int) buffer.View {
	r.mu.Lock()
	defer r.mu.Unlock()

	if *size <= 0 || len(r.pending) == 0 {
		return nil
	}
	n := *size
	if n > len(r.pending) {
		n = len(r.pending)
	}
	out := r.pending.SplitFront(n)
	*size -= n
	if r.finReceived && len(r.pending) == 0 {
		r.finCond.Broadcast()
	}
	return out
}

// PopWait blocks until at least one byte (or the peer's FIN) is
// available to pop, or timeout elapses first, per spec.md §5: "pop(size)
// with a deadline returns ETIMEDOUT with the queue untouched." A zero
// timeout blocks indefinitely. rt is threaded through per call, from the
// owning ControlBlock's AsyncRuntime, rather than stored on receiver, so
// Pop/PopWait/WaitForFin stay callable without the ControlBlock's mutex.
func (r *receiver) PopWait(size int, timeout time.Duration, rt iface.AsyncRuntime) (buffer.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if size <= 0 {
		return nil, nil
	}

	var timedOut bool
	if timeout > 0 {
		done := make(chan struct{})
		defer close(done)
		rt.Spawn(func() {
			select {
			case <-rt.After(timeout):
				r.mu.Lock()
				timedOut = true
				r.mu.Unlock()
				r.finCond.Broadcast()
			case <-done:
			}
		})
	}

	for len(r.pending) == 0 && !r.finReceived {
		if timedOut {
			return nil, ErrTimedOut
		}
		r.finCond.Wait()
	}

	n := size
	if n > len(r.pending) {
		n = len(r.pending)
	}
	out := r.pending.SplitFront(n)
	if r.finReceived && len(r.pending) == 0 {
		r.finCond.Broadcast()
	}
	return out, nil
}

// Available reports how many bytes are waiting to be popped.
func (r *receiver) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FinReceived reports whether the peer's FIN has been accepted in-order.
func (r *receiver) FinReceived() (seqnum.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finSeqNo, r.finReceived
}

// WaitForFin blocks until the peer's FIN has been accepted in-order and
// every byte preceding it has been popped, per spec.md §4.2's
// "Pop consuming the final byte before a received FIN surfaces EOF."
// It must be called without the owning ControlBlock's mutex held.
func (r *receiver) WaitForFin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !(r.finReceived && len(r.pending) == 0) {
		r.finCond.Wait()
	}
}

// shrinkWindow reduces RCV.WND as the pending buffer fills, implementing
// simple receive-window flow control: the advertised window never grows
// to accept bytes that can't be buffered.
func (r *receiver) shrinkWindow(bufferSize int) {
	r.mu.Lock()
	used := len(r.pending)
	r.mu.Unlock()
	if used >= bufferSize {
		r.rcvWnd = 0
		return
	}
	r.rcvWnd = seqnum.Size(bufferSize - used)
}
