package tcp

import (
	"testing"
	"time"

	"github.com/kbypass/estack/buffer"
	"github.com/kbypass/estack/seqnum"
)

func TestReceiverPushAndPop(t *testing.T) {
	r := newReceiver(seqnum.Value(100), seqnum.Size(4096))
	r.Push(buffer.View("hello"))

	if got := r.Available(); got != 5 {
		t.Fatalf("Available() = %d, want 5", got)
	}

	buf := make([]byte, 3)
	n := len(buf)
	out := r.Pop(&n)
	copy(buf, out)
	if string(buf[:len(out)]) != "hel" {
		t.Fatalf("Pop = %q, want \"hel\"", buf[:len(out)])
	}
	if r.Available() != 2 {
		t.Fatalf("Available() after partial pop = %d, want 2", r.Available())
	}
}

func TestReceiverPushFinAndWaitForFin(t *testing.T) {
	r := newReceiver(seqnum.Value(0), seqnum.Size(4096))
	r.Push(buffer.View("ab"))
	r.PushFin()

	done := make(chan struct{})
	go func() {
		r.WaitForFin()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitForFin returned before pending bytes were popped")
	case <-time.After(30 * time.Millisecond):
	}

	n := 2
	r.Pop(&n)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitForFin did not unblock after the last byte was popped")
	}
}

func TestReceiverShrinkWindow(t *testing.T) {
	r := newReceiver(seqnum.Value(0), seqnum.Size(10))
	r.Push(buffer.View("0123456789"))
	r.shrinkWindow(10)

	_, wnd := r.acceptableWindow()
	if wnd != 0 {
		t.Fatalf("rcvWnd = %d, want 0 once the buffer is full", wnd)
	}
}
