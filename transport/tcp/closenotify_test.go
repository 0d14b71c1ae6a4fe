package tcp

import (
	"testing"
	"time"

	"github.com/kbypass/estack/header"
	"github.com/kbypass/estack/seqnum"
	"github.com/kbypass/estack/waiter"
)

// TestCloseNotifyFiresOnConnectionFailure covers the optional parent-close
// notification queue of spec.md §3/§6: a listener registered with
// RegisterCloseWaiter must be woken exactly once, with ClosedRemote
// identifying the four-tuple to clean up, once the connection's poll loop
// has exited for good.
func TestCloseNotifyFiresOnConnectionFailure(t *testing.T) {
	l3 := newRecordingEndpoint()
	cb := newTestControlBlockWithEndpoint(t, l3, testConfig())

	entry, ch := waiter.NewChannelEntry(nil)
	cb.RegisterCloseWaiter(&entry)
	defer cb.UnregisterCloseWaiter(&entry)

	// A bare RST exactly at RCV.NXT is in-window and connection-fatal
	// (spec.md §7), driving the state machine straight to Closed.
	cb.Enqueue(seqnum.Value(5000), seqnum.Value(1000), header.TCPFlagRst, seqnum.Size(65535), nil)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("close waiter was never notified")
	}

	if got, want := cb.ClosedRemote(), (Endpoint{Addr: header.Address{10, 0, 0, 2}, Port: 80}); got != want {
		t.Fatalf("ClosedRemote() = %+v, want %+v", got, want)
	}
	waitFor(t, time.Second, func() bool { return cb.State() == StateClosed })
}
