// Package tcp implements the established-state half of a TCP connection:
// everything that happens after the three-way handshake and before the
// connection is fully torn down. Handshake negotiation, IP/Ethernet
// framing and demultiplexing, and the application-facing queue-descriptor
// API are all out of scope and live outside this package; a ControlBlock
// is handed its initial sequence numbers and negotiated options already
// resolved, and talks to the outside world only through the iface
// capabilities it is constructed with.
package tcp

import (
	"strconv"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kbypass/estack/asyncval"
	"github.com/kbypass/estack/congestion"
	"github.com/kbypass/estack/iface"
	"github.com/kbypass/estack/seqnum"
	"github.com/kbypass/estack/sleep"
	"github.com/kbypass/estack/tmutex"
	"github.com/kbypass/estack/waiter"
)

// incomingSegment is a parsed TCP segment queued for the ControlBlock's
// ingress processing, mirroring the fields header.TCP exposes plus the
// already-sliced payload.
type incomingSegment struct {
	seq     seqnum.Value
	ack     seqnum.Value
	flags   uint8
	wnd     seqnum.Size
	payload []byte
}

func (s incomingSegment) flagIsSet(flag uint8) bool {
	return s.flags&flag != 0
}

// Waker ids multiplexed by the ControlBlock's background tasks (spec.md
// §5). Each task's Sleeper registers only the subset relevant to its own
// suspension points.
const (
	wakerIDUnsentData = iota
	wakerIDRetransmitTimer
	wakerIDClose
	wakerIDNewSegment
	wakerIDRTOTimer
	wakerIDArmTimer
)

// ControlBlock is the full state of one established TCP connection: the
// receive and send sequence spaces, the out-of-order reassembly buffer,
// congestion control, and the four background tasks that drive them.
// Every field below the mutex is only ever touched with it held, except
// where individually documented otherwise.
type ControlBlock struct {
	id uuid.UUID

	local  Endpoint
	remote Endpoint

	l3  iface.Layer3Endpoint
	rt  iface.AsyncRuntime
	cfg Config
	log zerolog.Logger

	mu tmutex.Mutex

	state State

	rcv    *receiver
	snd    *sender
	reasm  *reassembler
	cc     congestion.Controller
	rtoEst *congestion.RTOEstimator

	recvBufferSize       int
	recvWindowScaleShift uint8

	// ackDeadline is non-zero while a delayed ACK is pending; the
	// delayed-ACK task wakes on whichever comes first: this deadline, or
	// a second segment arriving (which per spec.md §4.1 step 9 forces an
	// immediate ACK).
	ackDeadline *asyncval.Value[time.Time]

	// Close-related state (spec.md §4.5).
	localClosed bool
	linger      time.Duration

	// closed is closed once the ControlBlock has reached StateClosed,
	// unblocking anything waiting on the connection's end.
	closed chan struct{}
	once   sync.Once

	// closeNotify backs the optional parent-close notification queue of
	// spec.md §3/§6: the listening socket that owns this connection's
	// routing entry registers an Entry here and is woken with EventHup
	// once markClosed fires, at which point it reads ClosedRemote to
	// learn which four-tuple to remove.
	closeNotify waiter.Queue

	// ingress is the queue of not-yet-processed incoming segments,
	// filled by the owner of the socket (outside this package's scope to
	// demultiplex) and drained by pollLoop.
	ingressMu sync.Mutex
	ingress   deque.Deque[incomingSegment]

	// wakers, one per suspension point this ControlBlock's tasks share.
	// Each background task (tasks.go) registers the subset it cares about
	// with its own local sleep.Sleeper; closeWaker is shared by all of
	// them so markClosed can wake every task at once.
	newSegmentWaker sleep.Waker
	unsentDataWaker sleep.Waker
	retransmitWaker sleep.Waker
	armTimerWaker   sleep.Waker
	closeWaker      sleep.Waker

	err error
}

// NewControlBlock constructs a ControlBlock for a connection that has
// already completed its handshake, with iss/irs the initial send/receive
// sequence numbers and sndWnd/rcvWnd the negotiated window sizes.
func NewControlBlock(local, remote Endpoint, iss, irs seqnum.Value, sndWnd, rcvWnd seqnum.Size, mss uint32, cfg Config, l3 iface.Layer3Endpoint, rt iface.AsyncRuntime, log zerolog.Logger) *ControlBlock {
	id := uuid.New()
	rtoEst := congestion.NewRTOEstimator(cfg.MinRTO, cfg.MaxRTO)
	cc := congestion.NewReno(mss)

	cb := &ControlBlock{
		id:             id,
		local:          local,
		remote:         remote,
		l3:             l3,
		rt:             rt,
		cfg:            cfg,
		log:            log.With().Str("conn", id.String()).Logger(),
		state:          StateEstablished,
		rcv:            newReceiver(irs, rcvWnd),
		snd:            newSender(iss, sndWnd, mss, cfg.MaxUnsentBytes, cc, rtoEst),
		reasm:          newReassembler(cfg.MaxOutOfOrderSegments),
		cc:             cc,
		rtoEst:         rtoEst,
		recvBufferSize: int(rcvWnd),
		ackDeadline:    asyncval.New(time.Time{}),
		linger:         cfg.Linger,
		closed:         make(chan struct{}),
	}
	cb.mu.Init()

	cb.log.Debug().
		Str("local", formatEndpoint(local)).
		Str("remote", formatEndpoint(remote)).
		Uint32("iss", uint32(iss)).
		Uint32("irs", uint32(irs)).
		Msg("control block created")

	rt.Spawn(cb.pollLoop)
	rt.Spawn(cb.senderLoop)
	rt.Spawn(cb.retransmitLoop)
	rt.Spawn(cb.delayedAckLoop)

	return cb
}

func formatEndpoint(e Endpoint) string {
	return e.Addr.String() + ":" + strconv.Itoa(int(e.Port))
}

// Enqueue hands an already-parsed incoming segment to the ControlBlock
// for processing by pollLoop. It is the one entry point the (out of
// scope) demultiplexing layer calls into.
func (cb *ControlBlock) Enqueue(seq, ack seqnum.Value, flags uint8, wnd seqnum.Size, payload []byte) {
	cb.ingressMu.Lock()
	cb.ingress.PushBack(incomingSegment{seq: seq, ack: ack, flags: flags, wnd: wnd, payload: payload})
	cb.ingressMu.Unlock()
	cb.newSegmentWaker.Assert()
}

// State returns the connection's current state.
func (cb *ControlBlock) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Err returns the error that caused the connection to close, if any.
func (cb *ControlBlock) Err() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.err
}

// Done returns a channel closed once the connection reaches StateClosed.
func (cb *ControlBlock) Done() <-chan struct{} {
	return cb.closed
}

// ClosedRemote returns the remote endpoint this connection was speaking
// to, for a listener woken via RegisterCloseWaiter to know which routing
// entry to clean up.
func (cb *ControlBlock) ClosedRemote() Endpoint {
	return cb.remote
}

// RegisterCloseWaiter adds e to the parent-close notification queue of
// spec.md §3/§6. e is notified with EventHup exactly once, when this
// connection's poll loop has exited for good (state reaches Closed).
// Registering after that point never fires; callers should check Done()
// first.
func (cb *ControlBlock) RegisterCloseWaiter(e *waiter.Entry) {
	cb.closeNotify.EventRegister(e, waiter.EventHup)
}

// UnregisterCloseWaiter removes e from the parent-close notification
// queue.
func (cb *ControlBlock) UnregisterCloseWaiter(e *waiter.Entry) {
	cb.closeNotify.EventUnregister(e)
}

// fail records a connection-fatal error and drives the state machine
// straight to Closed, per spec.md §7's "connection-fatal errors end the
// connection outright" rule. Like transitionTo, it must be called with
// cb.mu already held.
func (cb *ControlBlock) fail(err error) {
	if cb.err == nil {
		cb.err = errors.WithStack(err)
	}
	cb.log.Warn().Err(err).Str("state", cb.state.String()).Msg("connection failed")
	cb.state = StateClosed

	cb.markClosed()
}

func (cb *ControlBlock) markClosed() {
	cb.once.Do(func() {
		close(cb.closed)
		cb.closeWaker.Assert()
		// Wake delayedAckLoop, which waits on ackDeadline rather than a
		// Waker; a final Set (even to the same zero value) bumps its
		// version and unblocks WaitForChange.
		cb.ackDeadline.Set(time.Time{})
		cb.closeNotify.Notify(waiter.EventHup)
	})
}
