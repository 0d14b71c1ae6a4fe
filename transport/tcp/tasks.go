package tcp

import (
	"time"

	"github.com/kbypass/estack/sleep"
)

// pollLoop is the connection's main task: it drains the ingress queue and
// feeds each segment through handleSegment, holding cb.mu only across
// each segment's processing and never across the blocking Fetch itself,
// per spec.md §5's "unlock, wait, relock" discipline.
func (cb *ControlBlock) pollLoop() {
	var s sleep.Sleeper
	s.AddWaker(&cb.newSegmentWaker, wakerIDNewSegment)
	s.AddWaker(&cb.closeWaker, wakerIDClose)
	defer s.Done()

	for {
		id, ok := s.Fetch(true)
		if !ok {
			return
		}
		if id == wakerIDClose {
			if cb.State() == StateClosed {
				return
			}
			continue
		}

		for {
			cb.ingressMu.Lock()
			if cb.ingress.Len() == 0 {
				cb.ingressMu.Unlock()
				break
			}
			seg := cb.ingress.PopFront()
			cb.ingressMu.Unlock()

			cb.mu.Lock()
			cb.handleSegment(seg)
			done := cb.state == StateClosed
			cb.mu.Unlock()

			if done {
				return
			}
		}
	}
}

// senderLoop drains the unsent queue whenever data becomes available,
// respecting the congestion window and the peer's receive window, per
// spec.md §4.4 and §5.
func (cb *ControlBlock) senderLoop() {
	var s sleep.Sleeper
	s.AddWaker(&cb.unsentDataWaker, wakerIDUnsentData)
	s.AddWaker(&cb.closeWaker, wakerIDClose)
	defer s.Done()

	for {
		id, ok := s.Fetch(true)
		if !ok {
			return
		}
		if id == wakerIDClose && cb.State() == StateClosed {
			return
		}

		for {
			cb.mu.Lock()
			if cb.state == StateClosed {
				cb.mu.Unlock()
				return
			}

			cb.cc.OnCwndCheckBeforeSend()
			cwnd, _ := cb.cc.Cwnd().Get()
			extra, _ := cb.cc.LimitedTransmitCwndIncrease().Get()
			allowance := int(cwnd+extra) - cb.snd.flightSize()

			seg, has := cb.snd.nextUnsent()
			if !has || allowance <= 0 {
				cb.mu.Unlock()
				break
			}
			segLen := len(seg.data)
			if segLen > allowance && !seg.fin {
				cb.mu.Unlock()
				break
			}
			// The peer's advertised window bounds what may be
			// outstanding at once, same as the congestion window.
			if cb.snd.sndWnd != 0 && segLen > int(cb.snd.sndWnd)-cb.snd.flightSize() {
				cb.mu.Unlock()
				break
			}

			wasIdle := cb.snd.unacked.Len() == 0
			sent := cb.snd.dequeueUnsent(cb.rt.Now())
			cb.cc.OnSend(cb.rtoEst.RTO(), len(sent.data))
			cb.sendSegment(sent)
			cb.mu.Unlock()

			if wasIdle {
				cb.armTimerWaker.Assert()
			}
		}
	}
}

// retransmitLoop owns the single retransmit timer: it wakes either when
// the timer expires (a full RTO has elapsed with data still unacked) or
// when congestion control's RetransmitNowFlag fires (fast retransmit),
// and in either case re-sends the head of the unacked queue, per
// spec.md §4.4.
func (cb *ControlBlock) retransmitLoop() {
	var s sleep.Sleeper
	var rtoWaker sleep.Waker
	s.AddWaker(&cb.retransmitWaker, wakerIDRetransmitTimer)
	s.AddWaker(&cb.closeWaker, wakerIDClose)
	s.AddWaker(&rtoWaker, wakerIDRTOTimer)
	s.AddWaker(&cb.armTimerWaker, wakerIDArmTimer)
	defer s.Done()

	armRTO := func(d time.Duration) {
		cb.rt.Spawn(func() {
			<-cb.rt.After(d)
			rtoWaker.Assert()
		})
	}

	// timerArmed tracks whether an RTO timer goroutine is currently
	// outstanding, so the loop never has more than one in flight for the
	// same unacked data: arming a second before the first fires (e.g. on
	// a fast-retransmit wakeup, or wakerIDArmTimer firing again before
	// the existing timer expires) would let a stale timer fire after
	// fast retransmit already handled the loss, triggering a spurious
	// RTO. Only touched by this goroutine.
	var timerArmed bool

	cb.mu.Lock()
	if cb.snd.unacked.Len() > 0 {
		armRTO(cb.rtoEst.RTO())
		timerArmed = true
	}
	cb.mu.Unlock()

	for {
		id, ok := s.Fetch(true)
		if !ok {
			return
		}

		switch id {
		case wakerIDClose:
			if cb.State() == StateClosed {
				return
			}
		case wakerIDRetransmitTimer:
			cb.handleRetransmitWake()
		case wakerIDRTOTimer:
			cb.handleRTO()
			timerArmed = false
		}

		cb.mu.Lock()
		closed := cb.state == StateClosed
		hasUnacked := cb.snd.unacked.Len() > 0
		rto := cb.rtoEst.RTO()
		cb.mu.Unlock()
		if closed {
			return
		}
		if !hasUnacked {
			timerArmed = false
		} else if !timerArmed {
			armRTO(rto)
			timerArmed = true
		}
	}
}

// handleRetransmitWake responds to congestion control's RetransmitNowFlag
// (fast retransmit): re-send the head of the unacked queue immediately.
func (cb *ControlBlock) handleRetransmitWake() {
	cb.retransmitWaker.Clear()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateClosed {
		return
	}
	queue := cb.snd.retransmitQueue()
	if len(queue) == 0 {
		return
	}
	cb.sendSegment(queue[0])
	cb.cc.OnFastRetransmit()
}

func (cb *ControlBlock) handleRTO() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateClosed || cb.snd.unacked.Len() == 0 {
		return
	}

	cb.log.Debug().Msg("retransmit timeout")
	cb.cc.OnRTO(cb.snd.sndUna)
	cb.rtoEst.Backoff()
	cb.snd.markRetransmitted()

	queue := cb.snd.retransmitQueue()
	if len(queue) > 0 {
		cb.sendSegment(queue[0])
	}
}

// delayedAckLoop wakes when a delayed ACK's deadline arrives (or a
// second segment forces an immediate ACK, handled directly in
// scheduleAck) and emits the pending ACK, per spec.md §4.1 step 9.
func (cb *ControlBlock) delayedAckLoop() {
	lastVersion := uint64(0)
	for {
		deadline, ver := cb.ackDeadline.WaitForChange(lastVersion)
		lastVersion = ver

		if cb.State() == StateClosed {
			return
		}
		if deadline.IsZero() {
			continue
		}

		wait := deadline.Sub(cb.rt.Now())
		if wait > 0 {
			<-cb.rt.After(wait)
		}

		cb.mu.Lock()
		cur, curVer := cb.ackDeadline.Get()
		if curVer == ver && !cur.IsZero() {
			if cb.state != StateClosed {
				cb.sendAck()
			}
			cb.ackDeadline.Set(time.Time{})
		}
		cb.mu.Unlock()
	}
}
