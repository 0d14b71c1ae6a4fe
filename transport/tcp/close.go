package tcp

// transitionTo moves the connection to a new state, logging the
// transition, and performs the fixed actions spec.md §4.5 attaches to
// entering some states. Always called with cb.mu held.
func (cb *ControlBlock) transitionTo(next State) {
	prev := cb.state
	cb.state = next
	cb.log.Debug().Str("from", prev.String()).Str("to", next.String()).Msg("state transition")

	if next == StateClosed {
		cb.markClosed()
	}
}

// Close implements the application-facing half-close API of spec.md
// §4.5: it queues a FIN, transitions FinWait1 (from Established) or
// LastAck (from CloseWait), and returns immediately. It is an error to
// call Close from any other state.
func (cb *ControlBlock) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateEstablished:
		cb.localClosed = true
		cb.snd.PushFin()
		cb.unsentDataWaker.Assert()
		cb.transitionTo(StateFinWait1)
		return nil
	case StateCloseWait:
		cb.localClosed = true
		cb.snd.PushFin()
		cb.unsentDataWaker.Assert()
		cb.transitionTo(StateLastAck)
		return nil
	default:
		return ErrInvalidState
	}
}

// onFinAcked is invoked (from processAck, via onSendQueueDrained) once
// the local FIN has been fully acknowledged, advancing FinWait1/LastAck
// onward per spec.md §4.5's four-way close diagram.
func (cb *ControlBlock) onFinAcked() {
	if !cb.snd.finAcked {
		return
	}
	switch cb.state {
	case StateFinWait1:
		cb.transitionTo(StateFinWait2)
	case StateClosing:
		cb.enterTimeWait()
	case StateLastAck:
		cb.transitionTo(StateClosed)
	}
}

// enterTimeWait transitions to TimeWait and spawns the 2*MSL (or
// Linger-overridden) timer that finally closes the connection, per
// spec.md §4.5.
func (cb *ControlBlock) enterTimeWait() {
	cb.state = StateTimeWait
	dur := 2 * cb.cfg.MSL
	if cb.linger > 0 {
		dur = cb.linger
	}
	cb.log.Debug().Dur("duration", dur).Msg("entering time-wait")

	cb.rt.Spawn(func() {
		<-cb.rt.After(dur)
		cb.mu.Lock()
		if cb.state == StateTimeWait {
			cb.state = StateClosed
			cb.markClosed()
		}
		cb.mu.Unlock()
	})
}
