// Package sleep provides an efficient way to block on multiple event
// sources ("wakers") at once and wake up when any of them fires. It is the
// cooperative-task suspension primitive used throughout transport/tcp:
// the poll, sender and retransmitter tasks each block in a Sleeper.Fetch across exactly the wakers relevant to its
// suspension points (spec.md §5), instead of polling.
//
// A single Waker can be asserted any number of times; repeated asserts
// before the sleeper fetches it are coalesced into a single wake-up, and
// Fetch clears the waker's asserted bit as it is consumed so the same
// Waker can be asserted again.
package sleep

import "sync"

// Waker is a source of wake-up notifications. The zero value is usable.
type Waker struct {
	mu       sync.Mutex
	asserted bool
	sleeper  *Sleeper
	id       int
}

// Assert marks the waker as asserted and, if it is registered with a
// Sleeper, wakes it (or queues the wake-up if the sleeper isn't currently
// blocked). Asserting an already-asserted waker is a no-op.
func (w *Waker) Assert() {
	w.mu.Lock()
	if w.asserted {
		w.mu.Unlock()
		return
	}
	w.asserted = true
	s := w.sleeper
	w.mu.Unlock()

	if s != nil {
		s.enqueue(w)
	}
}

// Clear clears the waker's asserted state without waking anyone.
func (w *Waker) Clear() {
	w.mu.Lock()
	w.asserted = false
	w.mu.Unlock()
}

// IsAsserted reports whether the waker is currently asserted.
func (w *Waker) IsAsserted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.asserted
}

// Sleeper allows a task to block until one of potentially several
// registered Wakers is asserted. The zero value is usable.
type Sleeper struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready []*Waker
	all   map[*Waker]struct{}
}

func (s *Sleeper) lazyInit() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
	if s.all == nil {
		s.all = make(map[*Waker]struct{})
	}
}

// AddWaker associates w with the sleeper under the given id, which Fetch
// returns when w fires. If w is already asserted, the sleeper is woken
// immediately.
func (s *Sleeper) AddWaker(w *Waker, id int) {
	s.mu.Lock()
	s.lazyInit()
	s.all[w] = struct{}{}
	s.mu.Unlock()

	w.mu.Lock()
	w.sleeper = s
	w.id = id
	already := w.asserted
	w.mu.Unlock()

	if already {
		s.enqueue(w)
	}
}

func (s *Sleeper) enqueue(w *Waker) {
	s.mu.Lock()
	s.lazyInit()
	s.ready = append(s.ready, w)
	s.cond.Signal()
	s.mu.Unlock()
}

// Fetch returns the id of an asserted waker, clearing its asserted state
// as it is consumed. If block is true, Fetch waits until a waker is
// asserted; otherwise it returns (0, false) immediately when none is
// ready.
func (s *Sleeper) Fetch(block bool) (int, bool) {
	s.mu.Lock()
	s.lazyInit()
	for {
		for len(s.ready) == 0 {
			if !block {
				s.mu.Unlock()
				return 0, false
			}
			s.cond.Wait()
		}
		w := s.ready[0]
		s.ready = s.ready[1:]

		w.mu.Lock()
		if !w.asserted {
			// Cleared (or already consumed) since it was queued.
			w.mu.Unlock()
			continue
		}
		w.asserted = false
		id := w.id
		w.mu.Unlock()
		s.mu.Unlock()

		return id, true
	}
}

// Done detaches all wakers previously added with AddWaker, so they stop
// referencing this sleeper. Safe to call on an empty or zero Sleeper.
func (s *Sleeper) Done() {
	s.mu.Lock()
	wakers := make([]*Waker, 0, len(s.all))
	for w := range s.all {
		wakers = append(wakers, w)
	}
	s.all = nil
	s.ready = nil
	s.mu.Unlock()

	for _, w := range wakers {
		w.mu.Lock()
		if w.sleeper == s {
			w.sleeper = nil
		}
		w.mu.Unlock()
	}
}
