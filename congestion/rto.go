package congestion

import (
	"sync"
	"time"
)

// Default RTO bounds, grounded in both RFC 6298 and the pack's
// other_examples/50009c12_fess932-tcpconn Conn (MinRTO/MaxRTO/InitialRTO
// constants).
const (
	DefaultMinRTO     = 200 * time.Millisecond
	DefaultMaxRTO     = 60 * time.Second
	DefaultInitialRTO = 1 * time.Second

	// rttAlpha/rttBeta are Jacobson's smoothing gains (as 1/8 and 1/4,
	// matching the shift-based fixed point arithmetic used in most TCP
	// stacks, expressed here as plain float64 for readability).
	rttAlpha = 0.125
	rttBeta  = 0.25
)

// RTOEstimator implements Jacobson/Karn retransmission-timeout estimation:
// RTO = SRTT + 4*RTTVAR, clamped to [MinRTO, MaxRTO]. Samples taken from
// retransmitted segments must not be fed in, per Karn's algorithm — that
// exclusion is the caller's responsibility (the sender only calls
// AddSample for segments it knows were not retransmitted).
type RTOEstimator struct {
	MinRTO time.Duration
	MaxRTO time.Duration

	mu      sync.Mutex
	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	inited  bool
}

// NewRTOEstimator creates an estimator with the given bounds, initialized
// to DefaultInitialRTO until the first sample arrives.
func NewRTOEstimator(minRTO, maxRTO time.Duration) *RTOEstimator {
	return &RTOEstimator{
		MinRTO: minRTO,
		MaxRTO: maxRTO,
		rto:    DefaultInitialRTO,
	}
}

// RTO returns the current retransmission timeout.
func (e *RTOEstimator) RTO() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rto
}

// AddSample folds a fresh, non-retransmitted RTT sample into the
// estimator.
func (e *RTOEstimator) AddSample(sample time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inited {
		e.srtt = sample
		e.rttvar = sample / 2
		e.inited = true
	} else {
		delta := sample - e.srtt
		e.srtt += time.Duration(rttAlpha * float64(delta))
		if delta < 0 {
			delta = -delta
		}
		e.rttvar += time.Duration(rttBeta * (float64(delta) - float64(e.rttvar)))
	}

	rto := e.srtt + 4*e.rttvar
	e.rto = clamp(rto, e.MinRTO, e.MaxRTO)
}

// Backoff doubles the current RTO (exponential backoff on retransmission),
// capped at MaxRTO, per spec.md §4.4's retransmitter loop.
func (e *RTOEstimator) Backoff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rto = clamp(2*e.rto, e.MinRTO, e.MaxRTO)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
