// Run cancellation signal.
//
// Information Hiding:
// - Claim arbitration for the interrupted notice hidden
// - Reason storage hidden behind accessors

package agent

import "sync"

// CancelReason distinguishes why a run was cancelled.
type CancelReason int

const (
	// CancelNone means the signal has not been set.
	CancelNone CancelReason = iota
	// CancelInterrupt is an ordinary interruption; partial progress is
	// still persisted.
	CancelInterrupt
	// CancelNewConversation means the user started over; persistence of
	// the aborted exchange is suppressed.
	CancelNewConversation
)

// CancelSignal is a shared flag settable by the caller at any time. Both
// the loop and the reasoning timer observe it; whichever observes it first
// claims the right to emit the interrupted notice via ClaimNotice.
//
// A nil *CancelSignal is valid and never cancelled.
type CancelSignal struct {
	mu      sync.Mutex
	set     bool
	reason  CancelReason
	claimed bool
}

// NewCancelSignal creates an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{}
}

// Cancel sets the signal with the given reason. The first reason wins;
// later calls are ignored.
func (s *CancelSignal) Cancel(reason CancelReason) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	s.reason = reason
}

// Cancelled reports whether the signal has been set.
func (s *CancelSignal) Cancelled() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Reason returns the reason the signal was set, or CancelNone.
func (s *CancelSignal) Reason() CancelReason {
	if s == nil {
		return CancelNone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// ClaimNotice returns true for exactly one caller after cancellation.
// The winner emits the interrupted notice; every other observer must
// suppress its own emission.
func (s *CancelSignal) ClaimNotice() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.claimed {
		return false
	}
	s.claimed = true
	return true
}
