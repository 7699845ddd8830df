// Package sync implements the reconciliation core: it resolves a date
// window, retracts ledger rows the source no longer justifies, regenerates
// the rows it does, applies them as one idempotent bulk merge, and then
// classifies the revenue rows written by the run.
package sync

import (
	"fmt"
	"time"

	"github.com/hmaung/salesync/internal/errs"
)

// DefaultLookback pads every incremental window behind the checkpoint to
// tolerate clock skew and late-arriving corrections from the POS.
const DefaultLookback = 72 * time.Hour

// DefaultBootstrapWindow bounds a scheduled run that has no checkpoint yet.
// Falling back to a bounded window instead of full history keeps scheduled
// runs cheap; a manual full resync is always available.
const DefaultBootstrapWindow = 90 * 24 * time.Hour

// Window is the range of order timestamps a run reconciles, bounds
// inclusive. Nil bounds mean unbounded on that side; the zero Window is
// full history.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// IsFull reports whether the window covers all history.
func (w Window) IsFull() bool { return w.From == nil && w.To == nil }

// FullWindow reconciles every order ever replicated for the restaurant.
// Used by manual "resync everything" invocations only.
func FullWindow() Window { return Window{} }

// ExplicitWindow validates a caller-supplied range. A reversed range is
// rejected here, before any read or write happens.
func ExplicitWindow(from, to time.Time) (Window, error) {
	if to.Before(from) {
		return Window{}, fmt.Errorf("%w: to %s is before from %s", errs.ErrInvalidWindow, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	f, t := from, to
	return Window{From: &f, To: &t}, nil
}

// IncrementalWindow computes the window for a scheduled run:
// [checkpoint - lookback, now]. Without a checkpoint it falls back to the
// bounded bootstrap window rather than full history.
func IncrementalWindow(checkpoint *time.Time, now time.Time, lookback time.Duration) Window {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	var from time.Time
	if checkpoint != nil {
		from = checkpoint.Add(-lookback)
	} else {
		from = now.Add(-DefaultBootstrapWindow)
	}
	to := now
	return Window{From: &from, To: &to}
}
