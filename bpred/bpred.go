// Package bpred provides the building blocks of speculative branch-direction
// predictors: per-thread global history registers, shared saturating counter
// tables, and an arena of prediction records addressed by opaque handles.
//
// Concrete predictors (see package gshare) combine these pieces and expose
// them through the BranchPredictor interface consumed by a fetch pipeline.
package bpred

import (
	"errors"
	"fmt"
)

// ThreadID identifies a hardware thread context.
type ThreadID int

var (
	// ErrInvalidHandle is returned for a zero handle or a handle that was not
	// issued by the predictor it is passed to.
	ErrInvalidHandle = errors.New("invalid prediction handle")
	// ErrStaleHandle is returned when a handle has already been consumed by
	// Resolve or Squash.
	ErrStaleHandle = errors.New("prediction handle already consumed")
	// ErrThreadMismatch is returned when a handle is used with a thread other
	// than the one that issued it.
	ErrThreadMismatch = errors.New("prediction handle belongs to another thread")
	// ErrThreadOutOfRange is returned for a thread id outside the configured
	// number of threads.
	ErrThreadOutOfRange = errors.New("thread id out of range")
)

// Handle is the opaque token returned by a speculative prediction. It must be
// passed back exactly once, to either Resolve or Squash.
type Handle struct {
	arena uint32
	slot  uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle, which no predictor issues.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// String formats the handle for logs.
func (h Handle) String() string {
	if h.IsZero() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d:%d.%d)", h.arena, h.slot, h.gen)
}

// BranchPredictor is the direction-prediction capability a fetch pipeline
// drives. Every Handle returned by Lookup or MarkUnconditional must be
// consumed by exactly one call to Resolve or Squash.
type BranchPredictor interface {
	// Lookup predicts the direction of the conditional branch at pc and
	// speculatively records the prediction in the thread's history.
	Lookup(tid ThreadID, pc uint64) (taken bool, h Handle, err error)

	// MarkUnconditional records an unconditional (always taken) branch.
	MarkUnconditional(tid ThreadID, pc uint64) (Handle, error)

	// NotifyInvalidTarget reports that the target lookup for the most
	// recently predicted branch on tid failed, so fetch falls through.
	NotifyInvalidTarget(tid ThreadID, pc uint64) error

	// Resolve trains the predictor with the actual outcome and consumes h.
	// When squashed is set, the thread's history is rebuilt from the
	// record's snapshot plus the actual outcome.
	Resolve(tid ThreadID, pc uint64, taken bool, h Handle, squashed bool) error

	// Squash rolls the thread's history back to the record's snapshot and
	// consumes h.
	Squash(tid ThreadID, h Handle) error

	// Stats returns the predictor statistics.
	Stats() Stats

	// Reset clears all predictor state and statistics. Outstanding handles
	// become stale.
	Reset()
}

// Stats holds statistics for a branch predictor.
type Stats struct {
	// Lookups is the number of conditional predictions made.
	Lookups uint64 `json:"lookups"`
	// Unconditional is the number of unconditional branches recorded.
	Unconditional uint64 `json:"unconditional"`
	// Resolved is the number of handles consumed by Resolve.
	Resolved uint64 `json:"resolved"`
	// Correct is the number of resolved branches whose recorded prediction
	// matched the actual outcome.
	Correct uint64 `json:"correct"`
	// Mispredictions is the number of resolved branches whose recorded
	// prediction did not match the actual outcome.
	Mispredictions uint64 `json:"mispredictions"`
	// SquashedResolves is the number of Resolve calls that rebuilt history.
	SquashedResolves uint64 `json:"squashed_resolves"`
	// Squashes is the number of handles consumed by Squash.
	Squashes uint64 `json:"squashes"`
	// InvalidTargets is the number of NotifyInvalidTarget calls.
	InvalidTargets uint64 `json:"invalid_targets"`
}

// Accuracy returns the prediction accuracy of resolved branches as a
// percentage.
func (s Stats) Accuracy() float64 {
	if s.Resolved == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Resolved) * 100
}

// MispredictionRate returns the misprediction rate of resolved branches as a
// percentage.
func (s Stats) MispredictionRate() float64 {
	if s.Resolved == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Resolved) * 100
}
