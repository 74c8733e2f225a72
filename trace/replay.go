package trace

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sarchlab/bpsim/bpred"
)

// DefaultDepth is the default number of branches a thread may have in
// flight before the oldest one resolves.
const DefaultDepth = 8

// ReplayConfig configures a Replayer.
type ReplayConfig struct {
	// Depth is the per-thread in-flight window. Zero selects DefaultDepth.
	Depth int
}

// Result holds the outcome of a replay.
type Result struct {
	// Branches is the number of trace branches replayed.
	Branches uint64 `json:"branches"`
	// Conditional and Unconditional split Branches by kind.
	Conditional   uint64 `json:"conditional"`
	Unconditional uint64 `json:"unconditional"`

	// Fetches counts every prediction made, including re-fetches after a
	// squash.
	Fetches uint64 `json:"fetches"`
	// Mispredictions is the number of branches that redirected fetch when
	// they resolved.
	Mispredictions uint64 `json:"mispredictions"`
	// Squashed is the number of younger in-flight branches discarded by
	// those redirects.
	Squashed uint64 `json:"squashed"`
	// TargetMisses is the number of fetches that lost their target.
	TargetMisses uint64 `json:"target_misses"`

	// Predictor is the predictor's own statistics after the replay.
	Predictor bpred.Stats `json:"predictor"`
}

// Accuracy returns the share of branches that did not redirect fetch, as a
// percentage.
func (r Result) Accuracy() float64 {
	if r.Branches == 0 {
		return 0
	}
	return float64(r.Branches-r.Mispredictions) / float64(r.Branches) * 100
}

type inflight struct {
	branch    Branch
	handle    bpred.Handle
	predicted bool
}

// Replayer plays branch traces through a predictor. Each thread keeps a
// window of in-flight branches; when the window overflows, the oldest
// branch resolves. A resolving branch whose fetch direction was wrong
// squashes every younger branch of its thread, which is then fetched again
// on the corrected path.
type Replayer struct {
	predictor bpred.BranchPredictor
	depth     int

	windows map[bpred.ThreadID][]inflight
	result  Result
}

// NewReplayer creates a Replayer driving predictor.
func NewReplayer(predictor bpred.BranchPredictor, config ReplayConfig) *Replayer {
	depth := config.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}

	return &Replayer{
		predictor: predictor,
		depth:     depth,
		windows:   make(map[bpred.ThreadID][]inflight),
	}
}

// Run replays branches in order and then drains every window. The
// predictor is not reset first.
func (r *Replayer) Run(branches []Branch) (Result, error) {
	r.result = Result{}
	clear(r.windows)

	for _, b := range branches {
		r.result.Branches++
		if b.Kind == Unconditional {
			r.result.Unconditional++
		} else {
			r.result.Conditional++
		}

		if err := r.fetch(b, false); err != nil {
			return r.result, err
		}

		for len(r.windows[b.TID]) > r.depth {
			if err := r.retire(b.TID); err != nil {
				return r.result, err
			}
		}
	}

	for _, tid := range slices.Sorted(maps.Keys(r.windows)) {
		for len(r.windows[tid]) > 0 {
			if err := r.retire(tid); err != nil {
				return r.result, err
			}
		}
	}

	r.result.Predictor = r.predictor.Stats()

	return r.result, nil
}

func (r *Replayer) fetch(b Branch, refetch bool) error {
	var (
		predicted bool
		h         bpred.Handle
		err       error
	)

	if b.Kind == Unconditional {
		predicted = true
		h, err = r.predictor.MarkUnconditional(b.TID, b.PC)
	} else {
		predicted, h, err = r.predictor.Lookup(b.TID, b.PC)
	}
	if err != nil {
		return branchError(b, err)
	}
	r.result.Fetches++

	// The target buffer is assumed trained by the time a branch is
	// re-fetched.
	if b.TargetMiss && predicted && !refetch {
		if err := r.predictor.NotifyInvalidTarget(b.TID, b.PC); err != nil {
			return branchError(b, err)
		}
		predicted = false
		r.result.TargetMisses++
	}

	r.windows[b.TID] = append(r.windows[b.TID], inflight{
		branch:    b,
		handle:    h,
		predicted: predicted,
	})

	return nil
}

func (r *Replayer) retire(tid bpred.ThreadID) error {
	window := r.windows[tid]
	oldest := window[0]
	b := oldest.branch

	if oldest.predicted == b.Taken {
		r.windows[tid] = window[1:]
		err := r.predictor.Resolve(tid, b.PC, b.Taken, oldest.handle, false)
		if err != nil {
			return branchError(b, err)
		}
		return nil
	}

	r.result.Mispredictions++
	younger := slices.Clone(window[1:])

	for i := len(younger) - 1; i >= 0; i-- {
		if err := r.predictor.Squash(tid, younger[i].handle); err != nil {
			return branchError(younger[i].branch, err)
		}
		r.result.Squashed++
	}

	r.windows[tid] = window[:0]
	err := r.predictor.Resolve(tid, b.PC, b.Taken, oldest.handle, true)
	if err != nil {
		return branchError(b, err)
	}

	for _, f := range younger {
		if err := r.fetch(f.branch, true); err != nil {
			return err
		}
	}

	return nil
}

func branchError(b Branch, err error) error {
	if b.Line > 0 {
		return fmt.Errorf("trace line %d (%v): %w", b.Line, b, err)
	}
	return fmt.Errorf("branch %v: %w", b, err)
}
