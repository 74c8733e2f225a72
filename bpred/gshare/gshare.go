// Package gshare implements a speculative gshare branch-direction predictor.
//
// Program-counter bits are XORed with a per-thread global history register
// to index a shared table of saturating counters. History is updated
// speculatively at lookup time and repaired on resolution or squash from the
// snapshot held in each prediction record.
package gshare

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/bpsim/bpred"
)

var _ bpred.BranchPredictor = (*Predictor)(nil)

// Predictor is a gshare (or, with SchemeGlobal, GAg) direction predictor.
// It is not safe for concurrent use; the host pipeline calls it serially.
type Predictor struct {
	*sim.HookableBase

	config *Config

	historyMask uint64
	pcMask      uint64

	history  *bpred.HistoryRegister
	counters *bpred.CounterTable
	records  *bpred.RecordArena

	stats bpred.Stats
}

// New creates a predictor with the given configuration.
func New(config *Config) (*Predictor, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := config.Clone()
	p := &Predictor{
		HookableBase: sim.NewHookableBase(),
		config:       c,
		history:      bpred.NewHistoryRegister(c.NumThreads, c.HistoryBits),
		counters:     bpred.NewCounterTable(1<<c.HistoryBits, c.CounterBits, c.CounterInit),
		records:      bpred.NewRecordArena(),
	}
	p.historyMask = p.history.Mask()
	p.pcMask = p.historyMask << c.PCHashOffset

	return p, nil
}

// Config returns a copy of the predictor configuration.
func (p *Predictor) Config() *Config {
	return p.config.Clone()
}

// Index returns the counter index for a branch at pc under the given
// history.
func (p *Predictor) Index(pc, history uint64) uint64 {
	history &= p.historyMask
	if p.config.IndexScheme == SchemeGlobal {
		return history
	}
	return ((pc & p.pcMask) >> p.config.PCHashOffset) ^ history
}

// History returns the live global history of tid.
func (p *Predictor) History(tid bpred.ThreadID) (uint64, error) {
	if err := p.checkThread(tid); err != nil {
		return 0, err
	}
	return p.history.Value(tid), nil
}

// Counters exposes the shared counter table.
func (p *Predictor) Counters() *bpred.CounterTable {
	return p.counters
}

// Outstanding returns the number of issued handles that have been neither
// resolved nor squashed.
func (p *Predictor) Outstanding() int {
	return p.records.Outstanding()
}

// Lookup predicts the conditional branch at pc and appends the prediction to
// the history of tid.
func (p *Predictor) Lookup(tid bpred.ThreadID, pc uint64) (bool, bpred.Handle, error) {
	if err := p.checkThread(tid); err != nil {
		return false, bpred.Handle{}, err
	}

	before := p.history.Value(tid)
	idx := p.Index(pc, before)
	taken := p.counters.Predict(idx)

	h := p.records.Issue(bpred.Record{
		TID:             tid,
		PC:              pc,
		HistorySnapshot: before,
		PredictedTaken:  taken,
	})
	p.history.Shift(tid, taken)
	p.stats.Lookups++

	p.emit(bpred.HookPosLookup, bpred.Event{
		TID:           tid,
		PC:            pc,
		Handle:        h,
		Index:         idx,
		Counter:       p.counters.Value(idx),
		Taken:         taken,
		HistoryBefore: before,
		HistoryAfter:  p.history.Value(tid),
	})

	return taken, h, nil
}

// MarkUnconditional records an unconditional branch at pc as taken.
func (p *Predictor) MarkUnconditional(tid bpred.ThreadID, pc uint64) (bpred.Handle, error) {
	if err := p.checkThread(tid); err != nil {
		return bpred.Handle{}, err
	}

	before := p.history.Value(tid)
	h := p.records.Issue(bpred.Record{
		TID:             tid,
		PC:              pc,
		HistorySnapshot: before,
		PredictedTaken:  true,
	})
	p.history.ShiftTaken(tid)
	p.stats.Unconditional++

	p.emit(bpred.HookPosUnconditional, bpred.Event{
		TID:           tid,
		PC:            pc,
		Handle:        h,
		Taken:         true,
		HistoryBefore: before,
		HistoryAfter:  p.history.Value(tid),
	})

	return h, nil
}

// NotifyInvalidTarget records that no valid target was found for the last
// branch on tid. The branch's speculative history bit is rewritten as not
// taken in place; nothing is shifted and no counter changes.
func (p *Predictor) NotifyInvalidTarget(tid bpred.ThreadID, pc uint64) error {
	if err := p.checkThread(tid); err != nil {
		return err
	}

	before := p.history.Value(tid)
	p.history.ClearTrailingBit(tid)
	p.stats.InvalidTargets++

	p.emit(bpred.HookPosInvalidTarget, bpred.Event{
		TID:           tid,
		PC:            pc,
		HistoryBefore: before,
		HistoryAfter:  p.history.Value(tid),
	})

	return nil
}

// Resolve trains the counter selected by the record's history snapshot
// toward the actual outcome and consumes h. If squashed is set, the history
// of tid is rebuilt as the snapshot followed by the actual outcome.
//
// After Resolve returns nil, h must not be passed to Squash.
func (p *Predictor) Resolve(
	tid bpred.ThreadID,
	pc uint64,
	taken bool,
	h bpred.Handle,
	squashed bool,
) error {
	rec, err := p.take(tid, h)
	if err != nil {
		return fmt.Errorf("resolve %v: %w", h, err)
	}

	before := p.history.Value(tid)
	idx := p.Index(pc, rec.HistorySnapshot)
	p.counters.Bump(idx, taken)

	p.stats.Resolved++
	if rec.PredictedTaken == taken {
		p.stats.Correct++
	} else {
		p.stats.Mispredictions++
	}

	if squashed {
		p.history.RestoreAndAppend(tid, rec.HistorySnapshot, taken)
		p.stats.SquashedResolves++
	}

	p.emit(bpred.HookPosResolve, bpred.Event{
		TID:           tid,
		PC:            pc,
		Handle:        h,
		Index:         idx,
		Counter:       p.counters.Value(idx),
		Taken:         taken,
		Squashed:      squashed,
		HistoryBefore: before,
		HistoryAfter:  p.history.Value(tid),
	})

	return nil
}

// Squash restores the history of tid to the record's snapshot and consumes
// h. It is used for branches discarded before their outcome is known.
func (p *Predictor) Squash(tid bpred.ThreadID, h bpred.Handle) error {
	rec, err := p.take(tid, h)
	if err != nil {
		return fmt.Errorf("squash %v: %w", h, err)
	}

	before := p.history.Value(tid)
	p.history.Restore(tid, rec.HistorySnapshot)
	p.stats.Squashes++

	p.emit(bpred.HookPosSquash, bpred.Event{
		TID:           tid,
		PC:            rec.PC,
		Handle:        h,
		Squashed:      true,
		HistoryBefore: before,
		HistoryAfter:  p.history.Value(tid),
	})

	return nil
}

// Stats returns the predictor statistics.
func (p *Predictor) Stats() bpred.Stats {
	return p.stats
}

// Reset clears history, counters, outstanding records and statistics.
func (p *Predictor) Reset() {
	p.history.Reset()
	p.counters.Reset()
	p.records.Reset()
	p.stats = bpred.Stats{}
}

func (p *Predictor) checkThread(tid bpred.ThreadID) error {
	if tid < 0 || int(tid) >= p.history.NumThreads() {
		return fmt.Errorf("%w: %d (num_threads %d)",
			bpred.ErrThreadOutOfRange, tid, p.history.NumThreads())
	}
	return nil
}

// take consumes h after checking that it is live and was issued to tid. A
// rejected handle is left untouched.
func (p *Predictor) take(tid bpred.ThreadID, h bpred.Handle) (bpred.Record, error) {
	if err := p.checkThread(tid); err != nil {
		return bpred.Record{}, err
	}
	return p.records.Take(h, tid)
}

func (p *Predictor) emit(pos *sim.HookPos, evt bpred.Event) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   evt,
	})
}
