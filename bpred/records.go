package bpred

import (
	"fmt"
	"sync/atomic"
)

// Record is the state captured when a branch is predicted. It is kept by
// the predictor and reached through the Handle given to the caller.
type Record struct {
	// TID is the thread that issued the prediction.
	TID ThreadID
	// PC is the branch address at lookup time.
	PC uint64
	// HistorySnapshot is the thread's history before this branch's outcome
	// was appended.
	HistorySnapshot uint64
	// PredictedTaken is the direction recorded for this branch.
	PredictedTaken bool
}

type arenaSlot struct {
	rec  Record
	gen  uint32
	live bool
}

var nextArenaID atomic.Uint32

// RecordArena stores prediction records in reusable slots. A Handle names a
// slot and the generation it was issued in, so a handle is accepted at most
// once and never after its slot has been reused.
type RecordArena struct {
	id    uint32
	slots []arenaSlot
	free  []uint32
	live  int
}

// NewRecordArena creates an empty arena.
func NewRecordArena() *RecordArena {
	return &RecordArena{id: nextArenaID.Add(1)}
}

// Issue stores r and returns the handle that addresses it.
func (a *RecordArena) Issue(r Record) Handle {
	var slot uint32
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		slot = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{})
	}

	s := &a.slots[slot]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.rec = r
	s.live = true
	a.live++

	return Handle{arena: a.id, slot: slot, gen: s.gen}
}

// Get returns the record addressed by h without consuming it.
func (a *RecordArena) Get(h Handle) (Record, error) {
	s, err := a.lookup(h)
	if err != nil {
		return Record{}, err
	}
	return s.rec, nil
}

// Take returns the record addressed by h and consumes h, freeing its slot.
// A handle issued to another thread is rejected with ErrThreadMismatch and
// stays live.
func (a *RecordArena) Take(h Handle, tid ThreadID) (Record, error) {
	s, err := a.lookup(h)
	if err != nil {
		return Record{}, err
	}
	if s.rec.TID != tid {
		return Record{}, fmt.Errorf("%w: issued to %d, used by %d",
			ErrThreadMismatch, s.rec.TID, tid)
	}

	rec := s.rec
	s.live = false
	s.rec = Record{}
	a.free = append(a.free, h.slot)
	a.live--

	return rec, nil
}

func (a *RecordArena) lookup(h Handle) (*arenaSlot, error) {
	if h.gen == 0 || h.arena != a.id || int(h.slot) >= len(a.slots) {
		return nil, ErrInvalidHandle
	}

	s := &a.slots[h.slot]
	if !s.live || s.gen != h.gen {
		return nil, ErrStaleHandle
	}

	return s, nil
}

// Outstanding returns the number of issued handles not yet released.
func (a *RecordArena) Outstanding() int {
	return a.live
}

// Reset releases every record. Handles issued before the reset become
// stale.
func (a *RecordArena) Reset() {
	a.free = a.free[:0]
	for i := len(a.slots) - 1; i >= 0; i-- {
		a.slots[i].live = false
		a.slots[i].rec = Record{}
		a.free = append(a.free, uint32(i))
	}
	a.live = 0
}
