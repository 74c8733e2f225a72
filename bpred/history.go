package bpred

// HistoryRegister holds one global branch history shift register per
// hardware thread. Every value is kept masked to the configured width.
//
// Thread ids are not range checked here; callers validate them first.
type HistoryRegister struct {
	bits uint
	mask uint64
	regs []uint64
}

// NewHistoryRegister creates numThreads registers of the given width, all
// cleared. bits must be in [1, 64].
func NewHistoryRegister(numThreads int, bits uint) *HistoryRegister {
	return &HistoryRegister{
		bits: bits,
		mask: lowMask(bits),
		regs: make([]uint64, numThreads),
	}
}

// lowMask returns a mask with the low n bits set.
func lowMask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// Bits returns the register width.
func (r *HistoryRegister) Bits() uint {
	return r.bits
}

// Mask returns the mask applied after every mutation.
func (r *HistoryRegister) Mask() uint64 {
	return r.mask
}

// NumThreads returns the number of per-thread registers.
func (r *HistoryRegister) NumThreads() int {
	return len(r.regs)
}

// Value returns the current history of tid.
func (r *HistoryRegister) Value(tid ThreadID) uint64 {
	return r.regs[tid]
}

// ShiftTaken appends a taken outcome.
func (r *HistoryRegister) ShiftTaken(tid ThreadID) {
	r.regs[tid] = (r.regs[tid]<<1 | 1) & r.mask
}

// ShiftNotTaken appends a not-taken outcome.
func (r *HistoryRegister) ShiftNotTaken(tid ThreadID) {
	r.regs[tid] = (r.regs[tid] << 1) & r.mask
}

// Shift appends the given outcome.
func (r *HistoryRegister) Shift(tid ThreadID, taken bool) {
	if taken {
		r.ShiftTaken(tid)
		return
	}
	r.ShiftNotTaken(tid)
}

// ClearTrailingBit rewrites the most recent outcome as not taken without
// shifting.
func (r *HistoryRegister) ClearTrailingBit(tid ThreadID) {
	r.regs[tid] &= r.mask &^ 1
}

// Restore rolls the history of tid back to snapshot.
func (r *HistoryRegister) Restore(tid ThreadID, snapshot uint64) {
	r.regs[tid] = snapshot & r.mask
}

// RestoreAndAppend rebuilds the history of tid from snapshot followed by
// the given outcome.
func (r *HistoryRegister) RestoreAndAppend(tid ThreadID, snapshot uint64, taken bool) {
	v := snapshot << 1
	if taken {
		v |= 1
	}
	r.regs[tid] = v & r.mask
}

// Reset clears every thread's history.
func (r *HistoryRegister) Reset() {
	clear(r.regs)
}
