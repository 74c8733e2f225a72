package bpred

// MaxCounterBits is the widest saturating counter a CounterTable supports.
const MaxCounterBits = 8

// CounterTable is a table of fixed-width saturating counters shared by all
// threads. Counters clamp at 0 and at 2^bits-1 instead of wrapping.
//
// With 2-bit counters the states are:
// 0=Strongly Not Taken, 1=Weakly Not Taken, 2=Weakly Taken, 3=Strongly Taken.
type CounterTable struct {
	counters  []uint8
	max       uint8
	threshold uint8
	initial   uint8
}

// NewCounterTable creates size counters of the given width, each set to
// initial (clamped to the counter maximum). bits must be in
// [1, MaxCounterBits].
func NewCounterTable(size int, bits uint, initial uint8) *CounterTable {
	top := uint8(lowMask(bits))
	if initial > top {
		initial = top
	}

	t := &CounterTable{
		counters:  make([]uint8, size),
		max:       top,
		threshold: uint8(lowMask(bits - 1)),
		initial:   initial,
	}
	t.Reset()

	return t
}

// Size returns the number of counters.
func (t *CounterTable) Size() int {
	return len(t.counters)
}

// Max returns the saturation value.
func (t *CounterTable) Max() uint8 {
	return t.max
}

// Threshold returns the largest counter value that still predicts not
// taken.
func (t *CounterTable) Threshold() uint8 {
	return t.threshold
}

// Value returns counter i.
func (t *CounterTable) Value(i uint64) uint8 {
	return t.counters[i]
}

// Set overwrites counter i, clamping v to the counter maximum.
func (t *CounterTable) Set(i uint64, v uint8) {
	if v > t.max {
		v = t.max
	}
	t.counters[i] = v
}

// Predict reports whether counter i votes taken.
func (t *CounterTable) Predict(i uint64) bool {
	return t.counters[i] > t.threshold
}

// Bump moves counter i one step toward the given outcome.
func (t *CounterTable) Bump(i uint64, taken bool) {
	c := t.counters[i]
	if taken {
		if c < t.max {
			t.counters[i] = c + 1
		}
		return
	}
	if c > 0 {
		t.counters[i] = c - 1
	}
}

// Reset sets every counter back to its initial value.
func (t *CounterTable) Reset() {
	for i := range t.counters {
		t.counters[i] = t.initial
	}
}
