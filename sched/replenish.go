package sched

import "fmt"

// ReplWindowSize is the capacity of a thread's replenishment ring.
const ReplWindowSize = 5

// Replenishment is a pending budget grant.
type Replenishment struct {
	Due    Cycles // absolute time the grant becomes available
	Amount Cycles
}

// ReplRing is a fixed-capacity FIFO of pending grants ordered by push time.
// When full, a new grant is merged into the most recently pushed entry so the
// total amount owed is never lost.
type ReplRing struct {
	entries [ReplWindowSize]Replenishment
	head    int
	tail    int
	count   int
}

func ringNext(i int) int {
	if i+1 == ReplWindowSize {
		return 0
	}
	return i + 1
}

func ringPrev(i int) int {
	if i == 0 {
		return ReplWindowSize - 1
	}
	return i - 1
}

// Len returns the number of pending grants.
func (r *ReplRing) Len() int { return r.count }

// Full reports whether the next Push will merge.
func (r *ReplRing) Full() bool { return r.count == ReplWindowSize }

// Push records a grant of amount due at due. Returns true if the grant was
// merged into the most recent entry because the ring was full; the merged
// entry takes the new due time.
func (r *ReplRing) Push(due, amount Cycles) (merged bool) {
	if r.count == ReplWindowSize {
		last := &r.entries[ringPrev(r.tail)]
		last.Amount += amount
		last.Due = due
		return true
	}
	r.entries[r.tail] = Replenishment{Due: due, Amount: amount}
	r.tail = ringNext(r.tail)
	r.count++
	return false
}

// Head returns the oldest pending grant.
func (r *ReplRing) Head() (Replenishment, bool) {
	if r.count == 0 {
		return Replenishment{}, false
	}
	return r.entries[r.head], true
}

// PopDue removes and returns the oldest grant if it is due at now.
func (r *ReplRing) PopDue(now Cycles) (Replenishment, bool) {
	if r.count == 0 || r.entries[r.head].Due > now {
		return Replenishment{}, false
	}
	e := r.entries[r.head]
	r.entries[r.head] = Replenishment{}
	r.head = ringNext(r.head)
	r.count--
	return e, true
}

// Shift moves every pending grant later by delta.
func (r *ReplRing) Shift(delta Cycles) {
	for i, idx := 0, r.head; i < r.count; i, idx = i+1, ringNext(idx) {
		r.entries[idx].Due += delta
	}
}

// Total returns the sum of all pending amounts.
func (r *ReplRing) Total() Cycles {
	var sum Cycles
	for i, idx := 0, r.head; i < r.count; i, idx = i+1, ringNext(idx) {
		sum += r.entries[idx].Amount
	}
	return sum
}

// Entries returns a copy of the pending grants, oldest first.
func (r *ReplRing) Entries() []Replenishment {
	out := make([]Replenishment, 0, r.count)
	for i, idx := 0, r.head; i < r.count; i, idx = i+1, ringNext(idx) {
		out = append(out, r.entries[idx])
	}
	return out
}

// Reset empties the ring.
func (r *ReplRing) Reset() {
	*r = ReplRing{}
}

func (r *ReplRing) check() error {
	if r.count < 0 || r.count > ReplWindowSize {
		return fmt.Errorf("replenishment count %d outside [0, %d]", r.count, ReplWindowSize)
	}
	if r.head < 0 || r.head >= ReplWindowSize || r.tail < 0 || r.tail >= ReplWindowSize {
		return fmt.Errorf("replenishment head %d / tail %d out of range", r.head, r.tail)
	}
	if (r.head+r.count)%ReplWindowSize != r.tail {
		return fmt.Errorf("replenishment head %d + count %d does not reach tail %d", r.head, r.count, r.tail)
	}
	return nil
}
