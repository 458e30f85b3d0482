package notify

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MaxEvents is the number of slots addressable by the 8-bit next field.
// Slot 0 is the chain head and is never bound to a thread.
const MaxEvents = 256

// ErrNoFreeEvent is returned by Alloc when every slot is bound.
var ErrNoFreeEvent = errors.New("notify: no free event slot")

// Visitor is called once per drained event with its flags and the CPU cycles
// reported since the last drain.
type Visitor func(id uint8, flags uint8, cpu uint64)

// Table holds the event words of one scheduler.
//
// Post is the kernel side and ProcessEvents the scheduler side. Each side is
// single-threaded, but the two may run concurrently: all shared state is
// updated with atomics.
type Table struct {
	words [MaxEvents]Word
	cpu   [MaxEvents]atomic.Uint64
	tail  atomic.Uint32 // last linked id, 0 when the chain is empty
}

// NewTable creates a table with every slot except 0 free.
func NewTable() *Table {
	t := &Table{}
	for i := 1; i < MaxEvents; i++ {
		t.words[i].OrFlags(FlagFree)
	}
	return t
}

// Alloc binds a free slot and returns its id.
func (t *Table) Alloc() (uint8, error) {
	for i := 1; i < MaxEvents; i++ {
		w := &t.words[i]
		for {
			old := w.Load()
			if Flags(old)&FlagFree == 0 {
				break
			}
			if w.v.CompareAndSwap(old, withFlags(old, Flags(old)&^FlagFree)) {
				return uint8(i), nil
			}
		}
	}
	return 0, ErrNoFreeEvent
}

// Free returns a slot to the pool. The slot must not be pending.
func (t *Table) Free(id uint8) {
	t.mustBound(id)
	t.cpu[id].Store(0)
	t.words[id].update(func(uint32) uint32 { return Pack(0, FlagFree, 0) })
}

// SetUrgency records the urgency of the thread bound to id.
func (t *Table) SetUrgency(id uint8, u uint16) {
	t.mustBound(id)
	t.words[id].SetUrgency(u)
}

// Word returns the raw packed value of slot id.
func (t *Table) Word(id uint8) uint32 { return t.words[id].Load() }

// Post reports flags and consumed cycles for id and links it into the
// pending chain unless it is already there.
func (t *Table) Post(id uint8, flags uint8, cpu uint64) {
	t.mustBound(id)
	if cpu != 0 {
		t.cpu[id].Add(cpu)
	}
	before := t.words[id].OrFlags(flags | flagPending)
	if before&flagPending != 0 {
		return
	}
	prev := uint8(t.tail.Swap(uint32(id)))
	t.words[prev].SetNext(id)
}

// Pending reports whether any event is waiting to be drained.
// False positives are possible while a Post is in flight.
func (t *Table) Pending() bool {
	return Next(t.words[0].Load()) != 0 || t.tail.Load() != 0
}

// ProcessEvents drains every pending event in posting order, calling fn for
// each event that carries flags or CPU time. Returns the number of events
// passed to fn.
//
// A slot keeps flagPending until it has been unlinked from the chain, so a
// Post racing with the drain, or issued from fn, either merges into the slot
// still being drained or relinks it behind the tail. It never links a slot
// to itself.
func (t *Table) ProcessEvents(fn Visitor) int {
	visited := 0
	cur := uint8(0)
	for {
		next := Next(t.words[cur].Load())
		last := false
		if next == 0 {
			if t.tail.CompareAndSwap(uint32(cur), 0) {
				last = true
			} else {
				// a producer swapped the tail but has not linked it yet
				for next == 0 {
					next = Next(t.words[cur].Load())
				}
			}
		}
		if cur == 0 {
			if last {
				return visited
			}
			t.words[0].SetNext(0)
		} else {
			_, flags := t.words[cur].Take()
			cpu := t.cpu[cur].Swap(0)
			flags &^= flagPending
			if flags != 0 || cpu != 0 {
				fn(cur, flags, cpu)
				visited++
			}
			if last {
				return visited
			}
		}
		cur = next
	}
}

func (t *Table) mustBound(id uint8) {
	if id == 0 {
		panic("notify: event id 0 is reserved")
	}
	if Flags(t.words[id].Load())&FlagFree != 0 {
		panic(fmt.Sprintf("notify: event %d is not allocated", id))
	}
}
