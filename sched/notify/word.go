// Package notify implements the scheduler event words shared between the
// kernel and a user-level scheduler.
//
// Each event word is a single 32-bit value updated only with compare-and-swap.
// Its layout is a wire contract with the kernel and must not change:
//
//	bits  0..7   next   id of the next pending event in the chain (0 = end)
//	bits  8..15  flags  event flags, see Flag*
//	bits 16..31  urgency  scheduler-assigned urgency of the event's thread
//
// Alongside each word the table keeps a CPU-consumption counter that the kernel
// adds to and the scheduler swaps back to zero when it drains the event.
package notify

import "sync/atomic"

const (
	nextShift    = 0
	nextMask     = 0xFF
	flagsShift   = 8
	flagsMask    = 0xFF
	urgencyShift = 16
	urgencyMask  = 0xFFFF
)

// Event flags.
const (
	FlagBlocked uint8 = 1 << 0 // thread blocked in the kernel
	FlagWakeup  uint8 = 1 << 1 // thread became runnable
	FlagFree    uint8 = 1 << 6 // slot not bound to a thread
	flagPending uint8 = 1 << 7 // linked into the pending chain
)

// Next extracts the next-event id from a packed word.
func Next(v uint32) uint8 { return uint8((v >> nextShift) & nextMask) }

// Flags extracts the flags from a packed word.
func Flags(v uint32) uint8 { return uint8((v >> flagsShift) & flagsMask) }

// Urgency extracts the urgency from a packed word.
func Urgency(v uint32) uint16 { return uint16((v >> urgencyShift) & urgencyMask) }

// Pack builds a word from its fields.
func Pack(next, flags uint8, urgency uint16) uint32 {
	return uint32(next)<<nextShift | uint32(flags)<<flagsShift | uint32(urgency)<<urgencyShift
}

func withNext(v uint32, next uint8) uint32 {
	return v&^(nextMask<<nextShift) | uint32(next)<<nextShift
}

func withFlags(v uint32, flags uint8) uint32 {
	return v&^(flagsMask<<flagsShift) | uint32(flags)<<flagsShift
}

func withUrgency(v uint32, urgency uint16) uint32 {
	return v&^(urgencyMask<<urgencyShift) | uint32(urgency)<<urgencyShift
}

// Word is one packed event word.
type Word struct {
	v atomic.Uint32
}

// Load returns the raw packed value.
func (w *Word) Load() uint32 { return w.v.Load() }

// update applies fn with a CAS retry loop and returns the old and new values.
func (w *Word) update(fn func(old uint32) uint32) (old, updated uint32) {
	for {
		old = w.v.Load()
		updated = fn(old)
		if w.v.CompareAndSwap(old, updated) {
			return old, updated
		}
	}
}

// SetUrgency replaces the urgency, leaving next and flags untouched.
func (w *Word) SetUrgency(u uint16) {
	w.update(func(old uint32) uint32 { return withUrgency(old, u) })
}

// SetNext replaces the next-event id.
func (w *Word) SetNext(next uint8) {
	w.update(func(old uint32) uint32 { return withNext(old, next) })
}

// OrFlags sets the given flag bits and returns the flags held before.
func (w *Word) OrFlags(f uint8) uint8 {
	old, _ := w.update(func(old uint32) uint32 { return withFlags(old, Flags(old)|f) })
	return Flags(old)
}

// ClearFlags clears the given flag bits.
func (w *Word) ClearFlags(f uint8) {
	w.update(func(old uint32) uint32 { return withFlags(old, Flags(old)&^f) })
}

// Take atomically clears next and flags, keeping urgency, and returns what
// was cleared.
func (w *Word) Take() (next, flags uint8) {
	old, _ := w.update(func(old uint32) uint32 { return old &^ (nextMask<<nextShift | flagsMask<<flagsShift) })
	return Next(old), Flags(old)
}
