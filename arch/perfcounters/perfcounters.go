// Package perfcounters implements the performance-counter MMIO region: 18
// fixed 8-byte word-indexed counters. Built around an atomic-counter style
// reused here as a fixed-index array instead of named fields since the
// counter catalogue is addressed by MMIO word index rather than by struct
// field.
package perfcounters

import "sync/atomic"

// Counter indices, in the fixed order the MMIO region exposes them.
const (
	Cycles = iota
	Ops
	Flops
	Loads
	Stores
	LoadBytes
	StoreBytes
	L1ToL2LineLoads
	L1ToL2LineStores
	PlaceSize
	AllocatedThreadSlots
	AllocatedFamilies
	ExclusiveAllocateQueueSize
	reserved13
	reserved14
	reserved15
	ExternalMemoryLineLoads
	ExternalMemoryLineStores

	numCounters
)

// reservedLow and reservedHigh bound the inclusive range of indices that
// must read back as all-ones regardless of what (if anything) is stored.
const (
	reservedLow  = reserved13
	reservedHigh = reserved15
)

// Bank is the 18-counter MMIO region. Counters use atomic.Uint64 even
// though this simulator's kernel is single-threaded, since the MMIO read
// path may be invoked from outside the kernel's own process scheduling
// (an external introspection or debugger read).
type Bank struct {
	counters [numCounters]atomic.Uint64
}

// New constructs a zeroed counter bank.
func New() *Bank {
	return &Bank{}
}

// Add increments counter idx by delta. Out-of-range indices and the
// reserved 13-15 band are no-ops, mirroring the MMIO read side's "unknown
// indices return 0 / reserved reads as all-ones" rule: nothing can ever be
// accumulated into a slot whose read value is fixed.
func (b *Bank) Add(idx int, delta uint64) {
	if idx < 0 || idx >= numCounters {
		return
	}
	if idx >= reservedLow && idx <= reservedHigh {
		return
	}
	b.counters[idx].Add(delta)
}

// Set overwrites counter idx, subject to the same range/reserved rule as
// Add.
func (b *Bank) Set(idx int, value uint64) {
	if idx < 0 || idx >= numCounters {
		return
	}
	if idx >= reservedLow && idx <= reservedHigh {
		return
	}
	b.counters[idx].Store(value)
}

// Read performs an MMIO-style read of counter idx at the given byte size.
// Unknown indices read as zero; reads of size != 8 fail outright; indices
// 13-15 always read as all-ones regardless of any Set/Add ever issued
// against them.
func (b *Bank) Read(idx int, size int) (value uint64, ok bool) {
	if size != 8 {
		return 0, false
	}
	if idx < 0 || idx >= numCounters {
		return 0, true
	}
	if idx >= reservedLow && idx <= reservedHigh {
		return ^uint64(0), true
	}
	return b.counters[idx].Load(), true
}

// NumCounters returns the fixed catalogue size (18).
func NumCounters() int { return numCounters }
