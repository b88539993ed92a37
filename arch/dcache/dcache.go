// Package dcache implements the per-core L1 data cache: set-associative
// lookup with a pluggable bank selector, LRU eviction among Full/Invalid
// lines (Loading lines are immune), merge-on-snoop, and multi-register
// writeback draining one register per cycle through an arbitrated
// service. Grounded on original_source/arch/drisc/DCache.h's Line/
// WritebackState shape.
package dcache

import (
	"github.com/mgsim-go/mgsim/arch/mainmem"
	"github.com/mgsim-go/mgsim/sim"
)

// LineState mirrors the original's LINE_EMPTY/LOADING/INVALID/FULL.
type LineState int

const (
	Empty LineState = iota
	Loading
	Invalid
	Full
)

// Line is one cache line: tag, data, per-byte valid bitmap, LRU
// timestamp and state. Waiting is left zero by this package; the registers
// waiting on a fill are kept in DCache.waitingMisses.
type Line struct {
	Tag     uint64
	Data    []byte
	Valid   []bool
	Access  sim.CycleNo
	Waiting sim.RegAddr
	State   LineState
}

// ReadResult is the outcome of Read.
type ReadResult int

const (
	Hit ReadResult = iota
	MissStarted
	MissPending
	ReadFailed
)

// WriteResult is the outcome of Write.
type WriteResult int

const (
	Issued WriteResult = iota
	WriteFailed
)

// Selector maps a byte address to a (tag, set) pair, the pluggable bank
// selector the header names IBankSelector.
type Selector func(address uint64, lineSize, numSets int) (tag uint64, set int)

// DirectSelector maps address/lineSize modulo numSets to a set, the
// simplest possible selector.
func DirectSelector(address uint64, lineSize, numSets int) (uint64, int) {
	block := address / uint64(lineSize)
	return block, int(block % uint64(numSets))
}

// writebackBundle is one outstanding multi-register load completion
// draining one register per cycle: the original's WritebackState.
type writebackBundle struct {
	value  uint64
	addr   sim.RegAddr
	next   sim.RegAddr
	size   int
	offset int
	fid    uint32
}

// RegisterClient receives drained multi-register writebacks.
type RegisterClient interface {
	WriteFPUResult(addr sim.RegAddr, value sim.RegValue) bool
}

// DCache is the L1 data cache.
type DCache struct {
	obj *sim.Object

	assoc    int
	sets     int
	lineSize int
	selector Selector

	lines []Line // assoc*sets, set s occupies [s*assoc, s*assoc+assoc)

	mem    *mainmem.Memory
	client RegisterClient

	service *sim.ArbitratedService
	wbQueue []writebackBundle

	// waitingMisses maps a line index to the registers waiting on its fill.
	waitingMisses map[int][]sim.RegAddr

	NumReadHits       uint64
	NumEmptyMisses    uint64
	NumLoadingMisses  uint64
	NumInvalidMisses  uint64
	NumHardConflicts  uint64
	NumWriteHits      uint64
	NumWriteMisses    uint64
	NumSnoops         uint64
}

// New constructs a DCache of the given associativity, set count and line
// size, backed by mem.
func New(obj *sim.Object, assoc, sets, lineSize int, selector Selector, mem *mainmem.Memory, client RegisterClient) *DCache {
	if selector == nil {
		selector = DirectSelector
	}
	d := &DCache{
		obj: obj, assoc: assoc, sets: sets, lineSize: lineSize, selector: selector,
		lines:         make([]Line, assoc*sets),
		mem:           mem,
		client:        client,
		service:       sim.NewArbitratedService(obj.Path() + ".dcache.service"),
		waitingMisses: make(map[int][]sim.RegAddr),
	}
	for i := range d.lines {
		d.lines[i].Data = make([]byte, lineSize)
		d.lines[i].Valid = make([]bool, lineSize)
	}
	return d
}

// Service exposes the arbitrated writeback-drain port as a sim.Storage,
// for wiring into a kernel.
func (d *DCache) Service() *sim.ArbitratedService { return d.service }

func (d *DCache) findLine(tag uint64, set int) (int, bool) {
	for i := set * d.assoc; i < (set+1)*d.assoc; i++ {
		if d.lines[i].State != Empty && d.lines[i].State != Invalid && d.lines[i].Tag == tag {
			return i, true
		}
	}
	return -1, false
}

// pickVictim chooses an LRU Full or Invalid line in set; Loading lines
// are never evicted. Returns -1 if none evictable (hard conflict).
func (d *DCache) pickVictim(set int) int {
	best := -1
	for i := set * d.assoc; i < (set+1)*d.assoc; i++ {
		l := &d.lines[i]
		if l.State == Loading {
			continue
		}
		if l.State == Empty {
			return i
		}
		if best == -1 || l.Access < d.lines[best].Access {
			best = i
		}
	}
	return best
}

// Read looks up address; see ReadResult for the four outcomes.
func (d *DCache) Read(cycle sim.CycleNo, address uint64, size int, dest sim.RegAddr) ReadResult {
	tag, set := d.selector(address, d.lineSize, d.sets)
	if idx, ok := d.findLine(tag, set); ok {
		l := &d.lines[idx]
		if l.State == Full {
			l.Access = cycle
			d.NumReadHits++
			return Hit
		}
		// Loading: attach as a pending waiter.
		d.waitingMisses[idx] = append(d.waitingMisses[idx], dest)
		d.NumLoadingMisses++
		return MissPending
	}

	victim := d.pickVictim(set)
	if victim == -1 {
		d.NumHardConflicts++
		return ReadFailed
	}
	l := &d.lines[victim]
	if l.State == Empty {
		d.NumEmptyMisses++
	} else {
		d.NumInvalidMisses++
	}
	l.Tag = tag
	l.State = Loading
	l.Access = cycle
	for i := range l.Valid {
		l.Valid[i] = false
	}
	d.waitingMisses[victim] = []sim.RegAddr{dest}
	d.mem.IssueRead(tag*uint64(d.lineSize), d.lineSize, dcacheMemCallback{d, victim})
	return MissStarted
}

// Write passes a write through to memory and opportunistically fills a
// resident Full line so later reads hit.
func (d *DCache) Write(cycle sim.CycleNo, address uint64, data []byte, fid uint32) WriteResult {
	tag, set := d.selector(address, d.lineSize, d.sets)
	off := int(address % uint64(d.lineSize))
	if idx, ok := d.findLine(tag, set); ok {
		l := &d.lines[idx]
		if l.State == Full {
			copy(l.Data[off:], data)
			for i := range data {
				l.Valid[off+i] = true
			}
			l.Access = cycle
			d.NumWriteHits++
		} else {
			d.NumWriteMisses++
		}
	} else {
		d.NumWriteMisses++
	}
	d.mem.IssueWrite(address, data, noopCallback{})
	return Issued
}

type noopCallback struct{}

func (noopCallback) OnReadCompleted(addr uint64, data []byte) {}
func (noopCallback) OnWriteCompleted(addr uint64)              {}

type dcacheMemCallback struct {
	d   *DCache
	idx int
}

// OnReadCompleted fills the line only if it is still Loading the block
// that was requested; a fill for a line invalidated (or reallocated) in
// the meantime is discarded.
func (c dcacheMemCallback) OnReadCompleted(addr uint64, data []byte) {
	l := &c.d.lines[c.idx]
	if l.State != Loading || l.Tag*uint64(c.d.lineSize) != addr {
		return
	}
	c.d.completeLoad(c.idx, data)
}
func (c dcacheMemCallback) OnWriteCompleted(addr uint64) {}

func (d *DCache) completeLoad(idx int, data []byte) {
	l := &d.lines[idx]
	copy(l.Data, data)
	for i := range l.Valid {
		l.Valid[i] = true
	}
	l.State = Full

	waiters := d.waitingMisses[idx]
	delete(d.waitingMisses, idx)
	if len(waiters) == 0 {
		return
	}
	d.wbQueue = append(d.wbQueue, writebackBundle{
		addr: waiters[0],
		size: len(waiters),
	})
	// real register-address arithmetic is the allocator's job (out of
	// scope), so each waiter, the first included, is queued as its own
	// single-register bundle, preserving arrival order and the "one
	// register per cycle" drain rate; the offset field is not used.
	d.wbQueue[len(d.wbQueue)-1].size = 1
	for _, w := range waiters[1:] {
		d.wbQueue = append(d.wbQueue, writebackBundle{addr: w, size: 1})
	}
}

// OnSnooped merges externally-written bytes into any resident line for
// addr whose per-byte valid bitmap allows it, without changing state.
func (d *DCache) OnSnooped(address uint64, data []byte, mask []bool) {
	tag, set := d.selector(address, d.lineSize, d.sets)
	idx, ok := d.findLine(tag, set)
	if !ok {
		return
	}
	d.NumSnoops++
	l := &d.lines[idx]
	for i := 0; i < len(data) && i < d.lineSize; i++ {
		if i < len(mask) && mask[i] {
			l.Data[i] = data[i]
			l.Valid[i] = true
		}
	}
}

// OnInvalidated drops a resident line: Full becomes Invalid; a Loading
// line's waiters are dropped and the line reverts to Empty; the read
// already in flight for it is discarded when it completes.
func (d *DCache) OnInvalidated(address uint64) {
	tag, set := d.selector(address, d.lineSize, d.sets)
	idx, ok := d.findLine(tag, set)
	if !ok {
		return
	}
	l := &d.lines[idx]
	switch l.State {
	case Full:
		l.State = Invalid
	case Loading:
		l.State = Empty
		delete(d.waitingMisses, idx)
	}
}

// Process returns the always-active writeback-drain process: one
// register from the head bundle is written back per cycle, through the
// shared arbitrated service, until the bundle (and then the queue) is
// drained.
func (d *DCache) Process(name string) *sim.Process {
	p := sim.NewProcess(d.obj, name, func(txn *sim.Txn) sim.Result {
		if len(d.wbQueue) == 0 {
			return sim.Success
		}
		if !d.service.Invoke(txn, 0) {
			return sim.Delayed
		}
		head := &d.wbQueue[0]
		if d.client != nil {
			d.client.WriteFPUResult(head.addr, sim.FullInt(8, head.value))
		}
		head.size--
		if head.size <= 0 {
			d.wbQueue = d.wbQueue[1:]
		}
		return sim.Success
	}, nil, []sim.Storage{d.service})
	p.MarkAlwaysActive()
	return p
}

// GetLine exposes a line by flat index for introspection/testing.
func (d *DCache) GetLine(i int) Line { return d.lines[i] }

// NumLines returns the total line count (assoc * sets).
func (d *DCache) NumLines() int { return len(d.lines) }
