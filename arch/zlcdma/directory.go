package zlcdma

import (
	"fmt"

	"github.com/mgsim-go/mgsim/sim"
)

// Back-pressure thresholds a directory requires before committing to a
// forward: a message only takes the low-latency "shortcut" path around the
// ring it arrived on when the far side has enough slack to absorb it,
// otherwise it must divert onto the other ring (MINSPACE_FORWARD slots is
// enough to guarantee eventual delivery without deadlock). Named and valued
// exactly as original_source/arch/mem/zlcdma/Directory.cpp's
// MINSPACE_SHORTCUT/MINSPACE_FORWARD constants.
const (
	MinspaceShortcut = 2
	MinspaceForward  = 1
)

// Line is one directory line's coherence state: which tag it tracks and how
// many of its tokens are currently inside this directory's local group.
type Line struct {
	Valid  bool
	Tag    uint64
	Tokens int
}

// Directory is one ring-attached coherence directory, covering a
// contiguous range of cache ids "below" it (its local group). Grounded on
// Directory.cpp's m_lines array, m_bottom/m_top Node pair sharing a single
// p_lines ArbitratedService, and its OnMessageReceivedBottom/Top handlers.
type Directory struct {
	obj *sim.Object

	assoc, sets int
	lineSize    uint64
	lines       []Line

	firstCache, lastCache int // inclusive range of cache ids this directory is local (below) for

	bottom *Node
	top    *Node
	arena  *Arena

	service *sim.ArbitratedService

	NumReads          uint64
	NumAcquires       uint64
	NumEvictions      uint64
	NumNotifications  uint64
	NumShortcuts      uint64
	NumDiverts        uint64
}

// New constructs a directory of assoc*sets lines, local to cache ids in
// [firstCache, lastCache], sharing arena with every other directory on the
// same ring pair.
func New(obj *sim.Object, assoc, sets int, lineSize uint64, firstCache, lastCache int, arena *Arena, bottomCap, topCap int) *Directory {
	d := &Directory{
		obj:        obj,
		assoc:      assoc,
		sets:       sets,
		lineSize:   lineSize,
		lines:      make([]Line, assoc*sets),
		firstCache: firstCache,
		lastCache:  lastCache,
		arena:      arena,
		service:    sim.NewArbitratedService(obj.Path() + ".zlcdma.lines"),
	}
	d.bottom = NewNode(obj, "bottom", bottomCap)
	d.top = NewNode(obj, "top", topCap)
	return d
}

// Bottom and Top expose this directory's ring attachment points, for
// wiring into WireRing and for registering their incoming buffers with a
// kernel.
func (d *Directory) Bottom() *Node { return d.bottom }
func (d *Directory) Top() *Node    { return d.top }

// Service exposes the shared line-table arbiter as a sim.Storage.
func (d *Directory) Service() *sim.ArbitratedService { return d.service }

// isBelow reports whether cache id belongs to this directory's local
// group, i.e. this directory is the home directory for requests
// originating there. Grounded on Directory::IsBelow.
func (d *Directory) isBelow(cacheID int) bool {
	return cacheID >= d.firstCache && cacheID <= d.lastCache
}

func (d *Directory) tagAndSet(address uint64) (uint64, int) {
	block := address / d.lineSize
	return block, int(block % uint64(d.sets))
}

func (d *Directory) findLine(address uint64) (int, bool) {
	tag, set := d.tagAndSet(address)
	for i := set * d.assoc; i < (set+1)*d.assoc; i++ {
		if d.lines[i].Valid && d.lines[i].Tag == tag {
			return i, true
		}
	}
	return -1, false
}

// pickLineSlot returns the first invalid line in address's set, or -1 if
// the set is fully occupied (a configuration error this package does not
// try to recover from, the way Directory::AllocateLine assumes a free slot
// always exists and asserts otherwise).
func (d *Directory) pickLineSlot(address uint64) int {
	_, set := d.tagAndSet(address)
	for i := set * d.assoc; i < (set+1)*d.assoc; i++ {
		if !d.lines[i].Valid {
			return i
		}
	}
	return -1
}

// onReceivedBottom handles a message arriving on the bottom ring, i.e.
// moving away from the local caches toward the rest of the grid. Grounded
// 1:1 on Directory::OnMessageReceivedBottom: account for tokens the message
// already carries, absorb and terminate LocalDirNotification messages
// rather than forwarding them, then forward everything else onward.
func (d *Directory) onReceivedBottom(txn *sim.Txn, handle Handle) bool {
	msg := d.arena.Get(handle)

	if !msg.Ignore {
		idx, found := d.findLine(msg.Address)

		if msg.Type == LocalDirNotification {
			if !found {
				return false
			}
			d.NumNotifications++
			txn.addPending(func() {
				d.lines[idx].Tokens += msg.Tokens
				d.arena.Free(handle)
			})
			return true
		}

		if msg.Tokens > 0 && !msg.Transient {
			if !found {
				return false
			}
			txn.addPending(func() {
				d.lines[idx].Tokens -= msg.Tokens
				if d.lines[idx].Tokens <= 0 {
					d.lines[idx].Valid = false
				}
			})
		}
	}

	if !d.top.Send(txn, handle, MinspaceForward) {
		return false
	}
	txn.addPending(func() { msg.Ignore = false })
	return true
}

// onReceivedTop handles a message arriving on the top ring, moving toward
// the local caches. Grounded on Directory::OnMessageReceivedTop: line stays
// unresolved for Eviction (evictions are always forwarded, never looked up
// or allocated); Read/AcquireTokens look the line up and allocate it on
// first local sight of the address. Account incoming tokens, then either
// shortcut the message onward on the top ring (if it hasn't reached its
// home yet and there's enough slack) or divert it down to the bottom ring
// once it has.
func (d *Directory) onReceivedTop(txn *sim.Txn, handle Handle) bool {
	msg := d.arena.Get(handle)

	var idx int
	found := false

	switch msg.Type {
	case Read, AcquireTokens:
		idx, found = d.findLine(msg.Address)
		if !found && d.isBelow(msg.Source) {
			slot := d.pickLineSlot(msg.Address)
			if slot == -1 {
				return false
			}
			tag, _ := d.tagAndSet(msg.Address)
			idx = slot
			found = true
			txn.addPending(func() {
				d.lines[slot] = Line{Valid: true, Tag: tag}
			})
			if msg.Type == Read {
				d.NumReads++
			} else {
				d.NumAcquires++
			}
		}
	case Eviction:
		d.NumEvictions++
	}

	if d.isBelow(msg.Source) && !msg.Transient {
		if !found {
			txn.Fail(sim.NewInvariantError(d.obj.Path()+".onReceivedTop", txn.Cycle(),
				fmt.Sprintf("directory line for address %#x required but absent", msg.Address)))
			return false
		}
		lineIdx := idx
		txn.addPending(func() { d.lines[lineIdx].Tokens += msg.Tokens })
	}

	if !found {
		if d.top.Send(txn, handle, MinspaceShortcut) {
			d.NumShortcuts++
			return true
		}
		txn.addPending(func() { msg.Ignore = true })
		if !d.bottom.Send(txn, handle, MinspaceForward) {
			return false
		}
		d.NumDiverts++
		return true
	}

	if !d.bottom.Send(txn, handle, MinspaceForward) {
		return false
	}
	d.NumDiverts++
	return true
}

// ProcessBottom returns the process that drains and dispatches messages
// arriving on the bottom ring, one per cycle.
func (d *Directory) ProcessBottom(name string) *sim.Process {
	storages := []sim.Storage{d.bottom.incoming, d.service}
	if d.top.next != nil {
		storages = append(storages, d.top.next.incoming)
	}
	p := sim.NewProcess(d.obj, name, func(txn *sim.Txn) sim.Result {
		handle, ok := d.bottom.incoming.Front()
		if !ok {
			return sim.Success
		}
		if !d.service.Invoke(txn, 0) {
			return sim.Delayed
		}
		if !d.onReceivedBottom(txn, handle) {
			return sim.Failed
		}
		if _, popped := d.bottom.incoming.TryPop(txn); !popped {
			return sim.Failed
		}
		return sim.Success
	}, nil, storages)
	p.MarkAlwaysActive()
	return p
}

// ProcessTop returns the process that drains and dispatches messages
// arriving on the top ring, one per cycle.
func (d *Directory) ProcessTop(name string) *sim.Process {
	storages := []sim.Storage{d.top.incoming, d.service}
	if d.top.next != nil {
		storages = append(storages, d.top.next.incoming)
	}
	if d.bottom.next != nil {
		storages = append(storages, d.bottom.next.incoming)
	}
	p := sim.NewProcess(d.obj, name, func(txn *sim.Txn) sim.Result {
		handle, ok := d.top.incoming.Front()
		if !ok {
			return sim.Success
		}
		if !d.service.Invoke(txn, 0) {
			return sim.Delayed
		}
		if !d.onReceivedTop(txn, handle) {
			return sim.Failed
		}
		if _, popped := d.top.incoming.TryPop(txn); !popped {
			return sim.Failed
		}
		return sim.Success
	}, nil, storages)
	p.MarkAlwaysActive()
	return p
}

// Submit injects a message onto the bottom ring from a local cache, for
// test harnesses and for the core-side coherence client to call.
func (d *Directory) Submit(txn *sim.Txn, msg Message) (Handle, bool) {
	h := d.arena.Alloc(msg)
	if !d.bottom.incoming.TryPush(txn, h) {
		d.arena.Free(h)
		return 0, false
	}
	return h, true
}

// TrueTokens returns the real token count for line i, for tests and
// non-display introspection.
func (d *Directory) TrueTokens(i int) int { return d.lines[i].Tokens }

// Line exposes line i by flat index.
func (d *Directory) Line(i int) Line { return d.lines[i] }

// NumLines returns the directory's total line count.
func (d *Directory) NumLines() int { return len(d.lines) }

// DumpLine renders line i in the Cmd_Read introspection format. The token
// count printed here is a literal zero, not line.Tokens: the original's
// Cmd_Read has its token-count column's source expression commented out
// (`//line.tokens`), so it always displays zero regardless of the line's
// real state. Reproduced here for parity; use TrueTokens for real state.
func (d *Directory) DumpLine(i int) string {
	l := d.lines[i]
	if !l.Valid {
		return fmt.Sprintf("%4d: -", i)
	}
	return fmt.Sprintf("%4d: tag=%#x tokens=%6d", i, l.Tag, 0)
}
