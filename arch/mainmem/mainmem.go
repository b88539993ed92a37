// Package mainmem is the flat backing store behind a DCache: a
// byte-addressable array with a fixed request latency, held as one flat
// RAM image and driven by the simulator's single-threaded,
// cycle-scheduled completion model.
package mainmem

import (
	"github.com/mgsim-go/mgsim/sim"
)

// ShardSize is exported for callers; nothing in this package uses it. The
// kernel is single-threaded, so the store needs no locking: there is
// never more than one mutator active within a cycle.
const ShardSize = 64 * 1024

// Callback receives a completed memory operation.
type Callback interface {
	OnReadCompleted(addr uint64, data []byte)
	OnWriteCompleted(addr uint64)
}

type pending struct {
	dueAt CycleNo
	addr  uint64
	size  int
	write bool
	data  []byte
	cb    Callback
}

// CycleNo aliases sim.CycleNo for readability within this package.
type CycleNo = sim.CycleNo

// Memory is the flat backing store. Reads and writes complete Latency
// cycles after being issued, delivered via Callback on the cycle they
// become due.
type Memory struct {
	obj     *sim.Object
	data    []byte
	size    int64
	Latency CycleNo

	kernel   *sim.Kernel
	inflight []pending
}

// New constructs a zeroed backing store of size bytes.
func New(obj *sim.Object, k *sim.Kernel, size int64, latency CycleNo) *Memory {
	return &Memory{obj: obj, data: make([]byte, size), size: size, Latency: latency, kernel: k}
}

// Process returns the always-active completion-delivery process.
func (m *Memory) Process(name string) *sim.Process {
	p := sim.NewProcess(m.obj, name, func(txn *sim.Txn) sim.Result {
		m.deliverDue()
		return sim.Success
	}, nil, nil)
	p.MarkAlwaysActive()
	return p
}

func (m *Memory) deliverDue() {
	now := m.kernel.Cycle()
	remaining := m.inflight[:0]
	for _, op := range m.inflight {
		if op.dueAt > now {
			remaining = append(remaining, op)
			continue
		}
		if op.write {
			copy(m.data[op.addr:], op.data)
			op.cb.OnWriteCompleted(op.addr)
		} else {
			buf := make([]byte, op.size)
			copy(buf, m.data[op.addr:int(op.addr)+op.size])
			op.cb.OnReadCompleted(op.addr, buf)
		}
	}
	m.inflight = remaining
}

// IssueRead schedules a read completion Latency cycles from now.
func (m *Memory) IssueRead(addr uint64, size int, cb Callback) {
	m.inflight = append(m.inflight, pending{
		dueAt: m.kernel.Cycle() + m.Latency,
		addr:  addr,
		size:  size,
		cb:    cb,
	})
}

// IssueWrite schedules a write completion Latency cycles from now. data
// is copied immediately (no torn writes from concurrent mutation) but
// only becomes visible to reads, and only signals cb, once due.
func (m *Memory) IssueWrite(addr uint64, data []byte, cb Callback) {
	owned := make([]byte, len(data))
	copy(owned, data)
	m.inflight = append(m.inflight, pending{
		dueAt: m.kernel.Cycle() + m.Latency,
		addr:  addr,
		write: true,
		data:  owned,
		cb:    cb,
	})
}

// Size returns the backing store's byte size.
func (m *Memory) Size() int64 { return m.size }
