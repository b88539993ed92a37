// Package fpu implements the shared, multi-pipeline floating-point unit:
// per-op-type pipelines with configurable latency, a single writeback
// port arbitrated round-robin across source ids, and IEEE-754 size-4/8
// numeric semantics. Grounded on original_source/arch/FPU.h's
// Unit/Result/last_source shape, adapted from the C++ deque-of-slots
// pipeline into a plain Go slice advanced once per cycle by an
// always-active sim.Process.
package fpu

import (
	"math"

	"github.com/mgsim-go/mgsim/sim"
)

// Op is one of the five operations the unit header enumerates.
type Op int

const (
	Add Op = iota
	Sub
	Mul
	Div
	Sqrt
	numOps
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case Sqrt:
		return "sqrt"
	default:
		return "?"
	}
}

// Client is the consumer-side contract an FPU source implements: the
// original's IFPUClient.
type Client interface {
	Name() string
	CheckOutputAvailability(addr sim.RegAddr) bool
	WriteResult(addr sim.RegAddr, value sim.RegValue) bool
}

// source is the registered identity and declared output trace of one
// FPU client, assigned a dense id by RegisterSource.
type source struct {
	client Client
	trace  []sim.Storage
}

// result is an in-flight operation's progress through a pipeline: the
// original's (private) Result struct.
type result struct {
	addr   sim.RegAddr
	value  float64
	source int
	size   uint8
	state  sim.CycleNo // cycles elapsed since admission
}

// unit is one op type's pipeline: latency, pipelined-or-not, and a FIFO
// of in-flight slots (head = oldest = index 0).
type unit struct {
	latency   sim.CycleNo
	pipelined bool
	slots     []result
}

// UnitConfig configures one op type's pipeline at wiring time.
type UnitConfig struct {
	Latency   sim.CycleNo
	Pipelined bool
}

// FPU is the shared execution unit. One pipeline process runs every
// cycle: it advances every unit's in-flight slots and performs at most
// one writeback, chosen round-robin across source ids via lastSource,
// mirroring "If multiple units are simultaneously ready, round-robin
// across source ids using the last_source cursor, advancing it on every
// success."
type FPU struct {
	obj     *sim.Object
	units   [numOps]*unit
	sources []*source

	lastSource int

	Writebacks uint64
	Queued     uint64
}

// New constructs an FPU with the given per-op pipeline configuration.
// Every op must have an entry in cfg; a missing entry defaults to
// latency 1, non-pipelined.
func New(obj *sim.Object, cfg map[Op]UnitConfig) *FPU {
	f := &FPU{obj: obj, lastSource: -1}
	for op := Op(0); op < numOps; op++ {
		c, ok := cfg[op]
		if !ok {
			c = UnitConfig{Latency: 1, Pipelined: false}
		}
		f.units[op] = &unit{latency: c.Latency, pipelined: c.Pipelined}
	}
	return f
}

// RegisterSource registers client with its declared output trace
// (the set of storages its WriteResult may touch) and returns a dense
// source id to pass to QueueOperation. Wiring-time only.
func (f *FPU) RegisterSource(client Client, outputTrace []sim.Storage) int {
	f.sources = append(f.sources, &source{client: client, trace: outputTrace})
	return len(f.sources) - 1
}

// GetSourceTrace returns the output trace declared at registration for
// the deadlock detector's static writeback-permutation enumeration.
func (f *FPU) GetSourceTrace(sourceID int) []sim.Storage {
	if sourceID < 0 || sourceID >= len(f.sources) {
		return nil
	}
	return f.sources[sourceID].trace
}

// QueueOperation attempts to admit an operation into op's pipeline. It
// fails (returns false) if the pipeline has no free tail slot this
// cycle: non-pipelined units require the queue entirely empty
// (latency-bubble), pipelined units require queue length < latency.
func (f *FPU) QueueOperation(sourceID int, op Op, size uint8, ra, rb float64, dest sim.RegAddr) bool {
	u := f.units[op]
	if u.pipelined {
		if sim.CycleNo(len(u.slots)) >= u.latency {
			return false
		}
	} else if len(u.slots) != 0 {
		return false
	}
	u.slots = append(u.slots, result{
		addr:   dest,
		value:  compute(op, size, ra, rb),
		source: sourceID,
		size:   size,
		state:  0,
	})
	f.Queued++
	return true
}

// compute applies IEEE-754 numeric semantics at the requested size.
// The operation is computed in float64; for size=4 the result is then
// rounded to float32 (operands are used as given):
// round-to-nearest-even (Go's float64->float32 conversion), division by
// zero yielding signed infinity, sqrt of a negative non-zero yielding
// NaN: all standard IEEE-754 behavior needing no special-casing.
func compute(op Op, size uint8, ra, rb float64) float64 {
	var v float64
	switch op {
	case Add:
		v = ra + rb
	case Sub:
		v = ra - rb
	case Mul:
		v = ra * rb
	case Div:
		v = ra / rb
	case Sqrt:
		v = math.Sqrt(ra)
	}
	if size == 4 {
		return float64(float32(v))
	}
	return v
}

// Process returns the always-active pipeline-advance process, to be
// registered with a sim.Kernel once at wiring time.
func (f *FPU) Process(name string) *sim.Process {
	p := sim.NewProcess(f.obj, name, func(txn *sim.Txn) sim.Result {
		f.advance()
		f.writeback()
		return sim.Success
	}, nil, nil)
	p.MarkAlwaysActive()
	return p
}

func (f *FPU) advance() {
	for _, u := range f.units {
		for i := range u.slots {
			u.slots[i].state++
		}
	}
}

// writeback selects at most one ready head slot per cycle, the unit's
// shared register-file write port, chosen round-robin across source ids
// starting just after lastSource.
func (f *FPU) writeback() {
	type candidate struct {
		opIdx int
		rank  int
	}
	var candidates []candidate
	n := len(f.sources)
	for i, u := range f.units {
		if len(u.slots) == 0 {
			continue
		}
		head := u.slots[0]
		if head.state < u.latency {
			continue
		}
		rank := head.source
		if n > 0 {
			rank = ((head.source - f.lastSource - 1) % n + n) % n
		}
		candidates = append(candidates, candidate{opIdx: i, rank: rank})
	}
	if len(candidates) == 0 {
		return
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.rank < best.rank {
			best = c
		}
	}

	u := f.units[best.opIdx]
	head := u.slots[0]
	src := f.sources[head.source]

	if !src.client.CheckOutputAvailability(head.addr) {
		return // head stall: client refused, slot stays in place
	}
	var value sim.RegValue
	if head.size == 4 {
		value = sim.FullFloat(4, head.value)
	} else {
		value = sim.FullFloat(8, head.value)
	}
	if !src.client.WriteResult(head.addr, value) {
		return
	}
	u.slots = u.slots[1:]
	f.lastSource = head.source
	f.Writebacks++
}
