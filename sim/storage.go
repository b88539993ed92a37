package sim

// Storage is the common interface every storage kind implements: a name for
// diagnostics, a per-cycle reservation reset, a commit step that applies
// whatever was reserved this cycle, and a sensitivity list of processes to
// wake when the commit changed observable state.
type Storage interface {
	Name() string

	// resetCycle clears any tentative (check-phase) reservations. Called
	// by the kernel at the start of every cycle, before any process
	// runs its check phase.
	resetCycle()

	// commitCycle applies whatever was reserved this cycle and returns
	// the processes to wake because observable state changed.
	commitCycle() []*Process

	// Sensitize registers p to be woken when this storage's commit
	// changes observable state.
	Sensitize(p *Process)
}

type sensitivity struct {
	waiters []*Process
}

// Sensitize registers p to be woken when this storage's commit changes
// observable state. Promoted to every embedding storage type.
func (s *sensitivity) Sensitize(p *Process) { s.waiters = append(s.waiters, p) }

// BoundedBuffer is a FIFO of fixed capacity N. Pushes and pops are
// tentatively reserved during the check phase and applied atomically at
// commit; any commit that applies a push or a pop wakes every sensitized
// process.
type BoundedBuffer[T any] struct {
	name string
	cap  int
	sensitivity

	committed []T

	reservedPush int
	reservedPop  int
	pushJournal  []T
}

// NewBoundedBuffer constructs a bounded FIFO of the given capacity.
func NewBoundedBuffer[T any](name string, capacity int) *BoundedBuffer[T] {
	return &BoundedBuffer[T]{name: name, cap: capacity}
}

func (b *BoundedBuffer[T]) Name() string { return b.name }

func (b *BoundedBuffer[T]) Capacity() int { return b.cap }

// Len returns the committed (pre-commit, cross-cycle visible) length.
func (b *BoundedBuffer[T]) Len() int { return len(b.committed) }

// Empty reports whether the committed buffer currently holds no elements.
func (b *BoundedBuffer[T]) Empty() bool { return len(b.committed) == 0 }

// Full reports whether the committed buffer is at capacity.
func (b *BoundedBuffer[T]) Full() bool { return len(b.committed) >= b.cap }

// Available returns the free capacity left this cycle after accounting
// for reservations already made by earlier-run processes, used by ring
// forwarding to check a minimum free-space requirement before sending.
func (b *BoundedBuffer[T]) Available() int {
	return b.cap - (len(b.committed) + b.reservedPush - b.reservedPop)
}

// Front returns the committed head element without removing it. It is a
// pure read: valid during the check phase, always reflects the
// pre-commit value for this cycle.
func (b *BoundedBuffer[T]) Front() (T, bool) {
	if len(b.committed) == 0 {
		var zero T
		return zero, false
	}
	return b.committed[0], true
}

// TryPush reserves a slot for v. It fails immediately (no side effect) if
// the buffer is full, accounting for pushes already reserved earlier this
// cycle by other processes run before this one.
func (b *BoundedBuffer[T]) TryPush(txn *Txn, v T) bool {
	if !txn.checkWrite(b) {
		return false
	}
	if len(b.committed)+b.reservedPush-b.reservedPop >= b.cap {
		return false
	}
	b.reservedPush++
	txn.addUndo(func() { b.reservedPush-- })
	txn.addPending(func() { b.pushJournal = append(b.pushJournal, v) })
	return true
}

// TryPop reserves removal of the head element, returning its pre-commit
// value. It fails if there is nothing left to pop after accounting for
// pops already reserved this cycle.
func (b *BoundedBuffer[T]) TryPop(txn *Txn) (T, bool) {
	var zero T
	if !txn.checkWrite(b) {
		return zero, false
	}
	if b.reservedPop >= len(b.committed) {
		return zero, false
	}
	v := b.committed[b.reservedPop]
	b.reservedPop++
	txn.addUndo(func() { b.reservedPop-- })
	txn.addPending(func() {})
	return v, true
}

func (b *BoundedBuffer[T]) resetCycle() {
	b.reservedPush, b.reservedPop = 0, 0
	b.pushJournal = b.pushJournal[:0]
}

func (b *BoundedBuffer[T]) commitCycle() []*Process {
	pop := b.reservedPop
	b.reservedPush, b.reservedPop = 0, 0
	if pop == 0 && len(b.pushJournal) == 0 {
		return nil
	}
	b.committed = append(b.committed[:copy(b.committed, b.committed[pop:])], b.pushJournal...)
	return b.waiters
}

// RegisterValueState is the presence tag of a register cell.
type RegisterValueState int

const (
	RegEmpty RegisterValueState = iota
	RegWaiting
	RegFull
)

// RegisterCell holds a presence-tagged scalar value: Empty, Waiting (with a
// list of addresses to wake on fill) or Full (8 bytes of raw payload plus
// an explicit size tag, since size 4 vs 8 is semantically meaningful).
type RegisterCell struct {
	name string
	sensitivity

	state   RegisterValueState
	size    uint8
	bits    uint64
	waiting []RegAddr

	pendingWriteFull    bool
	pendingFullValue    uint64
	pendingFullSize     uint8
	pendingWriteWaiting bool
	pendingWaitAddr     RegAddr
}

func NewRegisterCell(name string) *RegisterCell {
	return &RegisterCell{name: name, state: RegEmpty}
}

func (r *RegisterCell) Name() string { return r.name }

// Read returns the presence-tagged value committed at the start of this
// cycle.
func (r *RegisterCell) Read() RegValue {
	return RegValue{State: r.state, Size: r.size, Bits: r.bits, Waiting: append([]RegAddr(nil), r.waiting...)}
}

// TryWriteFull overrides the cell with a Full value, waking any waiters
// once committed. A Full write always succeeds.
func (r *RegisterCell) TryWriteFull(txn *Txn, size uint8, bits uint64) bool {
	if !txn.checkWrite(r) {
		return false
	}
	txn.addPending(func() {
		r.pendingWriteFull = true
		r.pendingFullValue = bits
		r.pendingFullSize = size
	})
	return true
}

// TryWriteWaiting registers addr as a waiter, but only succeeds if the
// cell is currently Empty.
func (r *RegisterCell) TryWriteWaiting(txn *Txn, addr RegAddr) bool {
	if !txn.checkWrite(r) {
		return false
	}
	if r.state != RegEmpty {
		return false
	}
	txn.addPending(func() {
		r.pendingWriteWaiting = true
		r.pendingWaitAddr = addr
	})
	return true
}

func (r *RegisterCell) resetCycle() {
	r.pendingWriteFull = false
	r.pendingWriteWaiting = false
}

func (r *RegisterCell) commitCycle() []*Process {
	if !r.pendingWriteFull && !r.pendingWriteWaiting {
		return nil
	}
	var wake []*Process
	if r.pendingWriteWaiting {
		r.state = RegWaiting
		r.waiting = append(r.waiting, r.pendingWaitAddr)
	}
	if r.pendingWriteFull {
		wasWaiting := r.state == RegWaiting && len(r.waiting) > 0
		r.state = RegFull
		r.size = r.pendingFullSize
		r.bits = r.pendingFullValue
		if wasWaiting {
			wake = append(wake, r.waiters...)
			r.waiting = nil
		}
	}
	return wake
}

// ArbitratedService is a single-winner-per-cycle arbiter: every
// participating process calls Invoke during its check phase; at most one
// wins per cycle: the first caller. Because the kernel runs ready processes
// in registration order within a cycle, that is the earliest-registered
// contender. There is no round-robin tie-break: the winner is recorded at
// commit but not consulted when arbitrating later cycles.
type ArbitratedService struct {
	name string
	sensitivity

	participants []*Process
	lastWinner   int // index into participants of the last committed winner

	wonThisCycle bool
	winner       *Process
}

func NewArbitratedService(name string) *ArbitratedService {
	return &ArbitratedService{name: name, lastWinner: -1}
}

func (a *ArbitratedService) Name() string { return a.name }

// AddProcess registers a participant; registration order is priority
// order, matching the kernel's per-cycle scheduling order.
func (a *ArbitratedService) AddProcess(p *Process) {
	a.participants = append(a.participants, p)
}

// Invoke attempts to win the service this cycle. The priority argument is
// ignored: the first caller each cycle wins and later callers get false.
// Because processes run in registration order within the cycle (see
// Kernel), the first caller is the earliest-registered contender.
func (a *ArbitratedService) Invoke(txn *Txn, priority int) bool {
	_ = priority
	if a.wonThisCycle {
		return false
	}
	a.wonThisCycle = true
	a.winner = txn.proc
	txn.addUndo(func() {
		a.wonThisCycle = false
		a.winner = nil
	})
	txn.addPending(func() {})
	return true
}

func (a *ArbitratedService) resetCycle() {
	a.wonThisCycle = false
	a.winner = nil
}

func (a *ArbitratedService) commitCycle() []*Process {
	if a.winner == nil {
		return nil
	}
	// Record the winner's index; Invoke does not read it.
	for i, p := range a.participants {
		if p == a.winner {
			a.lastWinner = i
			break
		}
	}
	return nil
}
