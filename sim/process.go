package sim

// Body is a process' side-effectful routine. It runs during the check
// phase: it may read committed storage state freely, and may call a
// storage's Try* methods through txn to tentatively reserve capacity. Any
// mutation it wants applied must go through txn. The kernel does not check
// that a body returning Success scheduled any commit action; such a cycle
// is counted as a commit all the same.
type Body func(txn *Txn) Result

// Process is a named routine attached to an Object, with statically
// declared read/write traces used for deadlock analysis (see Txn's trace
// enforcement) and for reporting implicated storages on a stall.
type Process struct {
	obj  *Object
	name string
	body Body

	// priority is the static scheduling priority assigned at
	// registration time (lower runs first). It is the registration
	// index, so no two processes share a priority.
	priority int

	readTrace  []Storage
	writeTrace []Storage

	// alwaysActive marks a process that re-enters the ready set every
	// cycle regardless of sensitivity, e.g. a pipeline advance process
	// that must be reconsidered whether or not anything woke it.
	alwaysActive bool
}

// MarkAlwaysActive marks p to be reconsidered every cycle, independent of
// storage sensitivity. Used by drivers like the FPU pipeline advance or
// ring forwarding that must make progress whenever they have internal
// work, not only when an external storage write wakes them.
func (p *Process) MarkAlwaysActive() { p.alwaysActive = true }

// NewProcess declares a process. readTrace and writeTrace are the storages
// this process may read and write respectively; runtime access outside
// writeTrace is a fatal wiring violation (detected by Txn).
func NewProcess(obj *Object, name string, body Body, readTrace, writeTrace []Storage) *Process {
	return &Process{obj: obj, name: name, body: body, readTrace: readTrace, writeTrace: writeTrace}
}

// Path is the process' dotted name, object path plus process name.
func (p *Process) Path() string {
	if p.obj == nil {
		return p.name
	}
	return p.obj.Path() + "." + p.name
}

func (p *Process) canWrite(s Storage) bool {
	for _, t := range p.writeTrace {
		if t == s {
			return true
		}
	}
	return false
}

// Txn is the per-process, per-cycle transactional journal. Storage Try*
// methods record a commit action (applied only if the owning process
// returns Success) and an undo action (run immediately if it returns
// Failed or Delayed, to release any tentative reservation it made).
type Txn struct {
	proc    *Process
	cycle   CycleNo
	pending []func()
	undo    []func()
	// violation is set by a storage when proc attempts to mutate a
	// storage outside its declared write trace. It is fatal.
	violation *Error
}

func newTxn(p *Process, cycle CycleNo) *Txn {
	return &Txn{proc: p, cycle: cycle}
}

// checkWrite records a fatal wiring violation if s is not in the owning
// process' declared write trace. Storage implementations call this before
// recording any mutation.
func (t *Txn) checkWrite(s Storage) bool {
	if t.proc != nil && !t.proc.canWrite(s) {
		if t.violation == nil {
			t.violation = NewWiringError(t.proc.Path(), s.Name(),
				"mutation outside declared write trace")
		}
		return false
	}
	return true
}

func (t *Txn) addPending(fn func()) { t.pending = append(t.pending, fn) }
func (t *Txn) addUndo(fn func())    { t.undo = append(t.undo, fn) }

// Cycle returns the cycle this transaction's check phase is running in, for
// components that need to stamp a cycle number onto an error they raise.
func (t *Txn) Cycle() CycleNo { return t.cycle }

// Fail records a fatal invariant violation discovered mid-check, e.g. a
// protocol state the component requires to exist but doesn't (a directory
// line that must already be present). Like a trace violation, it is fatal:
// the kernel surfaces it as the cycle's terminal error once the process
// returns, regardless of the Result it returns.
func (t *Txn) Fail(err *Error) {
	if t.violation == nil {
		t.violation = err
	}
}

// commit runs every pending action: called by the kernel immediately after
// a process returns Success.
func (t *Txn) commit() {
	for _, fn := range t.pending {
		fn()
	}
}

// rollback runs every undo action: called by the kernel when a process
// returns Failed or Delayed, or when a trace violation voids the cycle.
func (t *Txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}
