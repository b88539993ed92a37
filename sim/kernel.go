package sim

import "sort"

// Stats tracks kernel-visible simulation statistics. The sampler reads them
// through registered variables and the prompt's stats command prints them;
// they are not copied into the performance-counter MMIO region.
type Stats struct {
	Cycles         uint64
	ProcessesRun   uint64
	Commits        uint64
	DeadlocksFound uint64
}

// StallReport names every process that was ready but made no progress in
// the cycle a stall was declared, together with the storages implicated by
// its declared trace.
type StallReport struct {
	Cycle      CycleNo
	Implicated map[string][]string // process path -> storage names in its trace
}

// Kernel is the clocked, deterministic scheduler: it advances the global
// cycle counter, drains storage notifications into a ready set, runs ready
// processes in priority order, and commits successful processes' side
// effects atomically at end of cycle.
type Kernel struct {
	root      *Object
	cycle     CycleNo
	processes []*Process
	storages  []Storage

	ready map[*Process]bool

	Stats Stats

	// Stall is set once a cycle has a non-empty ready set and produces
	// zero commits. advance() stops and returns it as an error.
	Stall *StallReport

	shutdown bool
}

// NewKernel constructs a kernel owning root as its object tree root.
func NewKernel(root *Object) *Kernel {
	return &Kernel{root: root, ready: make(map[*Process]bool)}
}

// Root returns the kernel's object tree root.
func (k *Kernel) Root() *Object { return k.root }

// Cycle returns the current simulated cycle number.
func (k *Kernel) Cycle() CycleNo { return k.cycle }

// RegisterProcess adds p to the kernel's schedule. Registration order
// establishes p's static priority: earlier-registered processes run first
// within a cycle, which is also what makes ArbitratedService.Invoke's
// first-caller-wins rule equivalent to strict priority.
func (k *Kernel) RegisterProcess(p *Process) {
	p.priority = len(k.processes)
	k.processes = append(k.processes, p)
}

// RegisterStorage adds s to the set the kernel resets and commits every
// cycle.
func (k *Kernel) RegisterStorage(s Storage) {
	k.storages = append(k.storages, s)
}

// Wake puts p directly into the ready set, for processes with no storage
// sensitivity of their own (e.g. a process driven purely by external
// stimulus at wiring time, or a test harness kicking off a run).
func (k *Kernel) Wake(p *Process) {
	k.ready[p] = true
}

// RequestShutdown cooperatively asks advance() to stop at the next cycle
// boundary: the kernel polls a shutdown flag between cycles.
func (k *Kernel) RequestShutdown() { k.shutdown = true }

// Advance runs up to n cycles, or fewer if the kernel goes quiescent (no
// ready process and no pending wake) or a stall is detected. It returns the
// number of cycles actually run and, on a stall, a *Error of KindStall.
func (k *Kernel) Advance(n CycleNo) (CycleNo, error) {
	var ran CycleNo
	for ran < n {
		if k.shutdown {
			return ran, nil
		}
		if len(k.ready) == 0 && !k.hasAlwaysActive() {
			return ran, nil
		}
		if err := k.runCycle(); err != nil {
			return ran + 1, err
		}
		ran++
		if k.Stall != nil {
			return ran, NewStallError("Kernel.Advance", k.Stall.Cycle, "zero commits in non-empty ready set")
		}
	}
	return ran, nil
}

func (k *Kernel) hasAlwaysActive() bool {
	for _, p := range k.processes {
		if p.alwaysActive {
			return true
		}
	}
	return false
}

func (k *Kernel) runCycle() error {
	for _, s := range k.storages {
		s.resetCycle()
	}

	readyList := make([]*Process, 0, len(k.ready))
	for p := range k.ready {
		readyList = append(readyList, p)
	}
	for _, p := range k.processes {
		if p.alwaysActive && !k.ready[p] {
			readyList = append(readyList, p)
		}
	}
	sort.Slice(readyList, func(i, j int) bool { return readyList[i].priority < readyList[j].priority })

	nextReady := make(map[*Process]bool)
	successCount := 0

	for _, p := range readyList {
		txn := newTxn(p, k.cycle)
		result := p.body(txn)
		k.Stats.ProcessesRun++

		switch result {
		case Success:
			if txn.violation != nil {
				txn.rollback()
				return txn.violation
			}
			txn.commit()
			successCount++
			k.Stats.Commits++
		case Failed, Delayed:
			txn.rollback()
			if txn.violation != nil {
				return txn.violation
			}
			nextReady[p] = true
		}
	}

	for _, s := range k.storages {
		for _, p := range s.commitCycle() {
			nextReady[p] = true
		}
	}

	if len(readyList) > 0 && successCount == 0 {
		implicated := make(map[string][]string, len(readyList))
		for _, p := range readyList {
			names := make([]string, 0, len(p.writeTrace)+len(p.readTrace))
			for _, s := range p.writeTrace {
				names = append(names, s.Name())
			}
			for _, s := range p.readTrace {
				names = append(names, s.Name())
			}
			implicated[p.Path()] = names
		}
		k.Stats.DeadlocksFound++
		k.Stall = &StallReport{Cycle: k.cycle, Implicated: implicated}
	}

	k.ready = nextReady
	k.cycle++
	k.Stats.Cycles++
	return nil
}
