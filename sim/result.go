// Package sim implements the discrete-event kernel: the clocked scheduler,
// typed storage objects, and the two-phase process model that the rest of
// the simulator (FPU, caches, coherence directory) is built on.
package sim

// Result is the outcome of a process' check phase.
type Result int

const (
	// Success means the process' intended mutations are committed at the
	// end of the cycle.
	Success Result = iota
	// Failed means the process could not make progress this cycle and
	// remains in the ready set for retry.
	Failed
	// Delayed means the process voluntarily gave up its slot (e.g. lost
	// arbitration) and will be retried next cycle.
	Delayed
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	case Delayed:
		return "Delayed"
	default:
		return "Unknown"
	}
}

// CycleNo is the monotonically non-decreasing simulated cycle counter.
type CycleNo uint64
