package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBufferVisibleNextCycleOnly(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)

	buf := NewBoundedBuffer[int]("buf", 2)
	k.RegisterStorage(buf)

	var producerTrace = []Storage{buf}
	producer := NewProcess(root, "producer", func(txn *Txn) Result {
		if !buf.TryPush(txn, 42) {
			return Failed
		}
		return Success
	}, nil, producerTrace)
	k.RegisterProcess(producer)
	k.Wake(producer)

	// Before any cycle runs, the buffer is empty.
	require.True(t, buf.Empty())

	ran, err := k.Advance(1)
	require.NoError(t, err)
	assert.Equal(t, CycleNo(1), ran)

	// Commit happened at end of cycle 0; data is visible now (start of
	// cycle 1), never during cycle 0 itself.
	assert.Equal(t, 1, buf.Len())
	v, ok := buf.Front()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestBoundedBufferPushPopAcrossCycles(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)

	buf := NewBoundedBuffer[int]("buf", 1)
	k.RegisterStorage(buf)

	producer := NewProcess(root, "producer", func(txn *Txn) Result {
		if !buf.TryPush(txn, 7) {
			return Failed
		}
		return Success
	}, nil, []Storage{buf})
	var consumed []int
	consumer := NewProcess(root, "consumer", func(txn *Txn) Result {
		v, ok := buf.TryPop(txn)
		if !ok {
			return Failed
		}
		txn.addPending(func() { consumed = append(consumed, v) })
		return Success
	}, nil, []Storage{buf})

	k.RegisterProcess(producer)
	k.RegisterProcess(consumer)
	buf.Sensitize(consumer)
	k.Wake(producer)

	// producer fills the buffer in cycle 0 -> consumer wakes for cycle 1.
	_, err := k.Advance(1)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Len())

	// cycle 1: consumer pops (and records 7); buffer empties.
	_, err = k.Advance(1)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, consumed)
	assert.True(t, buf.Empty())
}

func TestDeadlockDetection(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)

	// Two zero-capacity buffers: every push fails forever, with no
	// draining process, so the kernel must flag this as a deadlock.
	bufAB := NewBoundedBuffer[int]("ab", 0)
	bufBA := NewBoundedBuffer[int]("ba", 0)
	k.RegisterStorage(bufAB)
	k.RegisterStorage(bufBA)

	a := NewProcess(root, "A", func(txn *Txn) Result {
		if !bufAB.TryPush(txn, 1) {
			return Failed
		}
		return Success
	}, nil, []Storage{bufAB})
	b := NewProcess(root, "B", func(txn *Txn) Result {
		if !bufBA.TryPush(txn, 1) {
			return Failed
		}
		return Success
	}, nil, []Storage{bufBA})

	k.RegisterProcess(a)
	k.RegisterProcess(b)
	k.Wake(a)
	k.Wake(b)

	_, err := k.Advance(5)
	require.Error(t, err)
	var simErr *Error
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, KindStall, simErr.Kind)
	require.NotNil(t, k.Stall)
	assert.Contains(t, k.Stall.Implicated, a.Path())
	assert.Contains(t, k.Stall.Implicated, b.Path())
}

func TestQuiescence(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)
	ran, err := k.Advance(10)
	require.NoError(t, err)
	assert.Equal(t, CycleNo(0), ran)
}

func TestWiringViolationIsFatal(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)
	buf := NewBoundedBuffer[int]("buf", 4)
	k.RegisterStorage(buf)

	// declares an empty write trace, but the body writes buf anyway.
	rogue := NewProcess(root, "rogue", func(txn *Txn) Result {
		buf.TryPush(txn, 1)
		return Success
	}, nil, nil)
	k.RegisterProcess(rogue)
	k.Wake(rogue)

	_, err := k.Advance(1)
	require.Error(t, err)
	var simErr *Error
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, KindWiring, simErr.Kind)
}

func TestArbitratedServiceStrictPriority(t *testing.T) {
	root := NewObject(nil, "root")
	k := NewKernel(root)
	svc := NewArbitratedService("svc")
	k.RegisterStorage(svc)

	var winners []string
	mk := func(name string, prio int) *Process {
		p := NewProcess(root, name, func(txn *Txn) Result {
			if !svc.Invoke(txn, prio) {
				return Delayed
			}
			txn.addPending(func() { winners = append(winners, name) })
			return Success
		}, nil, []Storage{svc})
		return p
	}
	high := mk("high", 0)
	low := mk("low", 1)
	k.RegisterProcess(high)
	k.RegisterProcess(low)
	svc.AddProcess(high)
	svc.AddProcess(low)
	k.Wake(high)
	k.Wake(low)

	_, err := k.Advance(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, winners)

	// low lost arbitration (Delayed) and must retry next cycle.
	_, err = k.Advance(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, winners)
}
