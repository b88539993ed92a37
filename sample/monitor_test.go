package sample

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgsim-go/mgsim/sim"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestMonitorSamplesOnlyWhileRunningAndOnCycleChange(t *testing.T) {
	reg := sim.NewRegistry()
	reg.Register("kernel.cycle", &sim.SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return 0 }})

	var meta bytes.Buffer
	sampler, err := SelectVariables(&meta, reg, []string{"kernel.cycle"})
	require.NoError(t, err)

	var cycle atomic.Uint64
	out := &syncBuffer{}
	m := NewMonitor(sampler, out, 2*time.Millisecond, func() uint64 { return cycle.Load() }, true)
	defer m.Close()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, out.Len(), "monitor must not sample before Start")

	m.Start()
	cycle.Store(1)
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	firstLen := out.Len()
	assert.Greater(t, firstLen, 0, "monitor should have written at least one record once started")

	cycle.Store(2)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, firstLen, out.Len(), "monitor must not sample while stopped")

	recordSize := sampler.BufferSize() + 2*timevalSize
	assert.Equal(t, 0, firstLen%recordSize, "written bytes must be a whole number of records")
}
