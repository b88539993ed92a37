package fpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgsim-go/mgsim/sim"
)

// recordingClient is a single-source FPU client that records every
// address it's asked to write, and can be told to refuse the next N
// writes to exercise head-stall behavior.
type recordingClient struct {
	name     string
	refusals int
	writes   []sim.RegAddr
}

func (c *recordingClient) Name() string { return c.name }
func (c *recordingClient) CheckOutputAvailability(addr sim.RegAddr) bool {
	return true
}
func (c *recordingClient) WriteResult(addr sim.RegAddr, value sim.RegValue) bool {
	if c.refusals > 0 {
		c.refusals--
		return false
	}
	c.writes = append(c.writes, addr)
	return true
}

func TestPipelinedLatencyOrderAndTiming(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Add: {Latency: 3, Pipelined: true}})
	client := &recordingClient{name: "core0"}
	src := f.RegisterSource(client, nil)

	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(src, Add, 8, 1, 2, sim.RegAddr{Index: 1}))
	_, err := k.Advance(1)
	require.NoError(t, err)
	require.True(t, f.QueueOperation(src, Add, 8, 1, 2, sim.RegAddr{Index: 2}))
	_, err = k.Advance(1)
	require.NoError(t, err)
	require.True(t, f.QueueOperation(src, Add, 8, 1, 2, sim.RegAddr{Index: 3}))

	// Queued at cycles 0,1,2; writebacks expected at cycles 3,4,5 in order.
	_, err = k.Advance(1)
	require.NoError(t, err)

	require.Len(t, client.writes, 1)
	assert.Equal(t, uint32(1), client.writes[0].Index)

	_, err = k.Advance(1)
	require.NoError(t, err)
	require.Len(t, client.writes, 2)
	assert.Equal(t, uint32(2), client.writes[1].Index)

	_, err = k.Advance(1)
	require.NoError(t, err)
	require.Len(t, client.writes, 3)
	assert.Equal(t, uint32(3), client.writes[2].Index)
}

func TestClientRefusalDelaysSubsequentWrites(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Add: {Latency: 2, Pipelined: true}})
	client := &recordingClient{name: "core0", refusals: 1}
	src := f.RegisterSource(client, nil)
	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 1}))
	require.True(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 2}))

	_, err := k.Advance(1)
	require.NoError(t, err)
	assert.Empty(t, client.writes, "not yet at latency")

	_, err = k.Advance(1)
	require.NoError(t, err)
	assert.Empty(t, client.writes, "refused write must leave the head slot in place")

	_, err = k.Advance(1)
	require.NoError(t, err)
	require.Len(t, client.writes, 1)
	assert.Equal(t, uint32(1), client.writes[0].Index)
}

func TestNonPipelinedRequiresEmptyQueue(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Add: {Latency: 2, Pipelined: false}})
	client := &recordingClient{name: "core0"}
	src := f.RegisterSource(client, nil)
	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 1}))
	assert.False(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 2}),
		"non-pipelined unit must reject admission while busy")
}

func TestPipelinedAdmissionBoundedByLatency(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Add: {Latency: 2, Pipelined: true}})
	client := &recordingClient{name: "core0"}
	src := f.RegisterSource(client, nil)
	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 1}))
	require.True(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 2}))
	assert.False(t, f.QueueOperation(src, Add, 8, 1, 1, sim.RegAddr{Index: 3}),
		"admission must fail once in-flight count reaches latency")
}

func TestDivisionByZeroAndSqrtOfNegative(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Div: {Latency: 1, Pipelined: true}, Sqrt: {Latency: 1, Pipelined: true}})
	client := &recordingClient{name: "core0"}
	src := f.RegisterSource(client, nil)
	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(src, Div, 8, 1, 0, sim.RegAddr{Index: 1}))
	require.True(t, f.QueueOperation(src, Sqrt, 8, -4, 0, sim.RegAddr{Index: 2}))
	assert.Equal(t, math.Inf(1), compute(Div, 8, 1, 0))
	assert.True(t, math.IsNaN(compute(Sqrt, 8, -4, 0)))
}

func TestRoundRobinAcrossSources(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	f := New(root, map[Op]UnitConfig{Add: {Latency: 1, Pipelined: true}, Mul: {Latency: 1, Pipelined: true}})

	c0 := &recordingClient{name: "core0"}
	c1 := &recordingClient{name: "core1"}
	s0 := f.RegisterSource(c0, nil)
	s1 := f.RegisterSource(c1, nil)
	k.RegisterProcess(f.Process("fpu.pipeline"))

	require.True(t, f.QueueOperation(s0, Add, 8, 1, 1, sim.RegAddr{Index: 1}))
	require.True(t, f.QueueOperation(s1, Mul, 8, 2, 2, sim.RegAddr{Index: 2}))

	// Both heads ready same cycle; exactly one writeback happens.
	_, err := k.Advance(1)
	require.NoError(t, err)
	total := len(c0.writes) + len(c1.writes)
	assert.Equal(t, 1, total)

	_, err = k.Advance(1)
	require.NoError(t, err)
	total = len(c0.writes) + len(c1.writes)
	assert.Equal(t, 2, total)
}
