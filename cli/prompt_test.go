package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgsim-go/mgsim/sim"
)

func TestPromptStepOnIdleKernelStaysAtCycleZero(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	reg := sim.NewRegistry()

	var out bytes.Buffer
	p := New(strings.NewReader("step 3\nquit\n"), &out, k, reg)
	require.NoError(t, p.Run())
	assert.Contains(t, out.String(), "now at cycle 0")
}

func TestPromptInfoWalksObjectTree(t *testing.T) {
	root := sim.NewObject(nil, "root")
	sim.NewObject(root, "core0")
	k := sim.NewKernel(root)
	reg := sim.NewRegistry()

	var out bytes.Buffer
	p := New(strings.NewReader("info root\nquit\n"), &out, k, reg)
	require.NoError(t, p.Run())
	assert.Contains(t, out.String(), "core0")
}

func TestPromptReadReportsRegisteredVariable(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	reg := sim.NewRegistry()
	require.NoError(t, reg.Register("kernel.cycle", &sim.SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return 99 }}))

	var out bytes.Buffer
	p := New(strings.NewReader("read kernel.cycle\nquit\n"), &out, k, reg)
	require.NoError(t, p.Run())
	assert.Contains(t, out.String(), "kernel.cycle = 99")
}

func TestPromptUnknownCommandReportsError(t *testing.T) {
	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	reg := sim.NewRegistry()

	var out bytes.Buffer
	p := New(strings.NewReader("bogus\nquit\n"), &out, k, reg)
	require.NoError(t, p.Run())
	assert.Contains(t, out.String(), "unknown command")
}
