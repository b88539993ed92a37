package sample

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgsim-go/mgsim/sim"
)

func newTestRegistry() *sim.Registry {
	reg := sim.NewRegistry()
	cycles := uint64(42)
	ops := uint64(7)
	reg.Register("kernel.cycle", &sim.SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return cycles }})
	reg.Register("core0.ops", &sim.SampleVariable{Kind: "integer", Size: 4, Get: func() uint64 { return ops }})
	return reg
}

func TestSelectVariablesWritesMetadataAndOffsets(t *testing.T) {
	reg := newTestRegistry()
	var meta bytes.Buffer
	s, err := SelectVariables(&meta, reg, []string{"kernel.cycle", "core0.*"})
	require.NoError(t, err)

	assert.Equal(t, 12, s.BufferSize()) // 8 + 4

	lines := strings.Split(strings.TrimSpace(meta.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "kernel.cycle 0 8 integer", lines[0])
	assert.Equal(t, "core0.ops 8 4 integer", lines[1])
	assert.Contains(t, lines[2], "# tv_sizes: 8 8 16")
}

func TestSelectVariablesDedupsAcrossPatterns(t *testing.T) {
	reg := newTestRegistry()
	var meta bytes.Buffer
	s, err := SelectVariables(&meta, reg, []string{"kernel.cycle", "kernel.*"})
	require.NoError(t, err)
	assert.Equal(t, 8, s.BufferSize())
}

func TestSampleToBufferPacksLittleEndian(t *testing.T) {
	reg := newTestRegistry()
	var meta bytes.Buffer
	s, err := SelectVariables(&meta, reg, []string{"kernel.cycle", "core0.ops"})
	require.NoError(t, err)

	buf := make([]byte, s.BufferSize())
	s.SampleToBuffer(buf)

	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(buf[0:8]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[8:12]))
}
