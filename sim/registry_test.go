package sim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	n := uint64(0)
	require.NoError(t, r.Register("grid.core0.cycle", &SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return n }}))

	v, ok := r.Lookup("grid.core0.cycle")
	require.True(t, ok)
	assert.Equal(t, "grid.core0.cycle", v.Name)

	n = 42
	v2, _ := r.Lookup("grid.core0.cycle")
	assert.Equal(t, uint64(42), v2.Get())
}

func TestRegistryDuplicateNameIsWiringError(t *testing.T) {
	r := NewRegistry()
	mk := func() *SampleVariable { return &SampleVariable{Get: func() uint64 { return 0 }} }
	require.NoError(t, r.Register("a.b", mk()))
	err := r.Register("a.b", mk())
	require.Error(t, err)
	var simErr *Error
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, KindWiring, simErr.Kind)
}

func TestRegistryMatchGlob(t *testing.T) {
	r := NewRegistry()
	mk := func() *SampleVariable { return &SampleVariable{Get: func() uint64 { return 0 }} }
	require.NoError(t, r.Register("grid.core0.cycle", mk()))
	require.NoError(t, r.Register("grid.core1.cycle", mk()))
	require.NoError(t, r.Register("grid.core0.stalls", mk()))

	matches := r.Match("grid.*.cycle")
	require.Len(t, matches, 2)
	assert.Equal(t, "grid.core0.cycle", matches[0].Name)
	assert.Equal(t, "grid.core1.cycle", matches[1].Name)
}

func TestRegistryDumpValuesDedupsAcrossPatterns(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", &SampleVariable{Get: func() uint64 { return 1 }}))
	require.NoError(t, r.Register("b", &SampleVariable{Get: func() uint64 { return 2 }}))

	var buf bytes.Buffer
	r.DumpValues(&buf, []string{"*", "a"})
	assert.Equal(t, "a = 1\nb = 2\n", buf.String())
}

func TestRegistryDumpTopology(t *testing.T) {
	root := NewObject(nil, "grid")
	core0 := NewObject(root, "core0")
	NewObject(core0, "dcache")

	r := NewRegistry()
	require.NoError(t, r.Register("grid.core0.cycle", &SampleVariable{Get: func() uint64 { return 0 }}))

	var buf bytes.Buffer
	r.DumpTopology(&buf, root, true)
	out := buf.String()
	assert.Contains(t, out, "grid\n")
	assert.Contains(t, out, "core0\n")
	assert.Contains(t, out, "dcache\n")
	assert.Contains(t, out, "- cycle\n")
}
