package perfcounters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservedIndicesAlwaysReadAllOnes(t *testing.T) {
	b := New()
	b.Set(reserved13, 42)
	b.Add(reserved14, 7)

	for _, idx := range []int{reserved13, reserved14, reserved15} {
		v, ok := b.Read(idx, 8)
		assert.True(t, ok)
		assert.Equal(t, ^uint64(0), v)
	}
}

func TestUnknownIndexReadsZero(t *testing.T) {
	b := New()
	v, ok := b.Read(numCounters+5, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v)

	v, ok = b.Read(-1, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v)
}

func TestReadOfWrongSizeFails(t *testing.T) {
	b := New()
	b.Set(Cycles, 100)
	_, ok := b.Read(Cycles, 4)
	assert.False(t, ok)
	_, ok = b.Read(Cycles, 1)
	assert.False(t, ok)
}

func TestCountersAccumulateAndRead(t *testing.T) {
	b := New()
	b.Add(Ops, 3)
	b.Add(Ops, 4)
	b.Set(Flops, 10)

	v, ok := b.Read(Ops, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)

	v, ok = b.Read(Flops, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), v)
}

func TestCatalogueHasEighteenCounters(t *testing.T) {
	assert.Equal(t, 18, NumCounters())
}
