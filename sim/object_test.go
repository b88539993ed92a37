package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPath(t *testing.T) {
	root := NewObject(nil, "grid")
	core := NewObject(root, "core0")
	dcache := NewObject(core, "dcache")

	assert.Equal(t, "grid", root.Path())
	assert.Equal(t, "grid.core0", core.Path())
	assert.Equal(t, "grid.core0.dcache", dcache.Path())
}

func TestObjectChildrenSortedAndLookup(t *testing.T) {
	root := NewObject(nil, "grid")
	NewObject(root, "core1")
	NewObject(root, "core0")

	names := make([]string, 0, 2)
	for _, c := range root.Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"core0", "core1"}, names)
	assert.NotNil(t, root.Child("core0"))
	assert.Nil(t, root.Child("nonexistent"))
}
