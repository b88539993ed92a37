package sim

import (
	"sort"
	"strings"
)

// Object is a node in the static wiring tree. Objects are constructed once
// during wiring and never re-parented; the Kernel owns the root by
// back-reference, not by a shared-ownership handle.
type Object struct {
	name     string
	parent   *Object
	children map[string]*Object
}

// NewObject creates a child object under parent. Pass a nil parent only for
// the root.
func NewObject(parent *Object, name string) *Object {
	o := &Object{name: name, parent: parent, children: make(map[string]*Object)}
	if parent != nil {
		parent.children[name] = o
	}
	return o
}

// Name returns this object's leaf name.
func (o *Object) Name() string { return o.name }

// Parent returns the parent object, or nil for the root.
func (o *Object) Parent() *Object { return o.parent }

// Path returns the dotted path from the root to this object.
func (o *Object) Path() string {
	if o.parent == nil {
		return o.name
	}
	var parts []string
	for n := o; n != nil; n = n.parent {
		parts = append([]string{n.name}, parts...)
	}
	return strings.Join(parts, ".")
}

// Child looks up a direct child by name.
func (o *Object) Child(name string) *Object {
	return o.children[name]
}

// Children returns the direct children in deterministic (lexical) order.
func (o *Object) Children() []*Object {
	names := make([]string, 0, len(o.children))
	for n := range o.children {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Object, 0, len(names))
	for _, n := range names {
		out = append(out, o.children[n])
	}
	return out
}
