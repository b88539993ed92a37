package sim

import (
	"fmt"
	"io"
	"path"
	"sort"
)

// SampleVariable is a named, typed counter exposed for textual
// introspection, final `-p PATTERN` dumps, and the binary sampling trace.
type SampleVariable struct {
	Name string
	Kind string // "integer" or "float", mirrors the sampling metadata file
	Size int    // bytes, 4 or 8
	Get  func() uint64
}

// Registry is the tree-wide registry of sample variables (component G).
// Variables are registered once at wiring time under a dotted path, the
// same namespace the Object tree uses.
type Registry struct {
	vars  map[string]*SampleVariable
	order []string
}

// NewRegistry constructs an empty variable registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]*SampleVariable)}
}

// Register adds a sample variable under name. Registering the same name
// twice is a wiring error.
func (r *Registry) Register(name string, v *SampleVariable) error {
	if _, exists := r.vars[name]; exists {
		return NewWiringError("Registry.Register", name, "duplicate sample variable")
	}
	v.Name = name
	r.vars[name] = v
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the variable registered under name, if any.
func (r *Registry) Lookup(name string) (*SampleVariable, bool) {
	v, ok := r.vars[name]
	return v, ok
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Match returns every variable whose name matches a shell-style glob
// pattern (as used by `-p PATTERN` and the monitor's variable selection
// list), in sorted order for determinism.
func (r *Registry) Match(pattern string) []*SampleVariable {
	var out []*SampleVariable
	for _, name := range r.order {
		if ok, _ := path.Match(pattern, name); ok {
			out = append(out, r.vars[name])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DumpValues writes "name = value" for every variable matching any of the
// given patterns, the behavior `-p PATTERN` uses at end of run.
func (r *Registry) DumpValues(w io.Writer, patterns []string) {
	seen := make(map[string]bool)
	for _, pat := range patterns {
		for _, v := range r.Match(pat) {
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			fmt.Fprintf(w, "%s = %d\n", v.Name, v.Get())
		}
	}
}

// DumpTopology writes a textual tree of the object hierarchy, the `-T FILE`
// behavior. When includeProps is true it also prints each object's
// registered sample variables as properties.
func (r *Registry) DumpTopology(w io.Writer, root *Object, includeProps bool) {
	var walk func(o *Object, depth int)
	walk = func(o *Object, depth int) {
		for i := 0; i < depth; i++ {
			fmt.Fprint(w, "  ")
		}
		fmt.Fprintln(w, o.Name())
		if includeProps {
			prefix := o.Path() + "."
			for _, name := range r.order {
				if len(name) > len(prefix) && name[:len(prefix)] == prefix {
					for i := 0; i < depth+1; i++ {
						fmt.Fprint(w, "  ")
					}
					fmt.Fprintf(w, "- %s\n", name[len(prefix):])
				}
			}
		}
		for _, c := range o.Children() {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
}
