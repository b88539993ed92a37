// Package config implements the hierarchical, dotted-key configuration
// store: a TOML base document overlaid with "name=value" command-line
// overrides, generalized to an open key space instead of a fixed struct,
// since the grid's component tree is only known once wiring runs.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mgsim-go/mgsim/sim"
)

// Config is a flattened dotted-key/value store. Keys look like
// "grid.core0.dcache.associativity"; values are stored as strings and
// parsed on read, the same deferred-parse approach TOML's own decoder
// uses internally for "any"-typed values.
type Config struct {
	values map[string]string
	// order preserves first-set key order for deterministic dumps: keys
	// loaded from TOML come in lexical order within each table, depth
	// first, and later overrides of new keys are appended.
	order []string
}

// New returns an empty configuration.
func New() *Config {
	return &Config{values: make(map[string]string)}
}

// Load reads a TOML document from path and flattens it into dotted keys.
func Load(path string) (*Config, error) {
	var doc map[string]interface{}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, sim.NewConfigError("config.Load", path, err.Error())
	}
	c := New()
	c.flatten("", doc)
	return c, nil
}

func (c *Config) flatten(prefix string, node map[string]interface{}) {
	names := make([]string, 0, len(node))
	for k := range node {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v := node[k]
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			c.flatten(key, vv)
		case []map[string]interface{}:
			for i, elem := range vv {
				c.flatten(fmt.Sprintf("%s.%d", key, i), elem)
			}
		default:
			c.set(key, fmt.Sprintf("%v", vv))
		}
	}
}

func (c *Config) set(key, value string) {
	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// ApplyOverride parses a single "name=value" command-line override (the
// `-o name=value` flag, repeatable) and layers it on top of whatever the
// base TOML document set, last one wins.
func (c *Config) ApplyOverride(pair string) error {
	i := strings.IndexByte(pair, '=')
	if i < 0 {
		return sim.NewConfigError("config.ApplyOverride", pair, "override must be name=value")
	}
	c.set(pair[:i], pair[i+1:])
	return nil
}

// Keys returns every configured dotted key in first-seen order.
func (c *Config) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// GetString returns the raw string value for key, or def if unset.
func (c *Config) GetString(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// GetInt parses key as a 64-bit integer, or returns def (and an error) on a
// malformed value.
func (c *Config) GetInt(key string, def int64) (int64, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return def, sim.NewConfigError("config.GetInt", key, "not an integer: "+v)
	}
	return n, nil
}

// GetBool parses key as a boolean, accepting the same spellings as
// strconv.ParseBool plus TOML's bare true/false.
func (c *Config) GetBool(key string, def bool) (bool, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, sim.NewConfigError("config.GetBool", key, "not a boolean: "+v)
	}
	return b, nil
}

// GetFloat parses key as a float64.
func (c *Config) GetFloat(key string, def float64) (float64, error) {
	v, ok := c.values[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, sim.NewConfigError("config.GetFloat", key, "not a float: "+v)
	}
	return f, nil
}

// RequireInt is like GetInt but returns a KindConfiguration error if key is
// entirely unset, for parameters with no sane default (e.g. grid width).
func (c *Config) RequireInt(key string) (int64, error) {
	if _, ok := c.values[key]; !ok {
		return 0, sim.NewConfigError("config.RequireInt", key, "required configuration key is unset")
	}
	return c.GetInt(key, 0)
}
