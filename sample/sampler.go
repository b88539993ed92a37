// Package sample implements the asynchronous binary sampling trace: a
// metadata file describing selected sample variables, and a binary trace
// of {tv_begin, payload, tv_end} records taken at a configurable interval.
// Grounded on original_source/sim/monitor.cpp's Monitor class.
package sample

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mgsim-go/mgsim/sim"
)

// timevalSecSize, timevalUsecSize and timevalSize are the portability
// constants monitor.cpp writes into its metadata file
// ("# tv_sizes: <sec> <usec> <timeval>") so an offline trace reader knows
// how to parse the per-record timestamps without being recompiled against
// this platform's struct timeval layout. This package always emits 8-byte
// seconds and 8-byte microseconds fields (16 bytes total per timeval),
// regardless of the host C ABI, since the trace format is this package's
// own and not tied to the host's struct timeval.
const (
	timevalSecSize  = 8
	timevalUsecSize = 8
	timevalSize     = timevalSecSize + timevalUsecSize
)

// Sampler selects a fixed ordered set of registry variables and packs
// their current values into a flat little-endian buffer on demand.
// Grounded on monitor.cpp's BinarySampler::SelectVariables/SampleToBuffer.
type Sampler struct {
	selected []*sim.SampleVariable
}

// SelectVariables resolves patterns against reg in order, writes the
// metadata file describing each selected variable (name, offset, size,
// kind) plus the portability header, and returns the ready-to-sample
// Sampler. Duplicate matches are kept once, in first-seen order, the same
// rule Registry.DumpValues uses for -p.
func SelectVariables(metadata io.Writer, reg *sim.Registry, patterns []string) (*Sampler, error) {
	s := &Sampler{}
	seen := make(map[string]bool)
	offset := 0
	for _, pat := range patterns {
		for _, v := range reg.Match(pat) {
			if seen[v.Name] {
				continue
			}
			seen[v.Name] = true
			s.selected = append(s.selected, v)
			fmt.Fprintf(metadata, "%s %d %d %s\n", v.Name, offset, v.Size, v.Kind)
			offset += v.Size
		}
	}
	fmt.Fprintf(metadata, "# tv_sizes: %d %d %d\n", timevalSecSize, timevalUsecSize, timevalSize)
	return s, nil
}

// BufferSize returns the total byte size of one sample (sum of every
// selected variable's size).
func (s *Sampler) BufferSize() int {
	n := 0
	for _, v := range s.selected {
		n += v.Size
	}
	return n
}

// SampleToBuffer writes every selected variable's current value into buf
// in selection order, little-endian, truncated or zero-extended to each
// variable's declared size.
func (s *Sampler) SampleToBuffer(buf []byte) {
	off := 0
	for _, v := range s.selected {
		val := v.Get()
		switch v.Size {
		case 4:
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(val))
		default:
			binary.LittleEndian.PutUint64(buf[off:off+8], val)
		}
		off += v.Size
	}
}
