// Package cli implements the interactive command prompt: a line-oriented
// REPL for introspecting a running simulation (Cmd_Info/Cmd_Read-style
// commands) and single-stepping it. Grounded on
// original_source/cli/main.cpp's interactive-mode fallback (dropping to a
// prompt on an unhandled exception or stall, unless -t was given) and on
// sim/registry.go's topology/value-dump helpers this prompt wraps.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mgsim-go/mgsim/sim"
)

// Prompt is a line-oriented command interpreter over a running kernel and
// its variable registry.
type Prompt struct {
	in  *bufio.Scanner
	out io.Writer
	k   *sim.Kernel
	reg *sim.Registry

	commands map[string]func(args []string) error
	quit     bool
}

// New constructs a prompt reading commands from in and writing output to
// out, operating on kernel k and registry reg.
func New(in io.Reader, out io.Writer, k *sim.Kernel, reg *sim.Registry) *Prompt {
	p := &Prompt{
		in:  bufio.NewScanner(in),
		out: out,
		k:   k,
		reg: reg,
	}
	p.commands = map[string]func(args []string) error{
		"help":  p.cmdHelp,
		"step":  p.cmdStep,
		"run":   p.cmdStep,
		"info":  p.cmdInfo,
		"read":  p.cmdRead,
		"vars":  p.cmdVars,
		"topo":  p.cmdTopo,
		"stats": p.cmdStats,
		"quit":  p.cmdQuit,
		"exit":  p.cmdQuit,
	}
	return p
}

// Run reads and dispatches commands until EOF, "quit", or "exit".
func (p *Prompt) Run() error {
	for !p.quit {
		fmt.Fprint(p.out, "(mgsim) ")
		if !p.in.Scan() {
			return p.in.Err()
		}
		line := strings.TrimSpace(p.in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		handler, ok := p.commands[cmd]
		if !ok {
			fmt.Fprintf(p.out, "unknown command %q, try \"help\"\n", cmd)
			continue
		}
		if err := handler(args); err != nil {
			fmt.Fprintf(p.out, "error: %v\n", err)
		}
	}
	return nil
}

func (p *Prompt) cmdHelp(args []string) error {
	names := make([]string, 0, len(p.commands))
	for n := range p.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(p.out, "commands:", strings.Join(names, ", "))
	return nil
}

func (p *Prompt) cmdStep(args []string) error {
	n := sim.CycleNo(1)
	if len(args) > 0 {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		n = sim.CycleNo(v)
	}
	ran, err := p.k.Advance(n)
	fmt.Fprintf(p.out, "ran %d cycle(s), now at cycle %d\n", ran, p.k.Cycle())
	return err
}

func (p *Prompt) cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: info <object-path>")
	}
	o := p.k.Root()
	parts := strings.Split(args[0], ".")
	if len(parts) > 0 && parts[0] == o.Name() {
		parts = parts[1:]
	}
	for _, part := range parts {
		child := o.Child(part)
		if child == nil {
			return fmt.Errorf("no such object: %s", args[0])
		}
		o = child
	}
	fmt.Fprintf(p.out, "%s: %d children\n", o.Path(), len(o.Children()))
	for _, c := range o.Children() {
		fmt.Fprintf(p.out, "  %s\n", c.Name())
	}
	return nil
}

func (p *Prompt) cmdRead(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: read <variable-name>")
	}
	v, ok := p.reg.Lookup(args[0])
	if !ok {
		return fmt.Errorf("no such variable: %s", args[0])
	}
	fmt.Fprintf(p.out, "%s = %d\n", v.Name, v.Get())
	return nil
}

func (p *Prompt) cmdVars(args []string) error {
	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}
	for _, v := range p.reg.Match(pattern) {
		fmt.Fprintf(p.out, "%s (%s, %d bytes)\n", v.Name, v.Kind, v.Size)
	}
	return nil
}

func (p *Prompt) cmdTopo(args []string) error {
	p.reg.DumpTopology(p.out, p.k.Root(), true)
	return nil
}

func (p *Prompt) cmdStats(args []string) error {
	s := p.k.Stats
	fmt.Fprintf(p.out, "cycles=%d processes_run=%d commits=%d deadlocks=%d\n",
		s.Cycles, s.ProcessesRun, s.Commits, s.DeadlocksFound)
	return nil
}

func (p *Prompt) cmdQuit(args []string) error {
	p.quit = true
	return nil
}
