// Command mgsim drives the simulator: it parses the CLI surface, wires a
// minimal grid (memory, cache, FPU, one coherence directory, optional
// ROM), runs it, and either exits or drops to the interactive prompt.
// Grounded on original_source/cli/main.cpp's ProgramConfig/argp flag
// catalogue, using Go's stdlib flag package rather than a getopt-style
// library: Go idiom favors flag over porting argp, which has no Go
// ecosystem analogue in the retrieved reference material (recorded in
// DESIGN.md).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mgsim-go/mgsim/arch/area"
	"github.com/mgsim-go/mgsim/arch/dcache"
	"github.com/mgsim-go/mgsim/arch/fpu"
	"github.com/mgsim-go/mgsim/arch/mainmem"
	"github.com/mgsim-go/mgsim/arch/perfcounters"
	"github.com/mgsim-go/mgsim/arch/rom"
	"github.com/mgsim-go/mgsim/arch/zlcdma"
	"github.com/mgsim-go/mgsim/cli"
	"github.com/mgsim-go/mgsim/internal/logging"
	"github.com/mgsim-go/mgsim/sample"
	"github.com/mgsim-go/mgsim/sim"
	"github.com/mgsim-go/mgsim/sim/config"
)

// stringList accumulates a repeatable flag's values in order, the
// idiomatic flag.Value implementation Go uses for "-o", "-p", etc. that
// can be given more than once.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// regFile is the minimal external register file this CLI seeds with -R/
// -F and that the wired FPU and DCache write results into. Register
// allocator tables are explicitly out of scope; this is the toy external
// collaborator standing in for them.
type regFile struct {
	values map[sim.RegAddr]sim.RegValue
}

func newRegFile() *regFile { return &regFile{values: make(map[sim.RegAddr]sim.RegValue)} }

func (r *regFile) Name() string { return "regfile" }
func (r *regFile) CheckOutputAvailability(addr sim.RegAddr) bool {
	return true
}
func (r *regFile) WriteResult(addr sim.RegAddr, value sim.RegValue) bool {
	r.values[addr] = value
	return true
}
func (r *regFile) WriteFPUResult(addr sim.RegAddr, value sim.RegValue) bool {
	r.values[addr] = value
	return true
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Stdin))
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("mgsim", flag.ContinueOnError)
	return fs
}

func run(args []string, stdout, stderr *os.File, stdin *os.File) int {
	var (
		interactive  bool
		configFile   string
		symtableFile string
		dumpConfig   bool
		doNothing    bool
		quiet        bool
		terminate    bool
		listVars     bool
		dumpTopology string
		monitorOn    bool
		areaTech     string
		overrides    stringList
		printVars    stringList
		intRegs      stringList
		floatRegs    stringList
		romLoads     stringList
	)

	fs := newFlagSet()
	fs.BoolVar(&interactive, "i", false, "start in interactive mode")
	fs.StringVar(&configFile, "c", "", "read configuration from FILE")
	fs.Var(&overrides, "o", "override NAME=VAL (repeatable)")
	fs.StringVar(&symtableFile, "s", "", "read symbol table from FILE")
	fs.BoolVar(&dumpConfig, "d", false, "dump configuration before startup")
	fs.BoolVar(&doNothing, "n", false, "configure then exit")
	fs.BoolVar(&quiet, "q", false, "do not print statistics after execution")
	fs.BoolVar(&terminate, "t", false, "terminate on exception instead of dropping to prompt")
	fs.BoolVar(&listVars, "l", false, "list sample variables before startup")
	fs.Var(&printVars, "p", "print final value of variables matching PATTERN (repeatable)")
	fs.StringVar(&dumpTopology, "T", "", "dump grid topology to FILE")
	fs.Var(&intRegs, "R", "seed integer register, \"NUM VALUE\" (repeatable)")
	fs.Var(&floatRegs, "F", "seed float register, \"NUM VALUE\" (repeatable)")
	fs.Var(&romLoads, "L", "mount FILE as ROM and seed pointer register, \"NUM FILE\" (repeatable)")
	fs.BoolVar(&monitorOn, "m", false, "enable asynchronous monitor")
	fs.StringVar(&areaTech, "a", "", "dump area estimate assuming NM technology")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logCfg := logging.DefaultConfig()
	if quiet {
		logCfg.Level = logging.LevelError
	}
	logger := logging.NewLogger(logCfg)

	cfg := config.New()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	if fs.NArg() > 0 {
		if err := cfg.ApplyOverride("*:ROMFileName=" + fs.Arg(0)); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	for _, o := range overrides {
		if err := cfg.ApplyOverride(o); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	if dumpConfig {
		for _, k := range cfg.Keys() {
			fmt.Fprintf(stderr, "%s = %s\n", k, cfg.GetString(k, ""))
		}
	}

	root := sim.NewObject(nil, "root")
	k := sim.NewKernel(root)
	reg := sim.NewRegistry()
	perf := perfcounters.New()
	regs := newRegFile()

	memSize, _ := cfg.GetInt("mainmem.size", 1<<24)
	memLatency, _ := cfg.GetInt("mainmem.latency", 4)
	mem := mainmem.New(root, k, memSize, sim.CycleNo(memLatency))
	k.RegisterProcess(mem.Process("mainmem.complete"))

	assoc, _ := cfg.GetInt("dcache.associativity", 2)
	sets, _ := cfg.GetInt("dcache.sets", 16)
	lineSize, _ := cfg.GetInt("dcache.linesize", 64)
	dc := dcache.New(root, int(assoc), int(sets), int(lineSize), nil, mem, regs)
	k.RegisterStorage(dc.Service())
	k.RegisterProcess(dc.Process("dcache.writeback"))

	fpuUnit := fpu.New(root, nil)
	k.RegisterProcess(fpuUnit.Process("fpu.pipeline"))
	fpuUnit.RegisterSource(regs, nil)

	arena := zlcdma.NewArena()
	dir := zlcdma.New(sim.NewObject(root, "dir0"), 4, 16, uint64(lineSize), 0, 0, arena, 8, 8)
	zlcdma.WireRing([]*zlcdma.Node{dir.Bottom()})
	zlcdma.WireRing([]*zlcdma.Node{dir.Top()})
	k.RegisterStorage(dir.Bottom().Incoming())
	k.RegisterStorage(dir.Top().Incoming())
	k.RegisterStorage(dir.Service())
	k.RegisterProcess(dir.ProcessBottom("dir0.bottom"))
	k.RegisterProcess(dir.ProcessTop("dir0.top"))

	reg.Register("kernel.cycle", &sim.SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return uint64(k.Cycle()) }})
	reg.Register("kernel.commits", &sim.SampleVariable{Kind: "integer", Size: 8, Get: func() uint64 { return k.Stats.Commits }})
	for i := 0; i < perfcounters.NumCounters(); i++ {
		idx := i
		reg.Register(fmt.Sprintf("perf.counter%d", idx), &sim.SampleVariable{
			Kind: "integer", Size: 8,
			Get: func() uint64 { v, _ := perf.Read(idx, 8); return v },
		})
	}

	var roms []*rom.ROM
	for _, spec := range romLoads {
		parts := strings.Fields(spec)
		if len(parts) != 2 {
			fmt.Fprintf(stderr, "bad -L argument %q, want \"NUM FILE\"\n", spec)
			return 1
		}
		num, err := strconv.ParseUint(parts[0], 0, 32)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		image, err := rom.Load(root, parts[1], 0)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		roms = append(roms, image)
		regs.values[sim.RegAddr{Index: uint32(num)}] = sim.FullInt(8, image.PhysAddr())
	}
	defer func() {
		for _, r := range roms {
			r.Close()
		}
	}()

	if symtableFile != "" {
		if _, err := rom.LoadSymtab(symtableFile); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	for _, spec := range intRegs {
		parts := strings.Fields(spec)
		if len(parts) != 2 {
			fmt.Fprintf(stderr, "bad -R argument %q, want \"NUM VALUE\"\n", spec)
			return 1
		}
		num, err1 := strconv.ParseUint(parts[0], 0, 32)
		val, err2 := strconv.ParseInt(parts[1], 0, 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(stderr, "bad -R argument %q\n", spec)
			return 1
		}
		regs.values[sim.RegAddr{Index: uint32(num)}] = sim.FullInt(8, uint64(val))
	}
	for _, spec := range floatRegs {
		parts := strings.Fields(spec)
		if len(parts) != 2 {
			fmt.Fprintf(stderr, "bad -F argument %q, want \"NUM VALUE\"\n", spec)
			return 1
		}
		num, err1 := strconv.ParseUint(parts[0], 0, 32)
		val, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(stderr, "bad -F argument %q\n", spec)
			return 1
		}
		regs.values[sim.RegAddr{Index: uint32(num)}] = sim.FullFloat(8, val)
	}

	if areaTech != "" {
		tech, err := strconv.ParseUint(areaTech, 0, 32)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		var est area.Unavailable
		if v, err := est.Estimate(uint(tech)); err != nil {
			fmt.Fprintf(stderr, "# area estimate unavailable: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "# area estimate: %g mm^2\n", v)
		}
	}

	if listVars {
		for _, name := range reg.Names() {
			fmt.Fprintln(stderr, name)
		}
	}

	if dumpTopology != "" {
		f, err := os.Create(dumpTopology)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		reg.DumpTopology(f, root, true)
		f.Close()
	}

	var monitor *sample.Monitor
	if monitorOn {
		mdFile := cfg.GetString("MonitorMetadataFile", "mgsim.mon.md")
		outFile := cfg.GetString("MonitorOutputFile", "")
		patterns := strings.Fields(cfg.GetString("MonitorSampleVariables", ""))
		patterns = append([]string{"kernel.cycle"}, patterns...)
		patterns = append(patterns, "kernel.cycle")

		md, err := os.Create(mdFile)
		if err != nil {
			logger.WarnCycle(uint64(k.Cycle()), "cannot write monitor metadata file, monitoring disabled", "file", mdFile, "error", err)
		} else {
			sampler, err := sample.SelectVariables(md, reg, patterns)
			md.Close()
			if err != nil {
				logger.WarnCycle(uint64(k.Cycle()), "monitor variable selection failed", "error", err)
			} else if outFile != "" {
				out, err := os.Create(outFile)
				if err != nil {
					logger.WarnCycle(uint64(k.Cycle()), "cannot write monitor output file, monitoring disabled", "file", outFile, "error", err)
				} else {
					delayMs, _ := cfg.GetInt("MonitorSampleDelayMs", 10)
					monitor = sample.NewMonitor(sampler, out, time.Duration(delayMs)*time.Millisecond,
						func() uint64 { return uint64(k.Cycle()) }, quiet)
					monitor.Start()
					defer func() {
						monitor.Close()
						out.Close()
					}()
				}
			}
		}
	}

	if doNothing {
		return 0
	}

	var runErr error
	if interactive {
		p := cli.New(stdin, stdout, k, reg)
		runErr = p.Run()
	} else {
		maxCycles, _ := cfg.GetInt("MaxCycles", 1_000_000)
		_, runErr = k.Advance(sim.CycleNo(maxCycles))
		if runErr != nil && !terminate {
			fmt.Fprintln(stdout, "# simulation stalled, dropping to interactive prompt")
			p := cli.New(stdin, stdout, k, reg)
			runErr = p.Run()
		}
	}

	if len(printVars) > 0 {
		w := bufio.NewWriter(stdout)
		reg.DumpValues(w, printVars)
		w.Flush()
	}

	if !quiet {
		fmt.Fprintf(stderr, "# %d cycles, %d commits\n", k.Stats.Cycles, k.Stats.Commits)
	}

	if runErr != nil && terminate {
		logger.ErrorCycle(uint64(k.Cycle()), "simulation terminated on error", "error", runErr)
		return 1
	}
	return 0
}
