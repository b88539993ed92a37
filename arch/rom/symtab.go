package rom

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mgsim-go/mgsim/sim"
)

// Symbol is one symbol-table entry: addr size type name, the format
// emitted by a portable name-lister.
type Symbol struct {
	Addr uint64
	Size uint64
	Type byte
	Name string
}

// SymbolTable is a parsed, address-sorted symbol table with name and
// address-range lookup.
type SymbolTable struct {
	byName map[string]Symbol
	byAddr []Symbol // sorted by Addr
}

// LoadSymtab reads and parses a symbol table file.
func LoadSymtab(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sim.NewDeviceIOError("rom.LoadSymtab", path, err.Error())
	}
	defer f.Close()
	return ParseSymtab(f)
}

// ParseSymtab parses the "addr size type name" text format from r. Blank
// lines and lines starting with '#' are skipped.
func ParseSymtab(r io.Reader) (*SymbolTable, error) {
	t := &SymbolTable{byName: make(map[string]Symbol)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, sim.NewConfigError("rom.ParseSymtab", "", "malformed symtab line: "+line)
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, sim.NewConfigError("rom.ParseSymtab", "", "bad address in: "+line)
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, sim.NewConfigError("rom.ParseSymtab", "", "bad size in: "+line)
		}
		if len(fields[2]) != 1 {
			return nil, sim.NewConfigError("rom.ParseSymtab", "", "bad type in: "+line)
		}
		sym := Symbol{Addr: addr, Size: size, Type: fields[2][0], Name: strings.Join(fields[3:], " ")}
		t.byName[sym.Name] = sym
		t.byAddr = append(t.byAddr, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, sim.NewDeviceIOError("rom.ParseSymtab", "", err.Error())
	}
	sort.Slice(t.byAddr, func(i, j int) bool { return t.byAddr[i].Addr < t.byAddr[j].Addr })
	return t, nil
}

// Lookup finds a symbol by exact name.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// FindByAddr finds the symbol whose [Addr, Addr+Size) range contains addr.
func (t *SymbolTable) FindByAddr(addr uint64) (Symbol, bool) {
	i := sort.Search(len(t.byAddr), func(i int) bool { return t.byAddr[i].Addr > addr })
	if i == 0 {
		return Symbol{}, false
	}
	s := t.byAddr[i-1]
	if addr >= s.Addr && addr < s.Addr+s.Size {
		return s, true
	}
	return Symbol{}, false
}

// Len returns the number of symbols loaded.
func (t *SymbolTable) Len() int { return len(t.byAddr) }
