package symbolizer

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ianlancetaylor/demangle"
	"github.com/zeebo/xxh3"
)

var ErrInvalidBinary = errors.New("invalid ELF binary")

const DefaultInstructionWidth = 4

type options struct {
	instructionWidth uint64
}

type Option func(*options)

// WithInstructionWidth sets the size of the trailing instruction word that is
// dropped from every symbol when computing its end address.
func WithInstructionWidth(width uint64) Option {
	return func(o *options) { o.instructionWidth = width }
}

// SymbolTable holds the function ranges of one binary. It is read-only once
// built and can be shared freely.
type SymbolTable struct {
	ranges      []FunctionRange
	startLookup map[uint64]int
	byStart     []int // indices into ranges, ordered by start address
	degenerate  int
	fingerprint string
}

func BuildSymbolTable(elfBytes []byte, opts ...Option) (*SymbolTable, error) {
	o := options{instructionWidth: DefaultInstructionWidth}
	for _, opt := range opts {
		opt(&o)
	}

	ef, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	defer ef.Close()

	syms, err := ef.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("%w: read .symtab: %v", ErrInvalidBinary, err)
	}

	var ranges []FunctionRange
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		ranges = append(ranges, FunctionRange{
			Start: sym.Value,
			End:   endAddress(sym.Value, sym.Size, o.instructionWidth),
			Name:  demangle.Filter(sym.Name),
		})
	}

	t := NewSymbolTable(ranges)
	t.fingerprint = fmt.Sprintf("%016x", xxh3.Hash(elfBytes))
	slog.Info("Loaded function symbols", "functions", len(t.ranges), "degenerate", t.degenerate,
		"fingerprint", t.fingerprint)
	return t, nil
}

// NewSymbolTable indexes ranges that were already extracted. Later ranges
// win the start lookup when two functions share an entry point.
func NewSymbolTable(ranges []FunctionRange) *SymbolTable {
	t := &SymbolTable{
		ranges:      ranges,
		startLookup: make(map[uint64]int, len(ranges)),
		byStart:     make([]int, len(ranges)),
	}
	for i, r := range ranges {
		if r.Degenerate() {
			t.degenerate++
			slog.Warn("Function symbol is smaller than one instruction; only its entry point will resolve",
				"name", r.Name, "start", fmt.Sprintf("%#x", r.Start), "end", fmt.Sprintf("%#x", r.End))
		}
		t.startLookup[r.Start] = i
		t.byStart[i] = i
	}
	sort.SliceStable(t.byStart, func(i, j int) bool {
		return t.ranges[t.byStart[i]].Start < t.ranges[t.byStart[j]].Start
	})
	return t
}

// endAddress drops the final instruction word of the symbol. Symbols that
// start below one instruction width and have no size saturate at zero.
func endAddress(start, size, width uint64) uint64 {
	end := start + size
	if end < width {
		return 0
	}
	return end - width
}

func (t *SymbolTable) Len() int { return len(t.ranges) }

func (t *SymbolTable) Range(i int) FunctionRange { return t.ranges[i] }

func (t *SymbolTable) Degenerate() int { return t.degenerate }

// Fingerprint is the xxh3 hash of the ELF image the table was built from.
func (t *SymbolTable) Fingerprint() string { return t.fingerprint }

// EntryIndex returns the index of the function starting exactly at pc.
func (t *SymbolTable) EntryIndex(pc uint64) (int, bool) {
	i, ok := t.startLookup[pc]
	return i, ok
}

func (t *SymbolTable) StartOf(name string) (uint64, bool) {
	for _, r := range t.ranges {
		if r.Name == name {
			return r.Start, true
		}
	}
	return 0, false
}

// Resolve finds the function whose span covers pc, entry point included.
func (t *SymbolTable) Resolve(pc uint64) (FunctionRange, bool) {
	n := sort.Search(len(t.byStart), func(i int) bool {
		return t.ranges[t.byStart[i]].Start > pc
	})
	if n == 0 {
		return FunctionRange{}, false
	}
	r := t.ranges[t.byStart[n-1]]
	if pc == r.Start || r.Contains(pc) {
		return r, true
	}
	return FunctionRange{}, false
}
