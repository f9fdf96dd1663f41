package profiler

import (
	"errors"
	"log/slog"

	"github.com/VladMinzatu/zkvm-profiler/internal/symbolizer"
)

type SymbolTable interface {
	EntryIndex(pc uint64) (int, bool)
	Range(i int) symbolizer.FunctionRange
}

type addrRange struct {
	start, end uint64
}

func (r addrRange) contains(pc uint64) bool {
	return pc > r.start && pc <= r.end
}

// Profiler rebuilds the guest call stack from the PCs retired by the zkVM.
// There are no call or return events: entries are recognised by function
// start addresses and returns by the PC landing back inside a frame that is
// already on the stack. It is owned by the interpreter loop and must not be
// shared between goroutines.
type Profiler struct {
	sampleRate uint64
	table      SymbolTable

	// parallel slices, always the same length; index 0 is the outermost frame
	frameNames   []string
	frameIndices []int
	frameRanges  []addrRange
	current      addrRange

	samples    *Samples
	unresolved uint64
	finished   bool
}

func NewProfiler(table SymbolTable, sampleRate uint64) (*Profiler, error) {
	if table == nil {
		return nil, errors.New("invalid symbol table; must not be nil")
	}
	if sampleRate == 0 {
		return nil, errors.New("invalid sampleRate; must be > 0")
	}
	return &Profiler{
		sampleRate: sampleRate,
		table:      table,
		samples:    &Samples{},
	}, nil
}

// Record consumes the next retired PC and samples the stack every
// sampleRate-th address.
func (p *Profiler) Record(pc uint64) {
	if p.finished {
		panic("profiler: Record called after Finish")
	}

	if !p.current.contains(pc) {
		if f, ok := p.table.EntryIndex(pc); ok {
			p.enter(f)
		} else {
			p.unwindTo(pc)
		}
	}

	if pc%p.sampleRate == 0 {
		p.samples.append(Sample{Stack: p.Stack()})
	}
}

func (p *Profiler) enter(f int) {
	// recursion is flattened: a function already on the stack is not pushed again
	for _, idx := range p.frameIndices {
		if idx == f {
			return
		}
	}
	r := p.table.Range(f)
	p.current = addrRange{start: r.Start, end: r.End}
	p.frameNames = append(p.frameNames, r.Name)
	p.frameIndices = append(p.frameIndices, f)
	p.frameRanges = append(p.frameRanges, p.current)
}

// unwindTo handles a jump that is neither inside the current frame nor a
// function entry. The outermost frame containing pc becomes the innermost
// one; compilers may return past several frames at once. A pc no frame
// claims leaves the stack untouched.
func (p *Profiler) unwindTo(pc uint64) {
	for k, r := range p.frameRanges {
		if r.contains(pc) {
			p.frameNames = p.frameNames[:k+1]
			p.frameIndices = p.frameIndices[:k+1]
			p.frameRanges = p.frameRanges[:k+1]
			p.current = r
			return
		}
	}
	p.unresolved++
}

func (p *Profiler) Depth() int { return len(p.frameNames) }

// Unresolved counts jumps that matched no entry point and no stacked frame.
func (p *Profiler) Unresolved() uint64 { return p.unresolved }

// Stack returns a copy of the current frame names, outermost first.
func (p *Profiler) Stack() []string {
	stack := make([]string, len(p.frameNames))
	copy(stack, p.frameNames)
	return stack
}

// Finish hands the collected samples to the caller. The profiler cannot
// record afterwards.
func (p *Profiler) Finish() *Samples {
	p.finished = true
	s := p.samples
	slog.Info("Profiling session finished", "samples", s.Len(), "unresolvedJumps", p.unresolved,
		"depth", len(p.frameNames))
	p.samples = nil
	return s
}
