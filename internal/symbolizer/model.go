package symbolizer

// FunctionRange is the address span of one function symbol. A PC belongs to
// the function when Start < pc <= End; the entry point itself is matched
// separately through the start index.
type FunctionRange struct {
	Start uint64
	End   uint64
	Name  string
}

func (r FunctionRange) Contains(pc uint64) bool {
	return pc > r.Start && pc <= r.End
}

// Degenerate reports ranges whose symbol was smaller than one instruction.
// They never contain a PC, only their entry point resolves.
func (r FunctionRange) Degenerate() bool {
	return r.End < r.Start
}
