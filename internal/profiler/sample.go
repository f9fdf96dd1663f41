package profiler

// Sample is the call stack, outermost frame first, at one sampled PC.
type Sample struct {
	Stack []string
}

// Samples is the append-only timeline of a profiling session. Once handed
// out by Profiler.Finish it is read-only until drained.
type Samples struct {
	entries []Sample
}

func NewSamples(entries ...Sample) *Samples {
	return &Samples{entries: entries}
}

func (s *Samples) append(sample Sample) {
	s.entries = append(s.entries, sample)
}

func (s *Samples) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// All returns the samples in capture order without consuming them. Callers
// must not modify the stacks.
func (s *Samples) All() []Sample {
	if s == nil {
		return nil
	}
	return s.entries
}

// Drain visits every sample once, in capture order, releasing each one after
// fn returns. The store is empty afterwards.
func (s *Samples) Drain(fn func(i int, sample Sample) error) error {
	if s == nil {
		return nil
	}
	entries := s.entries
	s.entries = nil
	for i := range entries {
		if err := fn(i, entries[i]); err != nil {
			return err
		}
		entries[i] = Sample{}
	}
	return nil
}
