package pprof

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
	"github.com/google/pprof/profile"
)

type AddressTable interface {
	StartOf(name string) (uint64, bool)
}

// BuildPprofProfile aggregates identical stacks. Every sample stands for
// sampleRate retired instructions, reported as microseconds of synthetic cpu
// time to match the Gecko export.
func BuildPprofProfile(samples []profiler.Sample, addrs AddressTable, sampleRate uint64, start time.Time) (*profile.Profile, error) {
	if len(samples) == 0 {
		p := &profile.Profile{}
		return p, nil
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "microseconds"},
		},
		PeriodType:    &profile.ValueType{Type: "cpu", Unit: "microseconds"},
		Period:        int64(sampleRate),
		TimeNanos:     start.UnixNano(),
		DurationNanos: int64(len(samples)) * int64(sampleRate) * int64(time.Microsecond),
	}

	locs := map[string]*profile.Location{}
	byStack := map[string]*profile.Sample{}

	addLocationFor := func(name string) *profile.Location {
		if loc, ok := locs[name]; ok {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(p.Function) + 1),
			Name:       name,
			SystemName: name,
		}
		p.Function = append(p.Function, fn)

		var addr uint64
		if addrs != nil {
			addr, _ = addrs.StartOf(name)
		}
		loc := &profile.Location{
			ID:      uint64(len(p.Location) + 1),
			Address: addr,
			Line:    []profile.Line{{Function: fn, Line: 0}},
		}
		locs[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, s := range samples {
		if len(s.Stack) == 0 {
			continue
		}
		key := strings.Join(s.Stack, "\x00")
		if ps, ok := byStack[key]; ok {
			ps.Value[0]++
			ps.Value[1] += int64(sampleRate)
			continue
		}

		// pprof assumes stacks are in leaf-to-root order, i.e. Location[0] is leaf (innermost)
		stack := make([]*profile.Location, 0, len(s.Stack))
		for i := len(s.Stack) - 1; i >= 0; i-- {
			stack = append(stack, addLocationFor(s.Stack[i]))
		}
		ps := &profile.Sample{
			Value:    []int64{1, int64(sampleRate)},
			Location: stack,
		}
		byStack[key] = ps
		p.Sample = append(p.Sample, ps)
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return p, nil
}

// WriteProfile writes the gzip-compressed protobuf encoding.
func WriteProfile(p *profile.Profile, w io.Writer) error {
	return p.Write(w)
}

func WriteProfileToFile(p *profile.Profile, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteProfile(p, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
