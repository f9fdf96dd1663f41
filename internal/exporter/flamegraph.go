package exporter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
)

// BuildFoldedStacks aggregates samples into Brendan Gregg's folded format:
// "root;child;leaf" -> number of samples.
func BuildFoldedStacks(samples []profiler.Sample) map[string]uint64 {
	agg := make(map[string]uint64)
	for _, s := range samples {
		if len(s.Stack) == 0 {
			agg["<unknown>"]++
			continue
		}
		// samples are already root->leaf, which is what flamegraphs expect
		names := make([]string, 0, len(s.Stack))
		for _, name := range s.Stack {
			names = append(names, escapeFoldedName(name))
		}
		agg[strings.Join(names, ";")]++
	}
	return agg
}

func escapeFoldedName(name string) string {
	// semicolons separate frames and newlines separate lines. Replace them with safe characters.
	name = strings.ReplaceAll(name, ";", "_")  // frame separator in folded stacks format
	name = strings.ReplaceAll(name, "\n", " ") // line separator, duh
	name = strings.TrimSpace(name)
	if name == "" {
		return "<unknown>"
	}
	return name
}

// WriteFoldedStacks writes one line per stack, heaviest first, ties broken
// by name so output is deterministic.
func WriteFoldedStacks(w io.Writer, agg map[string]uint64) error {
	type kv struct {
		k string
		v uint64
	}
	var items []kv
	for k, v := range agg {
		items = append(items, kv{k, v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v == items[j].v {
			return items[i].k < items[j].k
		}
		return items[i].v > items[j].v
	})

	bw := bufio.NewWriter(w)
	for _, it := range items {
		if _, err := fmt.Fprintf(bw, "%s %d\n", it.k, it.v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func WriteFoldedStacksToFile(agg map[string]uint64, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteFoldedStacks(f, agg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
