package exporter

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
)

func TestBuildFoldedStacks_AggregationAndOrder(t *testing.T) {
	samples := []profiler.Sample{
		{Stack: []string{"main", "fib"}},
		{Stack: []string{"main", "fib"}},
		{Stack: []string{"main"}},
	}
	agg := BuildFoldedStacks(samples)
	if len(agg) != 2 {
		t.Fatalf("expected 2 aggregated entries, got %d", len(agg))
	}
	if agg["main;fib"] != 2 {
		t.Fatalf("unexpected count for main;fib: %d (want 2)", agg["main;fib"])
	}
	if agg["main"] != 1 {
		t.Fatalf("unexpected count for main: %d (want 1)", agg["main"])
	}
}

func TestBuildFoldedStacks_Escaping(t *testing.T) {
	samples := []profiler.Sample{{Stack: []string{"Root\nName", "Leaf;Name"}}}
	agg := BuildFoldedStacks(samples)
	if len(agg) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(agg))
	}
	for k := range agg {
		if k != "Root Name;Leaf_Name" {
			t.Fatalf("names not escaped: %q", k)
		}
	}
}

func TestBuildFoldedStacks_EmptyStack(t *testing.T) {
	agg := BuildFoldedStacks([]profiler.Sample{{}})
	if agg["<unknown>"] != 1 {
		t.Fatalf("expected empty stack folded as <unknown>, got %v", agg)
	}
}

func TestWriteFoldedStacks_Ordering(t *testing.T) {
	agg := map[string]uint64{
		"b":     5,
		"a":     5,
		"a;b;c": 10,
	}
	var buf bytes.Buffer
	if err := WriteFoldedStacks(&buf, agg); err != nil {
		t.Fatalf("WriteFoldedStacks failed: %v", err)
	}
	want := "a;b;c 10\na 5\nb 5\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteFoldedStacksToFile(t *testing.T) {
	agg := map[string]uint64{
		"root;leaf": 10,
		"r;l":       5,
	}
	tmp := t.TempDir() + "/folded.txt"
	if err := WriteFoldedStacksToFile(agg, tmp); err != nil {
		t.Fatalf("WriteFoldedStacksToFile failed: %v", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		t.Fatalf("open tmp file: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := []string{}
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	for _, ln := range lines {
		parts := strings.SplitN(ln, " ", 2)
		if len(parts) != 2 {
			t.Fatalf("bad folded line format: %q", ln)
		}
		if strings.TrimSpace(parts[0]) == "" {
			t.Fatalf("empty stack in line: %q", ln)
		}
	}
}
