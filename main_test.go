package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VladMinzatu/zkvm-profiler/internal/exporter"
	"github.com/VladMinzatu/zkvm-profiler/internal/pctrace"
	"github.com/VladMinzatu/zkvm-profiler/internal/symbolizer"
	"github.com/VladMinzatu/zkvm-profiler/internal/symbolizer/elftest"
)

func writeFixtures(t *testing.T, dir string) (elfPath, tracePath string) {
	t.Helper()
	elfPath = filepath.Join(dir, "guest.elf")
	bin := elftest.Build([]elftest.Symbol{
		elftest.Func("main", 0x1000, 0x104),
		elftest.Func("fib", 0x2000, 0x44),
	})
	require.NoError(t, os.WriteFile(elfPath, bin, 0o644))

	tracePath = filepath.Join(dir, "trace.bin.zst")
	w, err := pctrace.Create(tracePath)
	require.NoError(t, err)
	pcs := []uint64{0x1000, 0x1004, 0x1008, 0x2000, 0x2004, 0x2008, 0x100c, 0x1010}
	for _, pc := range pcs {
		require.NoError(t, w.Write(pc))
	}
	require.NoError(t, w.Close())
	return elfPath, tracePath
}

func TestParseArgs(t *testing.T) {
	cfg, err := parseArgs([]string{"-elf", "guest.elf", "-trace", "trace.bin", "-sample-rate", "4"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cfg.SampleRate)
	assert.Equal(t, uint64(symbolizer.DefaultInstructionWidth), cfg.InstructionWidth)
	assert.Equal(t, "main", cfg.RootFrame)
	assert.Equal(t, "profile.json", cfg.Output)
}

func TestParseArgs_Validation(t *testing.T) {
	_, err := parseArgs([]string{"-trace", "trace.bin"})
	require.Error(t, err)

	_, err = parseArgs([]string{"-elf", "guest.elf", "-trace", "trace.bin", "-sample-rate", "0"})
	require.Error(t, err)
}

func TestParseArgs_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiler.conf")
	require.NoError(t, os.WriteFile(path, []byte("elf guest.elf\ntrace trace.bin\nroot-frame _start\n"), 0o644))

	cfg, err := parseArgs([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "guest.elf", cfg.ElfPath)
	assert.Equal(t, "_start", cfg.RootFrame)
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	elfPath, tracePath := writeFixtures(t, dir)

	cfg := &Config{
		ElfPath:          elfPath,
		TracePath:        tracePath,
		SampleRate:       4,
		InstructionWidth: 4,
		RootFrame:        "main",
		Output:           filepath.Join(dir, "profile.json"),
		PprofOutput:      filepath.Join(dir, "cpu.pb.gz"),
		FoldedOutput:     filepath.Join(dir, "folded.txt"),
		OltpOutput:       filepath.Join(dir, "profile.otlp.pb"),
		Product:          "test-vm",
	}
	require.NoError(t, run(context.Background(), cfg))

	f, err := os.Open(cfg.Output)
	require.NoError(t, err)
	defer f.Close()
	stacks, err := exporter.ReadGeckoStacks(f)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"main"}, {"main"}, {"main"},
		{"main", "fib"}, {"main", "fib"}, {"main", "fib"},
		{"main"}, {"main"},
	}, stacks)

	folded, err := os.ReadFile(cfg.FoldedOutput)
	require.NoError(t, err)
	assert.Equal(t, "main 5\nmain;fib 3\n", string(folded))

	pf, err := os.Open(cfg.PprofOutput)
	require.NoError(t, err)
	defer pf.Close()
	prof, err := profile.Parse(pf)
	require.NoError(t, err)
	assert.Len(t, prof.Sample, 2)

	otlp, err := os.Stat(cfg.OltpOutput)
	require.NoError(t, err)
	assert.Positive(t, otlp.Size())
}

func TestRun_InvalidBinary(t *testing.T) {
	dir := t.TempDir()
	_, tracePath := writeFixtures(t, dir)
	elfPath := filepath.Join(dir, "bogus.elf")
	require.NoError(t, os.WriteFile(elfPath, []byte("not an elf"), 0o644))

	err := run(context.Background(), &Config{
		ElfPath:    elfPath,
		TracePath:  tracePath,
		SampleRate: 1,
		Output:     filepath.Join(dir, "profile.json"),
	})
	require.ErrorIs(t, err, symbolizer.ErrInvalidBinary)
	_, statErr := os.Stat(filepath.Join(dir, "profile.json"))
	assert.True(t, os.IsNotExist(statErr))
}
