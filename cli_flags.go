package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
	"github.com/VladMinzatu/zkvm-profiler/internal/symbolizer"
)

const (
	defaultSampleRate = 1
	defaultOutput     = "profile.json"
	defaultProduct    = "zkVM"
)

var (
	elfHelp        = "Path to the guest ELF binary the trace was recorded from."
	traceHelp      = "Path to the PC trace (raw little-endian u64 words, optionally .zst or .gz)."
	sampleRateHelp = "Sample every PC divisible by this value; also the synthetic duration " +
		"of one sample in microseconds. Must be > 0."
	instructionWidthHelp = fmt.Sprintf("Width in bytes of the trailing instruction dropped from "+
		"every function range. Default is %d.", symbolizer.DefaultInstructionWidth)
	rootFrameHelp = "Entry function expected in nearly every sample; used to detect " +
		"mismatched ELF/trace pairs."
	outputHelp       = "Gecko profile output for the Firefox Profiler. A .gz suffix compresses it."
	pprofHelp        = "Optional pprof output path."
	foldedHelp       = "Optional folded stacks output path (flamegraph.pl / speedscope)."
	oltpHelp         = "Optional OTLP profiles protobuf output path."
	oltpEndpointHelp = "Optional OTLP collector address (host:port) to push the profile to."
	disableTLSHelp   = "Disable TLS when pushing to the OTLP collector."
	productHelp      = "Product name shown by the profile viewer."
	verboseModeHelp  = "Enable verbose logging."
	configHelp       = "Optional plain config file with one \"flag value\" pair per line."
)

type Config struct {
	ElfPath          string
	TracePath        string
	SampleRate       uint64
	InstructionWidth uint64
	RootFrame        string
	Output           string
	PprofOutput      string
	FoldedOutput     string
	OltpOutput       string
	OltpEndpoint     string
	DisableTLS       bool
	Product          string
	VerboseMode      bool
}

func (c *Config) Validate() error {
	if c.ElfPath == "" {
		return errors.New("-elf is required")
	}
	if c.TracePath == "" {
		return errors.New("-trace is required")
	}
	if c.SampleRate == 0 {
		return errors.New("invalid -sample-rate; must be > 0")
	}
	if c.Output == "" {
		return errors.New("-o must not be empty")
	}
	return nil
}

func parseArgs(args []string) (*Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("zkvm-profiler", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.String("config", "", configHelp)
	fs.BoolVar(&cfg.DisableTLS, "disable-tls", false, disableTLSHelp)
	fs.StringVar(&cfg.ElfPath, "elf", "", elfHelp)
	fs.StringVar(&cfg.FoldedOutput, "folded", "", foldedHelp)
	fs.Uint64Var(&cfg.InstructionWidth, "instruction-width", symbolizer.DefaultInstructionWidth,
		instructionWidthHelp)
	fs.StringVar(&cfg.Output, "o", defaultOutput, outputHelp)
	fs.StringVar(&cfg.OltpOutput, "oltp", "", oltpHelp)
	fs.StringVar(&cfg.OltpEndpoint, "oltp-endpoint", "", oltpEndpointHelp)
	fs.StringVar(&cfg.PprofOutput, "pprof", "", pprofHelp)
	fs.StringVar(&cfg.Product, "product", defaultProduct, productHelp)
	fs.StringVar(&cfg.RootFrame, "root-frame", profiler.DefaultRootFrame, rootFrameHelp)
	fs.Uint64Var(&cfg.SampleRate, "sample-rate", defaultSampleRate, sampleRateHelp)
	fs.StringVar(&cfg.TracePath, "trace", "", traceHelp)

	fs.BoolVar(&cfg.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&cfg.VerboseMode, "verbose", false, verboseModeHelp)

	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix("ZKVM_PROFILER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}
