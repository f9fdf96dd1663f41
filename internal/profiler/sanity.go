package profiler

import (
	"fmt"
	"log/slog"
	"slices"
)

const (
	DefaultRootFrame       = "main"
	DefaultSanityThreshold = 0.9
)

// SanityChecker flags traces where the program entry function is missing
// from too many samples. That almost always means the trace was recorded
// against a different ELF than the one used for symbols.
type SanityChecker struct {
	RootFrame string
	Threshold float64
	Logger    *slog.Logger
}

func NewSanityChecker(rootFrame string) *SanityChecker {
	if rootFrame == "" {
		rootFrame = DefaultRootFrame
	}
	return &SanityChecker{RootFrame: rootFrame, Threshold: DefaultSanityThreshold}
}

// Check only logs; it never fails or touches the samples.
func (c *SanityChecker) Check(samples *Samples) {
	total := samples.Len()
	if total == 0 {
		return
	}

	withRoot := 0
	for _, s := range samples.All() {
		if slices.Contains(s.Stack, c.RootFrame) {
			withRoot++
		}
	}

	ratio := float64(withRoot) / float64(total)
	if ratio >= c.Threshold {
		return
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("This trace appears to be invalid, likely because the ELF file does not match the trace",
		"rootFrame", c.RootFrame,
		"present", fmt.Sprintf("%.2f%%", ratio*100),
		"samples", total)
}
