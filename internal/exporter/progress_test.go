package exporter

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogProgress_ReportsEveryTenth(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress("Creating profile")
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	p.Start(200)
	for i := 0; i < 200; i++ {
		p.Add(1)
	}
	p.Finish()

	out := buf.String()
	// start line, ten steps, finish line
	assert.Equal(t, 12, strings.Count(out, "\n"))
	assert.Contains(t, out, "percent=10")
	assert.Contains(t, out, "percent=100")
	assert.Contains(t, out, "Creating profile finished")
}

func TestLogProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress("Creating profile")
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	p.Start(0)
	p.Add(1)
	p.Finish()
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}
