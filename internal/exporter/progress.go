package exporter

import (
	"log/slog"
	"time"
)

// Progress receives coarse feedback while an export walks a long trace.
type Progress interface {
	Start(total int)
	Add(n int)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int) {}
func (nopProgress) Add(int)   {}
func (nopProgress) Finish()   {}

// LogProgress reports through slog every time another tenth of the work is
// done.
type LogProgress struct {
	Message string
	Logger  *slog.Logger

	total    int
	done     int
	nextStep int
	started  time.Time
}

func NewLogProgress(message string) *LogProgress {
	return &LogProgress{Message: message}
}

func (p *LogProgress) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *LogProgress) Start(total int) {
	p.total = total
	p.done = 0
	p.nextStep = 1
	p.started = time.Now()
	p.logger().Info(p.Message, "total", total)
}

func (p *LogProgress) Add(n int) {
	p.done += n
	if p.total == 0 {
		return
	}
	for p.nextStep <= 10 && p.done*10 >= p.total*p.nextStep {
		p.logger().Info(p.Message, "done", p.done, "total", p.total, "percent", p.nextStep*10)
		p.nextStep++
	}
}

func (p *LogProgress) Finish() {
	p.logger().Info(p.Message+" finished", "done", p.done, "elapsed", time.Since(p.started))
}
