package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/VladMinzatu/zkvm-profiler/internal/profiler"
)

var ErrSerialization = errors.New("failed to serialize profile")

const (
	geckoVersion   = 24
	defaultProduct = "zkVM"
	otherCategory  = 0
)

type GeckoOptions struct {
	// SampleRate is both the PC cadence the samples were taken at and the
	// synthetic duration of each sample in microseconds.
	SampleRate  uint64
	Product     string
	ThreadName  string
	Fingerprint string
	StartTime   time.Time
	Progress    Progress
}

type geckoProfile struct {
	Meta         geckoMeta     `json:"meta"`
	Libs         []any         `json:"libs"`
	Threads      []geckoThread `json:"threads"`
	PausedRanges []any         `json:"pausedRanges"`
	Processes    []any         `json:"processes"`
}

type geckoMeta struct {
	Version      int             `json:"version"`
	Interval     float64         `json:"interval"`
	StartTime    float64         `json:"startTime"`
	ProcessType  int             `json:"processType"`
	Product      string          `json:"product"`
	Stackwalk    int             `json:"stackwalk"`
	Debug        bool            `json:"debug"`
	Misc         string          `json:"misc,omitempty"`
	Symbolicated bool            `json:"symbolicated"`
	Categories   []geckoCategory `json:"categories"`
	MarkerSchema []any           `json:"markerSchema"`
}

type geckoCategory struct {
	Name          string   `json:"name"`
	Color         string   `json:"color"`
	Subcategories []string `json:"subcategories"`
}

type geckoTable struct {
	Schema     map[string]int `json:"schema"`
	WeightType string         `json:"weightType,omitempty"`
	Data       [][]any        `json:"data"`
}

type geckoThread struct {
	Name           string     `json:"name"`
	ProcessType    string     `json:"processType"`
	ProcessName    string     `json:"processName"`
	RegisterTime   float64    `json:"registerTime"`
	UnregisterTime *float64   `json:"unregisterTime"`
	Tid            int        `json:"tid"`
	Pid            int        `json:"pid"`
	Markers        geckoTable `json:"markers"`
	Samples        geckoTable `json:"samples"`
	FrameTable     geckoTable `json:"frameTable"`
	StackTable     geckoTable `json:"stackTable"`
	StringTable    []string   `json:"stringTable"`
}

type stackKey struct {
	prefix int // -1 for a root frame
	frame  int
}

// threadBuilder interns frame labels and stack prefixes for one thread.
type threadBuilder struct {
	strings map[string]int
	frames  map[int]int
	stacks  map[stackKey]int
	thread  geckoThread
}

func newThreadBuilder(name, processName string) *threadBuilder {
	return &threadBuilder{
		strings: make(map[string]int),
		frames:  make(map[int]int),
		stacks:  make(map[stackKey]int),
		thread: geckoThread{
			Name:        name,
			ProcessType: "default",
			ProcessName: processName,
			Tid:         1,
			Markers: geckoTable{
				Schema: map[string]int{"name": 0, "startTime": 1, "endTime": 2, "phase": 3, "category": 4, "data": 5},
				Data:   [][]any{},
			},
			Samples: geckoTable{
				Schema:     map[string]int{"stack": 0, "time": 1, "weight": 2},
				WeightType: "tracing-ms",
				Data:       [][]any{},
			},
			FrameTable: geckoTable{
				Schema: map[string]int{
					"location": 0, "relevantForJS": 1, "innerWindowID": 2, "implementation": 3,
					"line": 4, "column": 5, "category": 6, "subcategory": 7,
				},
				Data: [][]any{},
			},
			StackTable: geckoTable{
				Schema: map[string]int{"prefix": 0, "frame": 1},
				Data:   [][]any{},
			},
			StringTable: []string{},
		},
	}
}

func (b *threadBuilder) internString(s string) int {
	if id, ok := b.strings[s]; ok {
		return id
	}
	id := len(b.thread.StringTable)
	b.thread.StringTable = append(b.thread.StringTable, s)
	b.strings[s] = id
	return id
}

func (b *threadBuilder) internFrame(label string) int {
	str := b.internString(label)
	if id, ok := b.frames[str]; ok {
		return id
	}
	id := len(b.thread.FrameTable.Data)
	b.thread.FrameTable.Data = append(b.thread.FrameTable.Data,
		[]any{str, false, 0, nil, nil, nil, otherCategory, 0})
	b.frames[str] = id
	return id
}

// internStack returns the stack table id of the full frame sequence, or -1
// for an empty stack.
func (b *threadBuilder) internStack(names []string) int {
	prefix := -1
	for _, name := range names {
		key := stackKey{prefix: prefix, frame: b.internFrame(name)}
		id, ok := b.stacks[key]
		if !ok {
			id = len(b.thread.StackTable.Data)
			var p any
			if prefix >= 0 {
				p = prefix
			}
			b.thread.StackTable.Data = append(b.thread.StackTable.Data, []any{p, key.frame})
			b.stacks[key] = id
		}
		prefix = id
	}
	return prefix
}

func (b *threadBuilder) addSample(stack int, timeMs, weightMs float64) {
	var s any
	if stack >= 0 {
		s = stack
	}
	b.thread.Samples.Data = append(b.thread.Samples.Data, []any{s, timeMs, weightMs})
}

// WriteGecko drains samples into a Gecko profile (the format read by the
// Firefox Profiler) and writes it as JSON. There is no real clock in the
// zkVM, so sample i is placed at i*SampleRate microseconds and weighs
// SampleRate microseconds.
func WriteGecko(w io.Writer, samples *profiler.Samples, opts GeckoOptions) error {
	if opts.SampleRate == 0 {
		return errors.New("invalid SampleRate; must be > 0")
	}
	if opts.Product == "" {
		opts.Product = defaultProduct
	}
	if opts.ThreadName == "" {
		opts.ThreadName = "main"
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}

	step := time.Duration(opts.SampleRate) * time.Microsecond
	stepMs := float64(step) / float64(time.Millisecond)
	tb := newThreadBuilder(opts.ThreadName, opts.Product)

	progress.Start(samples.Len())
	var elapsed time.Duration
	_ = samples.Drain(func(_ int, s profiler.Sample) error {
		tb.addSample(tb.internStack(s.Stack), float64(elapsed)/float64(time.Millisecond), stepMs)
		elapsed += step
		progress.Add(1)
		return nil
	})
	progress.Finish()

	profile := geckoProfile{
		Meta: geckoMeta{
			Version:      geckoVersion,
			Interval:     stepMs,
			StartTime:    float64(opts.StartTime.UnixMicro()) / 1000,
			Product:      opts.Product,
			Misc:         opts.Fingerprint,
			Symbolicated: true,
			Categories: []geckoCategory{
				{Name: "Other", Color: "grey", Subcategories: []string{"Other"}},
			},
			MarkerSchema: []any{},
		},
		Libs:         []any{},
		Threads:      []geckoThread{tb.thread},
		PausedRanges: []any{},
		Processes:    []any{},
	}

	if err := json.NewEncoder(w).Encode(&profile); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

// ReadGeckoStacks decodes a profile written by WriteGecko and rebuilds the
// frame names of every sample, outermost first, in timeline order.
func ReadGeckoStacks(r io.Reader) ([][]string, error) {
	var profile struct {
		Threads []struct {
			Samples     geckoTable `json:"samples"`
			FrameTable  geckoTable `json:"frameTable"`
			StackTable  geckoTable `json:"stackTable"`
			StringTable []string   `json:"stringTable"`
		} `json:"threads"`
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&profile); err != nil {
		return nil, err
	}
	if len(profile.Threads) != 1 {
		return nil, fmt.Errorf("expected exactly one thread, got %d", len(profile.Threads))
	}
	th := profile.Threads[0]

	column := func(t geckoTable, name string) (int, error) {
		c, ok := t.Schema[name]
		if !ok {
			return 0, fmt.Errorf("schema has no %q column", name)
		}
		return c, nil
	}
	stackCol, err := column(th.Samples, "stack")
	if err != nil {
		return nil, err
	}
	prefixCol, err := column(th.StackTable, "prefix")
	if err != nil {
		return nil, err
	}
	frameCol, err := column(th.StackTable, "frame")
	if err != nil {
		return nil, err
	}
	locationCol, err := column(th.FrameTable, "location")
	if err != nil {
		return nil, err
	}

	index := func(v any, size int) (int, error) {
		n, ok := v.(json.Number)
		if !ok {
			return 0, fmt.Errorf("expected index, got %v", v)
		}
		i, err := n.Int64()
		if err != nil || i < 0 || int(i) >= size {
			return 0, fmt.Errorf("index %v out of range [0,%d)", v, size)
		}
		return int(i), nil
	}

	out := make([][]string, 0, len(th.Samples.Data))
	for _, row := range th.Samples.Data {
		var names []string
		cur := row[stackCol]
		for cur != nil {
			s, err := index(cur, len(th.StackTable.Data))
			if err != nil {
				return nil, err
			}
			f, err := index(th.StackTable.Data[s][frameCol], len(th.FrameTable.Data))
			if err != nil {
				return nil, err
			}
			str, err := index(th.FrameTable.Data[f][locationCol], len(th.StringTable))
			if err != nil {
				return nil, err
			}
			names = append(names, th.StringTable[str])
			if len(names) > len(th.StackTable.Data) {
				return nil, errors.New("stack table contains a prefix cycle")
			}
			cur = th.StackTable.Data[s][prefixCol]
		}
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
		out = append(out, names)
	}
	return out, nil
}
