// Package pctrace reads and writes the PC traces dumped by the zkVM
// interpreter: a flat sequence of little-endian u64 program counters, one
// per retired instruction, optionally compressed with zstd or gzip.
package pctrace

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

var ErrTruncatedTrace = errors.New("trace ends with a partial PC word")

const (
	wordSize = 8
	// how often Each looks at the context
	cancelCheckInterval = 1 << 16
)

type Reader struct {
	src    io.Reader
	text   bool
	mapped []byte
	closer func() error
	count  uint64
}

// NewReader reads an uncompressed trace from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: r, closer: func() error { return nil }}
}

// Open picks the decoder from the file extension. ".txt" traces hold one PC
// per line. Uncompressed binary traces are memory mapped since they are
// routinely several gigabytes.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".txt":
		return &Reader{src: f, text: true, closer: f.Close}, nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd trace: %w", err)
		}
		return &Reader{src: dec, closer: func() error {
			dec.Close()
			return f.Close()
		}}, nil
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip trace: %w", err)
		}
		return &Reader{src: zr, closer: func() error {
			return errors.Join(zr.Close(), f.Close())
		}}, nil
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		return &Reader{mapped: []byte{}, closer: f.Close}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		slog.Warn("Failed to mmap trace, falling back to buffered reads", "path", path, "error", err)
		return &Reader{src: f, closer: f.Close}, nil
	}
	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		slog.Debug("madvise failed", "path", path, "error", err)
	}
	return &Reader{mapped: data, closer: func() error {
		return errors.Join(unix.Munmap(data), f.Close())
	}}, nil
}

// Each calls fn for every PC in order. It stops early with the context's
// error when ctx is cancelled; the PCs delivered so far stay valid.
func (r *Reader) Each(ctx context.Context, fn func(pc uint64)) error {
	if r.mapped != nil {
		return r.eachMapped(ctx, fn)
	}
	if r.text {
		return r.eachLine(ctx, fn)
	}

	br := bufio.NewReaderSize(r.src, 1<<16)
	var word [wordSize]byte
	for {
		if r.count%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		_, err := io.ReadFull(br, word[:])
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w after %d PCs", ErrTruncatedTrace, r.count)
		case err != nil:
			return err
		}
		fn(binary.LittleEndian.Uint64(word[:]))
		r.count++
	}
}

func (r *Reader) eachMapped(ctx context.Context, fn func(pc uint64)) error {
	data := r.mapped
	for off := 0; off+wordSize <= len(data); off += wordSize {
		if r.count%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		fn(binary.LittleEndian.Uint64(data[off:]))
		r.count++
	}
	if len(data)%wordSize != 0 {
		return fmt.Errorf("%w after %d PCs", ErrTruncatedTrace, r.count)
	}
	return nil
}

// eachLine reads one PC per line, decimal or 0x-prefixed hex. Blank lines
// and lines starting with '#' are skipped.
func (r *Reader) eachLine(ctx context.Context, fn func(pc uint64)) error {
	s := bufio.NewScanner(r.src)
	lineNo := 0
	for s.Scan() {
		lineNo++
		if r.count%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pc, err := strconv.ParseUint(line, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid PC %q: %w", lineNo, line, err)
		}
		fn(pc)
		r.count++
	}
	return s.Err()
}

// Count is the number of PCs delivered so far.
func (r *Reader) Count() uint64 { return r.count }

func (r *Reader) Close() error {
	return r.closer()
}
