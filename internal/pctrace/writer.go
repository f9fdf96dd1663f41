package pctrace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Writer produces traces in the format Open reads back.
type Writer struct {
	bw     *bufio.Writer
	closer func() error
	word   [wordSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w), closer: func() error { return nil }}
}

func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".zst", ".zstd":
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &Writer{bw: bufio.NewWriter(enc), closer: func() error {
			return errors.Join(enc.Close(), f.Close())
		}}, nil
	case ".gz":
		zw := gzip.NewWriter(f)
		return &Writer{bw: bufio.NewWriter(zw), closer: func() error {
			return errors.Join(zw.Close(), f.Close())
		}}, nil
	}
	return &Writer{bw: bufio.NewWriter(f), closer: f.Close}, nil
}

func (w *Writer) Write(pc uint64) error {
	binary.LittleEndian.PutUint64(w.word[:], pc)
	_, err := w.bw.Write(w.word[:])
	return err
}

func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.closer()
		return err
	}
	return w.closer()
}
