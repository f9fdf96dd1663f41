package exporter

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type outputFile struct {
	f  *os.File
	bw *bufio.Writer
	gz *gzip.Writer
	w  io.Writer
}

// CreateOutput opens path for writing, gzip-compressing the stream when the
// name ends in ".gz". The Firefox Profiler loads both forms.
func CreateOutput(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	o := &outputFile{f: f, bw: bufio.NewWriterSize(f, 1<<20)}
	o.w = o.bw
	if strings.HasSuffix(path, ".gz") {
		o.gz = gzip.NewWriter(o.bw)
		o.w = o.gz
	}
	return o, nil
}

func (o *outputFile) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *outputFile) Close() error {
	var errs []error
	if o.gz != nil {
		errs = append(errs, o.gz.Close())
	}
	errs = append(errs, o.bw.Flush(), o.f.Close())
	return errors.Join(errs...)
}
