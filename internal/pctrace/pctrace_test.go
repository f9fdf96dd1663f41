package pctrace

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r *Reader) ([]uint64, error) {
	t.Helper()
	var pcs []uint64
	err := r.Each(context.Background(), func(pc uint64) { pcs = append(pcs, pc) })
	return pcs, err
}

func TestRoundTrip(t *testing.T) {
	want := []uint64{0x200000, 0x200004, 0x200008, 0x2000f0, 0xffffffffffff0000}

	for _, name := range []string{"trace.bin", "trace.bin.zst", "trace.bin.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			w, err := Create(path)
			require.NoError(t, err)
			for _, pc := range want {
				require.NoError(t, w.Write(pc))
			}
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			got, err := collect(t, r)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, uint64(len(want)), r.Count())
		})
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := collect(t, r)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTruncatedTrace(t *testing.T) {
	raw := make([]byte, 8*2+3)
	binary.LittleEndian.PutUint64(raw[0:], 100)
	binary.LittleEndian.PutUint64(raw[8:], 104)

	t.Run("mapped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "trace.bin")
		require.NoError(t, os.WriteFile(path, raw, 0o644))
		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		got, err := collect(t, r)
		require.ErrorIs(t, err, ErrTruncatedTrace)
		assert.Equal(t, []uint64{100, 104}, got)
	})

	t.Run("stream", func(t *testing.T) {
		got, err := collect(t, NewReader(bytes.NewReader(raw)))
		require.ErrorIs(t, err, ErrTruncatedTrace)
		assert.Equal(t, []uint64{100, 104}, got)
	})
}

func TestEach_StopsOnCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for pc := uint64(0); pc < 10; pc++ {
		require.NoError(t, w.Write(pc))
	}
	require.NoError(t, w.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(&buf)
	err := r.Each(ctx, func(uint64) {})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), r.Count())
}

func TestOpen_TextTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.txt")
	content := "# pcs from a debug run\n0x100\n  260\n\n0X12c\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := collect(t, r)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x100, 260, 0x12c}, got)
}

func TestOpen_TextTraceInvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.txt")
	require.NoError(t, os.WriteFile(path, []byte("0x100\nbogus\n"), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := collect(t, r)
	require.ErrorContains(t, err, "line 2")
	assert.Equal(t, []uint64{0x100}, got)
}
