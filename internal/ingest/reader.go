package ingest

// reader.go opens the compressed input source as a streaming byte reader.
//
// The decompressor is chosen from the file extension (.gz, .zst, else
// plain). A counting wrapper sits below the decompressor so progress can
// be reported against the on-disk size regardless of compression ratio,
// and a BOM check strips the UTF-8 byte order mark Windows exports like
// to prepend.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const bomSize = 3

// CountingReader wraps an io.Reader and tracks bytes read. Total is the
// known input size, or 0 when unknown.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns read progress as a percentage, or 0 when the total
// size is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// Input is an open, decompressed input source. Counter reports progress
// over the compressed on-disk bytes.
type Input struct {
	Reader  io.Reader
	Counter *CountingReader

	closers []io.Closer
}

// Close releases the decompressor and the underlying file.
func (in *Input) Close() error {
	var firstErr error
	for _, c := range in.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenInput opens path for streaming ingestion, layering decompression
// and BOM skipping over a counting reader.
func OpenInput(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}

	in := &Input{
		Counter: NewCountingReader(f, total),
		closers: []io.Closer{f},
	}

	var r io.Reader
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(in.Counter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip input: %w", err)
		}
		in.closers = append([]io.Closer{zr}, in.closers...)
		r = zr
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(in.Counter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd input: %w", err)
		}
		rc := zr.IOReadCloser()
		in.closers = append([]io.Closer{rc}, in.closers...)
		r = rc
	default:
		r = in.Counter
	}

	in.Reader = skipBOM(r)
	return in, nil
}

// skipBOM strips a leading UTF-8 byte order mark if present.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	lead, err := br.Peek(bomSize)
	if err == nil && lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF {
		br.Discard(bomSize)
	}
	return br
}
