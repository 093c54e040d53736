package feed

import (
	"bufio"
	"context"
	"os"
	"sync"

	"tradebot/internal/model"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Recorder appends every quote that passes through it to a JSON-lines
// file, one quote per line. Wrap the live Source with it to capture a
// session for later replay.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// NewRecorder opens (or creates) the capture file for appending.
func NewRecorder(path string) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open quote capture file").With("path", path)
	}
	return &Recorder{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Append writes one quote to the capture file.
func (r *Recorder) Append(q model.Quote) error {
	line, err := sonic.ConfigFastest.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "encode quote")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.buf.Write(line); err != nil {
		return errors.Wrap(err, "write quote")
	}
	if err := r.buf.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write quote")
	}
	return nil
}

// Close flushes buffered quotes and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buf.Flush(); err != nil {
		_ = r.file.Close()
		return errors.Wrap(err, "flush quote capture")
	}
	return r.file.Close()
}

// Wrap decorates a Source so every successful fetch is captured. A
// failed append never fails the fetch; the quote still reaches the
// trading loop.
func (r *Recorder) Wrap(src Source) Source {
	return SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		quote, err := src.Ticker(ctx, symbol)
		if err != nil {
			return quote, err
		}
		if err := r.Append(quote); err != nil {
			logs.Errorf("quote capture failed: %+v", err)
		}
		return quote, nil
	})
}
