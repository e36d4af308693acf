package wav

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

// ErrIO marks failures writing or finalizing the output file
var ErrIO = errors.New("wav writer i/o error")

const queueDepth = 256

// Options configures a Writer
type Options struct {
	// OnError is called once, from the writer goroutine, on the first failed append.
	OnError func(error)
	Logger  *zap.Logger
}

// Writer streams PCM bytes into a WAV file whose header is patched on Finalize.
// Appends are applied strictly in call order by a single goroutine.
type Writer struct {
	format models.WavFormat
	file   *os.File
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}

	written  atomic.Int64
	errMu    sync.Mutex
	err      error
	finalize sync.Once
	finalErr error
}

// Create opens path, writes a placeholder header and starts the append queue.
func Create(path string, format models.WavFormat, opts Options) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wav format: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", ErrIO, path, err)
	}

	if _, err := f.WriteAt(EncodeHeader(format, 0), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: failed to write header: %w", ErrIO, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Writer{
		format: format,
		file:   f,
		opts:   opts,
		logger: logger.With(zap.String("path", path)),
		queue:  make(chan []byte, queueDepth),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Append queues a copy of chunk for writing. It is a no-op after Finalize.
func (w *Writer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	w.queue <- buf
}

func (w *Writer) run() {
	defer close(w.done)
	for chunk := range w.queue {
		if w.Err() != nil {
			continue
		}
		offset := HeaderSize + w.written.Load()
		n, err := w.file.WriteAt(chunk, offset)
		w.written.Add(int64(n))
		if err != nil {
			w.fail(fmt.Errorf("%w: write at offset %d: %w", ErrIO, offset, err))
		}
	}
}

func (w *Writer) fail(err error) {
	w.errMu.Lock()
	first := w.err == nil
	if first {
		w.err = err
	}
	w.errMu.Unlock()

	if !first {
		return
	}
	w.logger.Error("wav append failed", zap.Error(err))
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}

// Err returns the first append error, if any
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Finalize waits for queued appends, rewrites the header with the real sizes
// and closes the file. Later calls return the first call's result.
func (w *Writer) Finalize() error {
	w.finalize.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()

		<-w.done

		var errs []error
		if err := w.Err(); err != nil {
			errs = append(errs, err)
		}
		written := w.written.Load()
		if _, err := w.file.WriteAt(EncodeHeader(w.format, written), 0); err != nil {
			errs = append(errs, fmt.Errorf("%w: failed to rewrite header: %w", ErrIO, err))
		}
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: failed to close: %w", ErrIO, err))
		}
		w.finalErr = errors.Join(errs...)
		w.logger.Debug("wav finalized", zap.Int64("bytes", written))
	})
	return w.finalErr
}

// BytesWritten returns the number of PCM bytes written so far
func (w *Writer) BytesWritten() int64 {
	return w.written.Load()
}
