// Package jlsreader implements the reader half of the JLS container
// format: the initial structural scan, source/signal enumeration,
// hierarchical FSR seek/range-read, user-data iteration, and annotation
// enumeration.
package jlsreader

import (
	"fmt"

	"github.com/go-kit/log"
	"go.uber.org/atomic"

	"github.com/jls-format/jls/internal/format"
	"github.com/jls-format/jls/internal/raw"
)

// Options configures optional ambient behavior. The zero Options value
// is a usable default: a no-op logger.
type Options struct {
	Logger log.Logger
}

// Reader is a single open JLS file being read. It is not safe for
// concurrent use from multiple goroutines, matching the format's
// single-reader-instance-at-a-time concurrency model; independent
// Reader instances over the same unmodified file are safe.
type Reader struct {
	raw    *raw.File
	logger log.Logger
	closed atomic.Bool
	arena  *stringArena

	userDataCursor userDataCursor

	userDataHead int64
	sourceHead   int64
	signalHead   int64

	sources [format.SourceCount]*Source
	signals [format.SignalCount]*signalState
}

// Open memory-maps path, validates the file header, then performs the
// initial structural scan (locating the user-data/source/signal list
// heads) and walks the source and signal lists to completion.
func Open(path string, opts Options) (*Reader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	rf, err := raw.Open(path, raw.ModeRead)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		raw:    rf,
		logger: logger,
		arena:  newStringArena(),
	}
	if err := r.initialScan(); err != nil {
		rf.Close()
		return nil, fmt.Errorf("initial scan: %w", err)
	}
	if err := r.scanSources(); err != nil {
		rf.Close()
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	if err := r.scanSignals(); err != nil {
		rf.Close()
		return nil, fmt.Errorf("scan signals: %w", err)
	}
	return r, nil
}

// FileID returns the ULID stamped into the file header at creation time.
func (r *Reader) FileID() (string, error) {
	id, err := r.raw.FileID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Close releases the memory mapping. Close is idempotent.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.raw.Close()
}

// Sources returns every defined source, ordered by source_id.
func (r *Reader) Sources() []Source {
	var out []Source
	for _, s := range r.sources {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Signals returns every defined signal, ordered by signal_id.
func (r *Reader) Signals() []Signal {
	var out []Signal
	for _, ss := range r.signals {
		if ss != nil {
			out = append(out, ss.signal)
		}
	}
	return out
}
