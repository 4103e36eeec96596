// Package diag captures access-decision diagnostics without ever getting in
// the way of request handling. Records are queued on a buffered channel and
// written by a single background goroutine; a full queue drops the record and
// a failed insert is logged server-side only.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sivanadi/AstroCalc/internal/model"
)

const (
	defaultBuffer = 256
	insertTimeout = 5 * time.Second
)

// Sink is the interface the recorder needs from the store.
type Sink interface {
	InsertDiagnostic(ctx context.Context, rec *model.DiagnosticRecord) error
}

// Recorder is an asynchronous, fail-silent diagnostic writer.
type Recorder struct {
	sink    Sink
	log     *slog.Logger
	ch      chan *model.DiagnosticRecord
	enabled atomic.Bool
	pending sync.WaitGroup

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// New creates a Recorder. Capture starts enabled; runtime toggling is exposed
// through the admin diagnostics endpoints.
func New(sink Sink, log *slog.Logger) *Recorder {
	r := &Recorder{
		sink: sink,
		log:  log,
		ch:   make(chan *model.DiagnosticRecord, defaultBuffer),
	}
	r.enabled.Store(true)
	return r
}

// Start begins the background drain loop. Non-blocking.
func (r *Recorder) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.done.Add(1)
	go func() {
		defer r.done.Done()
		for {
			select {
			case rec := <-r.ch:
				r.write(rec)
			case <-ctx.Done():
				// Drain whatever is already queued before exiting.
				for {
					select {
					case rec := <-r.ch:
						r.write(rec)
					default:
						return
					}
				}
			}
		}
	}()
}

// Shutdown waits for queued records to be written and stops the loop.
func (r *Recorder) Shutdown() {
	r.pending.Wait()
	if r.cancel != nil {
		r.cancel()
	}
	r.done.Wait()
}

// Record queues a diagnostic entry. It never blocks and never returns an
// error: when capture is off or the queue is full the record is dropped.
func (r *Recorder) Record(rec *model.DiagnosticRecord) {
	if rec == nil || !r.enabled.Load() {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	r.pending.Add(1)
	select {
	case r.ch <- rec:
	default:
		r.pending.Done()
		r.log.Warn("diagnostic queue full, record dropped", "path", rec.Path)
	}
}

// Flush blocks until every record accepted so far has been written.
func (r *Recorder) Flush() {
	r.pending.Wait()
}

// Enabled reports whether capture is currently on.
func (r *Recorder) Enabled() bool { return r.enabled.Load() }

// SetEnabled toggles capture at runtime and reports the new state.
func (r *Recorder) SetEnabled(on bool) bool {
	r.enabled.Store(on)
	return on
}

func (r *Recorder) write(rec *model.DiagnosticRecord) {
	defer r.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := r.sink.InsertDiagnostic(ctx, rec); err != nil {
		r.log.Error("diagnostic insert failed", "error", err, "path", rec.Path)
	}
}
