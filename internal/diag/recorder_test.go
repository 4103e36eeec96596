package diag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sivanadi/AstroCalc/internal/model"
)

type captureSink struct {
	mu   sync.Mutex
	recs []*model.DiagnosticRecord
	err  error
}

func (c *captureSink) InsertDiagnostic(_ context.Context, rec *model.DiagnosticRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.recs = append(c.recs, rec)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func newTestRecorder(t *testing.T, sink Sink) *Recorder {
	t.Helper()
	r := New(sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Start()
	t.Cleanup(r.Shutdown)
	return r
}

func TestRecorderWritesQueuedRecords(t *testing.T) {
	sink := &captureSink{}
	r := newTestRecorder(t, sink)

	for i := 0; i < 10; i++ {
		r.Record(&model.DiagnosticRecord{Path: "/chart", Outcome: model.OutcomeAllowed})
	}
	r.Flush()

	if got := sink.count(); got != 10 {
		t.Errorf("wrote %d records, want 10", got)
	}
	if sink.recs[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in when missing")
	}
}

func TestRecorderDisabledDrops(t *testing.T) {
	sink := &captureSink{}
	r := newTestRecorder(t, sink)

	r.SetEnabled(false)
	r.Record(&model.DiagnosticRecord{Path: "/chart"})
	r.Flush()
	if sink.count() != 0 {
		t.Error("disabled recorder must not write")
	}

	r.SetEnabled(true)
	r.Record(&model.DiagnosticRecord{Path: "/chart"})
	r.Flush()
	if sink.count() != 1 {
		t.Error("re-enabled recorder must write again")
	}
}

func TestRecorderInsertFailureIsSilent(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	r := newTestRecorder(t, sink)

	// Must not panic, block, or surface the error.
	r.Record(&model.DiagnosticRecord{Path: "/chart"})
	r.Flush()
}

func TestRecorderShutdownDrains(t *testing.T) {
	sink := &captureSink{}
	r := New(sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Start()

	for i := 0; i < 25; i++ {
		r.Record(&model.DiagnosticRecord{Path: "/chart"})
	}
	r.Shutdown()

	if got := sink.count(); got != 25 {
		t.Errorf("shutdown flushed %d records, want 25", got)
	}
}
