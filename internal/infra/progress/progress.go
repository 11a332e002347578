// Package progress implements the progress reporters handed to plugin
// operations: a line-oriented writer for terminals and a zap-backed variant
// for verbose or scripted runs.
package progress

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// WriterReporter prints labeled progress lines to a writer, typically
// stderr. Safe for concurrent use; script output is streamed from more than
// one goroutine.
type WriterReporter struct {
	mu    sync.Mutex
	w     io.Writer
	label string
}

func NewWriter(w io.Writer, label string) *WriterReporter {
	return &WriterReporter{w: w, label: label}
}

func (r *WriterReporter) SetMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%-20s %s\n", r.label, msg)
}

func (r *WriterReporter) Finish(msg string) {
	if msg == "" {
		return
	}
	r.SetMessage(msg)
}

// ZapReporter routes progress messages through a logger.
type ZapReporter struct {
	logger *zap.Logger
	label  string
}

func NewZap(logger *zap.Logger, label string) *ZapReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapReporter{logger: logger, label: label}
}

func (r *ZapReporter) SetMessage(msg string) {
	r.logger.Info(msg, zap.String("tool", r.label))
}

func (r *ZapReporter) Finish(msg string) {
	if msg == "" {
		msg = "done"
	}
	r.logger.Info(msg, zap.String("tool", r.label))
}
