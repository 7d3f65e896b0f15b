package fabric

import (
	"context"
	"sync"

	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
)

type logEntry struct {
	level string
	msg   string
	err   error
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) record(level, msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg, err: err})
}

func (r *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return r }
func (r *recordingLogger) Debug(msg string, _ loggingpkg.LogFields)           { r.record("debug", msg, nil) }
func (r *recordingLogger) Info(msg string, _ loggingpkg.LogFields)            { r.record("info", msg, nil) }
func (r *recordingLogger) Trace(msg string, _ loggingpkg.LogFields)           { r.record("trace", msg, nil) }
func (r *recordingLogger) Error(msg string, err error, _ loggingpkg.LogFields) {
	r.record("error", msg, err)
}

func (r *recordingLogger) errors() []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range r.entries {
		if e.level == "error" {
			out = append(out, e)
		}
	}
	return out
}

// collector is a pointer sink that records everything it receives.
type collector[M any] struct {
	mu   sync.Mutex
	msgs []M
	name string
}

func (c *collector[M]) Post(msg M) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector[M]) PostAsync(_ context.Context, msg M) error {
	return c.Post(msg)
}

func (c *collector[M]) received() []M {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]M(nil), c.msgs...)
}
