// Package testutil holds helpers shared by progchain tests.
package testutil

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

// NewTestLogger returns a debug-level logger that writes through t.Log,
// so output shows only for failing tests or under -v. Every record
// carries the test name.
//
// Nodes and servers keep logging from their own goroutines while a
// test's cleanups run; records written after the test finished are
// discarded instead of tripping the testing package.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return NewTestLoggerAt(t, slog.LevelDebug)
}

// NewTestLoggerAt is NewTestLogger with a minimum level.
func NewTestLoggerAt(t testing.TB, level slog.Leveler) *slog.Logger {
	t.Helper()
	w := &testWriter{t: t}
	t.Cleanup(func() { w.done.Store(true) })
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("test", t.Name())
}

type testWriter struct {
	t    testing.TB
	done atomic.Bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	if w.done.Load() {
		return len(p), nil
	}
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
