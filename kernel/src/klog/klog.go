// Package klog is the core's ambient logging subsystem (§3 Ambient stack).
// It wraps a logrus.Logger — the same logging library the retrieval pack's
// gvisor example depends on — whose writer starts out as a circbuf-backed
// ring buffer and is later swapped for the UART console sink once the
// driver registry has probed and attached one.
package klog

import (
	"sync"

	"github.com/sirupsen/logrus"

	"circbuf"
)

const earlyBufSize = 4096

var (
	mu      sync.Mutex
	early   circbuf.Circbuf_t
	earlyB  [earlyBufSize]uint8
	logger  = logrus.New()
	started bool
)

func init() {
	early.Init(earlyB[:])
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: false})
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(&early)
}

// Attach switches the logger's output to w (the UART console sink) and
// replays whatever boot messages were buffered before the console existed.
// It is idempotent; calling it twice is a no-op after the first call.
func Attach(w logrusWriter) {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return
	}
	started = true
	early.Drain(func(b []uint8) { w.Write(b) })
	logger.SetOutput(w)
}

// logrusWriter is the minimal sink the console driver must implement; kept
// distinct from io.Writer so callers don't need to import "io" just to call
// Attach.
type logrusWriter interface {
	Write(p []byte) (int, error)
}

// Infof logs a milestone message (subsystem init succeeded, a mapping was
// installed, a domain came up).
func Infof(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Infof(format, args...)
}

// Warnf logs a recoverable condition (oversize DTB, fallback chunk size).
func Warnf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Warnf(format, args...)
}

// Errorf logs immediately before a panic (§7: panic error mode).
func Errorf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Errorf(format, args...)
}
