// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"log"
	"os"

	"github.com/cockroachdb/redact"
)

// Logger logs informational and fatal messages to the info log.
type Logger interface {
	Infof(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger writes to the standard library log package with no
// redaction; it is suitable for tests and callers who supply their own
// Options.Logger.
var DefaultLogger Logger = defaultLogger{}

type defaultLogger struct{}

func (defaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

func (defaultLogger) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// RedactingLogger writes to an *os.File (typically the store's LOG file),
// passing every formatted message through redact.Sprintf first so that raw
// user key/value bytes embedded in %q/%s verbs are replaced with a redaction
// marker rather than landing in a file that may be bundled into support
// diagnostics.
type RedactingLogger struct {
	w *os.File
}

// NewRedactingLogger wraps w.
func NewRedactingLogger(w *os.File) *RedactingLogger {
	return &RedactingLogger{w: w}
}

func (l *RedactingLogger) Infof(format string, args ...interface{}) {
	redacted := redact.Sprintf(format, args...)
	fmt.Fprintln(l.w, redacted.Redact())
}

func (l *RedactingLogger) Fatalf(format string, args ...interface{}) {
	redacted := redact.Sprintf(format, args...)
	fmt.Fprintln(l.w, redacted.Redact())
	os.Exit(1)
}
