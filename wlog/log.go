/*
 * MIT License
 *
 * Copyright (c) 2026 nexuskernel contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package wlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal structured-logging surface the rest of the module
// depends on. It is satisfied by *entry below and by any adapter a caller
// wants to inject for tests.
type Logger interface {
	Debug(message string, fields Fields)
	Info(message string, fields Fields)
	Warn(message string, fields Fields)
	Error(message string, fields Fields, err error)
	With(fields Fields) Logger
}

// entry wraps a logrus entry. It is never constructed directly by callers -
// use New or Default.
type entry struct {
	e *logrus.Entry
}

var (
	defaultOnce sync.Once
	defaultLog  *entry
)

// New builds a Logger writing to w at the given level name ("debug", "info",
// "warn", "error"); an unrecognised level defaults to info.
func New(w *os.File, level string) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &entry{e: logrus.NewEntry(l)}
}

// Default returns a process-wide logger writing to stderr at info level,
// lazily constructed on first use - the same "nil receiver is safe" posture
// the teacher's logger package guarantees, so call sites that run before a
// cartel has configured its own logger never need a nil check.
func Default() Logger {
	defaultOnce.Do(func() {
		defaultLog = New(os.Stderr, "info").(*entry)
	})
	return defaultLog
}

// SetDefault replaces the process-wide logger, e.g. once a daemon has read
// its configured level/output from its config file. Only a Logger built by
// New is installed; any other Logger implementation is ignored. Forces the
// lazy-init Once so a later Default() call never clobbers it.
func SetDefault(l Logger) {
	defaultOnce.Do(func() {})
	if e, ok := l.(*entry); ok {
		defaultLog = e
	}
}

func (l *entry) With(fields Fields) Logger {
	if l == nil {
		return Default().With(fields)
	}
	return &entry{e: l.e.WithFields(logrus.Fields(fields))}
}

func (l *entry) Debug(message string, fields Fields) {
	if l == nil {
		return
	}
	l.e.WithFields(logrus.Fields(fields)).Debug(message)
}

func (l *entry) Info(message string, fields Fields) {
	if l == nil {
		return
	}
	l.e.WithFields(logrus.Fields(fields)).Info(message)
}

func (l *entry) Warn(message string, fields Fields) {
	if l == nil {
		return
	}
	l.e.WithFields(logrus.Fields(fields)).Warn(message)
}

func (l *entry) Error(message string, fields Fields, err error) {
	if l == nil {
		return
	}
	if err != nil {
		fields = fields.With(Fields{"error": err.Error()})
	}
	l.e.WithFields(logrus.Fields(fields)).Error(message)
}
