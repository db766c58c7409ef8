// Package logging provides the run-wide tee log used by antonie: every line
// written during a run goes both to a live sink (normally stderr) and to an
// in-memory buffer, because the final data.js output embeds the full run log
// verbatim as the antonieLog string (spec §9, "Global logging").
package logging

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Log is a tee logger: writes are duplicated to Sink and to an internal
// buffer retrievable with String.
type Log struct {
	mu   sync.Mutex
	Sink io.Writer
	buf  bytes.Buffer
}

// New returns a Log that also writes to sink. A nil sink discards live
// output while still retaining the in-memory copy.
func New(sink io.Writer) *Log {
	return &Log{Sink: sink}
}

// Printf formats and records a line, appending a trailing newline if absent.
func (l *Log) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(msg)
	if l.Sink != nil {
		io.WriteString(l.Sink, msg)
	}
}

// Println records a line built from args, space-separated.
func (l *Log) Println(args ...interface{}) {
	l.Printf("%s", fmt.Sprintln(args...))
}

// String returns the full accumulated log text.
func (l *Log) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// JSEscaped returns the accumulated log with newlines replaced by the
// literal two-character sequence \n, matching the original program's
// replace_all(log, "\n", "\\n") before embedding it in a JS string literal.
func (l *Log) JSEscaped() string {
	s := l.String()
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\"", `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
