// Package runlog provides the logger scoped to one sync run. Everything logged
// at info level or above is also buffered and handed to a Sink exactly once
// when the run ends.
package runlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is one buffered log line.
type Entry struct {
	Time    time.Time
	Message string
}

// Sink receives a run's buffered entries.
type Sink interface {
	Append(ctx context.Context, entries []Entry) error
}

// Options configure a run logger.
type Options struct {
	Level string
	// File, if set, receives a copy of the output through a rotating writer.
	File string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// Logger is a logrus logger plus the buffer destined for the Sink.
type Logger struct {
	*logrus.Logger

	buf     *bufferHook
	file    *lumberjack.Logger
	once    sync.Once
	flushed error
}

// New builds a run logger.
func New(opts Options) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	l.SetLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	rl := &Logger{Logger: l, buf: &bufferHook{}}
	if opts.File != "" {
		rl.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     30,
		}
		out = io.MultiWriter(out, rl.file)
	}
	l.SetOutput(out)
	l.AddHook(rl.buf)
	return rl, nil
}

// Flush hands the buffered entries to sink. Only the first call does any
// work; later calls return the first call's result. A nil sink just closes
// the log file.
func (l *Logger) Flush(ctx context.Context, sink Sink) error {
	l.once.Do(func() {
		if sink != nil {
			if entries := l.buf.snapshot(); len(entries) > 0 {
				l.flushed = sink.Append(ctx, entries)
			}
		}
		if l.file != nil {
			if err := l.file.Close(); err != nil && l.flushed == nil {
				l.flushed = err
			}
		}
	})
	return l.flushed
}

type bufferHook struct {
	mu      sync.Mutex
	entries []Entry
}

func (h *bufferHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (h *bufferHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Entry{Time: e.Time, Message: formatMessage(e)})
	return nil
}

func (h *bufferHook) snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// formatMessage renders the message with its fields sorted by key, e.g.
// `created event summary="CS: Essay"`.
func formatMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, fmt.Sprint(e.Data[k]))
	}
	return b.String()
}
