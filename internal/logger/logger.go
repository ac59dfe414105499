// Package logger implements a non-blocking, leveled logger with metadata
// redaction and an optional external sink.
//
// Log entries are written to an internal buffered channel and flushed by a
// background goroutine — so logging never blocks the request hot path. The
// stdout path (via slog) always emits synchronously; the external sink, if
// configured, is fire-and-forget. If the channel fills up (> 10 000
// entries), new entries are dropped and counted in DroppedLogs.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const channelBuffer = 10_000

// Level mirrors slog's leveling without requiring callers to import slog.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Entry is one log event: a level, a component name, a human message, and
// arbitrary structured metadata.
type Entry struct {
	Level     Level
	Component string
	Message   string
	Metadata  map[string]any
	Time      time.Time
}

// Sink receives entries asynchronously, one at a time, off the hot path.
// Implementations should not block indefinitely — a slow sink only delays
// its own goroutine, never the caller of Log.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Logger is the gateway's leveled logger. Every call to log(level,
// component, message, metadata) emits synchronously to stdout (via slog)
// and, if a Sink is configured, asynchronously to that sink.
type Logger struct {
	stdout *slog.Logger

	sink      Sink
	ch        chan Entry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedLogs int64

	baseCtx context.Context
}

// New builds a Logger writing JSON lines to stdout. If sink is non-nil, it
// also receives every entry through a buffered async channel.
func New(ctx context.Context, sink Sink) (*Logger, error) {
	if ctx == nil {
		return nil, fmt.Errorf("logger: context must not be nil")
	}

	l := &Logger{
		stdout:  slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})),
		sink:    sink,
		baseCtx: ctx,
	}

	if sink != nil {
		l.ch = make(chan Entry, channelBuffer)
		l.done = make(chan struct{})
		l.wg.Add(1)
		go l.run()
	}

	return l, nil
}

// Log is the contract every call site uses: a level, the emitting
// component's name, a message, and structured metadata. Metadata keys whose
// name contains "apikey" (case-insensitive) are redacted before either the
// stdout or sink path sees them.
func (l *Logger) Log(level Level, component, message string, metadata map[string]any) {
	safe := redact(metadata)

	attrs := make([]any, 0, len(safe)*2+2)
	attrs = append(attrs, slog.String("component", component))
	for k, v := range safe {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.stdout.Log(l.baseCtx, level.slogLevel(), message, attrs...)

	if l.sink == nil {
		return
	}

	entry := Entry{Level: level, Component: component, Message: message, Metadata: safe, Time: time.Now().UTC()}
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.droppedLogs, 1)
	}
}

func (l *Logger) Debug(component, message string, metadata map[string]any) {
	l.Log(LevelDebug, component, message, metadata)
}

func (l *Logger) Info(component, message string, metadata map[string]any) {
	l.Log(LevelInfo, component, message, metadata)
}

func (l *Logger) Warn(component, message string, metadata map[string]any) {
	l.Log(LevelWarn, component, message, metadata)
}

func (l *Logger) Error(component, message string, metadata map[string]any) {
	l.Log(LevelError, component, message, metadata)
}

// DroppedLogs reports entries dropped because the sink channel was full.
func (l *Logger) DroppedLogs() int64 {
	return atomic.LoadInt64(&l.droppedLogs)
}

// Close drains any buffered entries to the sink and stops the background
// goroutine. Safe to call multiple times.
func (l *Logger) Close() error {
	if l.sink == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.ch:
			if err := l.sink.Write(l.baseCtx, entry); err != nil {
				l.stdout.Warn("log sink write failed", slog.String("error", err.Error()))
			}

		case <-l.done:
			for {
				select {
				case entry := <-l.ch:
					_ = l.sink.Write(l.baseCtx, entry)
				default:
					return
				}
			}
		}
	}
}

// redact returns a copy of metadata with any value whose key contains
// "apikey" (case-insensitive) replaced by a fixed placeholder.
func redact(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if strings.Contains(strings.ToLower(k), "apikey") {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
