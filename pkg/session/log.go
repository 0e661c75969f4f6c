package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Severity tags where a log event came from.
type Severity int

const (
	SeverityInfo   Severity = iota
	SeverityStdout          // success
	SeverityStderr          // error
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityStdout:
		return "stdout"
	case SeverityStderr:
		return "stderr"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// LogEvent is one entry of a session log. Seq is the append position.
type LogEvent struct {
	Seq      int
	Time     time.Time
	Text     string
	Severity Severity
}

// Log is an append-only, ordered event sink. Appends never block on
// readers; readers learn about new events through Changed or Wait.
type Log struct {
	mu      sync.Mutex
	events  []LogEvent
	changed chan struct{}
	now     func() time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Append records text with the given severity and wakes every waiter.
func (l *Log) Append(severity Severity, text string) LogEvent {
	l.mu.Lock()
	ev := LogEvent{
		Seq:      len(l.events),
		Time:     l.now(),
		Text:     text,
		Severity: severity,
	}
	l.events = append(l.events, ev)
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
	return ev
}

// Infof appends a formatted info event.
func (l *Log) Infof(format string, args ...interface{}) LogEvent {
	return l.Append(SeverityInfo, fmt.Sprintf(format, args...))
}

// Len returns the number of events appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Events returns a copy of the events with Seq >= from.
func (l *Log) Events(from int) []LogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from >= len(l.events) {
		return nil
	}
	out := make([]LogEvent, len(l.events)-from)
	copy(out, l.events[from:])
	return out
}

// Changed returns a channel that is closed by the next Append.
func (l *Log) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Wait blocks until the log holds events with Seq >= from and returns them,
// or returns ctx.Err().
func (l *Log) Wait(ctx context.Context, from int) ([]LogEvent, error) {
	for {
		l.mu.Lock()
		if from < len(l.events) {
			l.mu.Unlock()
			return l.Events(from), nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
