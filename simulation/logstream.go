package simulation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Level classifies a log entry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarn    Level = "WARN"
	LevelError   Level = "ERROR"
)

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarn, LevelError:
		return true
	}
	return false
}

// DisplayTimeFormat is the wall-clock format shown next to each entry.
const DisplayTimeFormat = "15:04:05"

// Entry is one immutable log line.
type Entry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Time      string    `json:"time"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// IDGenerator hands out log entry ids. Implementations must never return
// the same id twice.
type IDGenerator interface {
	NextID() uint64
}

// Sequence is an IDGenerator counting up from 1.
type Sequence struct {
	n atomic.Uint64
}

// NextID returns the next id in the sequence.
func (s *Sequence) NextID() uint64 {
	return s.n.Add(1)
}

// LogStream is an append-only, insertion-ordered list of entries. When a cap
// is set the oldest entries are dropped once it is exceeded; entries are
// never edited.
type LogStream struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
	ids     IDGenerator
	clock   Clock
}

// NewLogStream creates a stream. limit <= 0 means unbounded. A nil ids gets
// a fresh Sequence; a nil clock uses RealClock.
func NewLogStream(limit int, ids IDGenerator, clock Clock) *LogStream {
	if ids == nil {
		ids = &Sequence{}
	}
	if clock == nil {
		clock = RealClock()
	}
	return &LogStream{limit: limit, ids: ids, clock: clock}
}

// Append records a new entry and returns it. The id and timestamp are
// taken under the lock so insertion order matches id order.
func (l *LogStream) Append(level Level, message string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry := Entry{
		ID:        l.ids.NextID(),
		Timestamp: now,
		Time:      now.Format(DisplayTimeFormat),
		Level:     level,
		Message:   message,
	}

	l.entries = append(l.entries, entry)
	if l.limit > 0 && len(l.entries) > l.limit {
		drop := len(l.entries) - l.limit
		l.entries = append(l.entries[:0:0], l.entries[drop:]...)
	}
	return entry
}

// Clear empties the stream. Ids keep increasing afterwards.
func (l *LogStream) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a copy of every retained entry, oldest first.
func (l *LogStream) Entries() []Entry {
	return l.Recent(0)
}

// Recent returns the m newest entries, oldest first. m <= 0 returns all.
func (l *LogStream) Recent(m int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if m > 0 && m < len(l.entries) {
		start = len(l.entries) - m
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len returns the number of retained entries.
func (l *LogStream) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
