package audit

import "sync"

// DefaultLogCapacity is the number of records a Log retains when no capacity
// is given.
const DefaultLogCapacity = 1000

// Log is a bounded, thread-safe ring of the most recent transition records.
// When full, the oldest record is overwritten. It is a cache for display and
// forensics; the Sink holds the full history.
type Log struct {
	mu       sync.Mutex
	records  []TransitionRecord
	head     int // next write position
	count    int
	capacity int

	dropped int64
}

// NewLog creates a Log with the given capacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{
		records:  make([]TransitionRecord, capacity),
		capacity: capacity,
	}
}

// Append adds a record, overwriting the oldest if necessary.
func (l *Log) Append(record TransitionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count >= l.capacity {
		l.dropped++
	} else {
		l.count++
	}
	l.records[l.head] = record
	l.head = (l.head + 1) % l.capacity
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything retained.
func (l *Log) Recent(limit int) []TransitionRecord {
	return l.collect(limit, func(TransitionRecord) bool { return true })
}

// ForEntity returns up to limit records for one entity, newest first.
func (l *Log) ForEntity(entityID string, limit int) []TransitionRecord {
	return l.collect(limit, func(r TransitionRecord) bool { return r.EntityID == entityID })
}

func (l *Log) collect(limit int, keep func(TransitionRecord) bool) []TransitionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	out := make([]TransitionRecord, 0, limit)
	for i := 1; i <= l.count && len(out) < limit; i++ {
		r := l.records[(l.head-i+l.capacity)%l.capacity]
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped returns how many records have been overwritten.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
