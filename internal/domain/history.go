package domain

import (
	"container/ring"
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds the history log
const DefaultHistoryCapacity = 1000

// HistoryRecord is a stored copy of a detection
type HistoryRecord struct {
	Detection
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryLog is a bounded, thread-safe FIFO of past detections.
// Once full, each Add overwrites the oldest record.
type HistoryLog struct {
	mu       sync.RWMutex
	records  *ring.Ring
	capacity int
	count    int
}

// NewHistoryLog creates a log holding at most capacity records
func NewHistoryLog(capacity int) *HistoryLog {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryLog{
		records:  ring.New(capacity),
		capacity: capacity,
	}
}

// Add stores a copy of the detection and returns the stored record
func (h *HistoryLog) Add(det Detection) HistoryRecord {
	rec := HistoryRecord{Detection: det, RecordedAt: time.Now()}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records.Value = rec
	h.records = h.records.Next()
	if h.count < h.capacity {
		h.count++
	}
	return rec
}

// Snapshot returns all records, oldest first
func (h *HistoryLog) Snapshot() []HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HistoryRecord, 0, h.count)
	h.records.Do(func(value any) {
		if rec, ok := value.(HistoryRecord); ok {
			out = append(out, rec)
		}
	})
	return out
}

// Filter returns records at or above min, oldest first
func (h *HistoryLog) Filter(min Severity) []HistoryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []HistoryRecord
	h.records.Do(func(value any) {
		if rec, ok := value.(HistoryRecord); ok && rec.Verdict.Severity.AtLeast(min) {
			out = append(out, rec)
		}
	})
	return out
}

// Get looks a record up by detection id
func (h *HistoryLog) Get(id string) (HistoryRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		found HistoryRecord
		ok    bool
	)
	h.records.Do(func(value any) {
		if rec, isRec := value.(HistoryRecord); isRec && rec.ID == id {
			found, ok = rec, true
		}
	})
	return found, ok
}

// Len returns the number of stored records
func (h *HistoryLog) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Capacity returns the configured bound
func (h *HistoryLog) Capacity() int {
	return h.capacity
}

// Clear drops every record
func (h *HistoryLog) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < h.capacity; i++ {
		h.records.Value = nil
		h.records = h.records.Next()
	}
	h.count = 0
}
