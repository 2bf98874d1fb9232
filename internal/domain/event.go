package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind identifies the activity a ThreatEvent describes
type EventKind int

const (
	KindFileCreate EventKind = iota
	KindProcessOpen
	KindFileWrite
	KindMemoryRead
	KindMemoryWrite
	KindFileMetadataSet
	KindSectionCreate
	KindRootkitSignal
)

var eventKindNames = map[EventKind]string{
	KindFileCreate:      "file_create",
	KindProcessOpen:     "process_open",
	KindFileWrite:       "file_write",
	KindMemoryRead:      "memory_read",
	KindMemoryWrite:     "memory_write",
	KindFileMetadataSet: "file_metadata_set",
	KindSectionCreate:   "section_create",
	KindRootkitSignal:   "rootkit_signal",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseEventKind accepts the wire names used by sensor feeds
func ParseEventKind(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range eventKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ThreatEvent is one observed activity unit reported by a sensor or a sweep.
// Values are copied, never mutated after construction.
type ThreatEvent struct {
	ProcessID     uint32    `json:"pid"`
	ThreadID      uint32    `json:"tid,omitempty"`
	Kind          EventKind `json:"kind"`
	FilePath      string    `json:"file_path,omitempty"`
	TargetProcess string    `json:"target_process,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewThreatEvent stamps a new event with the current time
func NewThreatEvent(kind EventKind, pid uint32) ThreatEvent {
	return ThreatEvent{
		ProcessID: pid,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// WithFile returns a copy carrying the subject file path
func (e ThreatEvent) WithFile(path string) ThreatEvent {
	e.FilePath = path
	return e
}

// WithTarget returns a copy carrying the subject target-process name
func (e ThreatEvent) WithTarget(name string) ThreatEvent {
	e.TargetProcess = name
	return e
}

// WithThread returns a copy carrying the source thread id
func (e ThreatEvent) WithThread(tid uint32) ThreatEvent {
	e.ThreadID = tid
	return e
}
