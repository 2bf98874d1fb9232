package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ThreatEvent
	accept bool
}

func (s *recordingSink) Ingest(ev domain.ThreatEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.accept
}

func sysmonXML(id string, data string) []byte {
	return []byte(
		"<Event><System><EventID>" + id + "</EventID>" +
			"<TimeCreated SystemTime='2024-03-01T10:00:00.1234567Z'/><Computer>WS01</Computer></System>" +
			"<EventData>" + data + "</EventData></Event>")
}

func TestParseSysmonEvent(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		wantOK     bool
		wantKind   domain.EventKind
		wantPID    uint32
		wantTID    uint32
		wantFile   string
		wantTarget string
	}{
		{
			name:     "file create",
			raw:      sysmonXML("11", `<Data Name='ProcessId'>4242</Data><Data Name='TargetFilename'>C:\Users\a\AppData\Local\Temp\drop.exe</Data>`),
			wantOK:   true,
			wantKind: domain.KindFileCreate,
			wantPID:  4242,
			wantFile: `C:\Users\a\AppData\Local\Temp\drop.exe`,
		},
		{
			name:     "file create with ransomware suffix",
			raw:      sysmonXML("11", `<Data Name='ProcessId'>77</Data><Data Name='TargetFilename'>C:\Users\a\Documents\q3.xlsx.encrypted</Data>`),
			wantOK:   true,
			wantKind: domain.KindFileWrite,
			wantPID:  77,
			wantFile: `C:\Users\a\Documents\q3.xlsx.encrypted`,
		},
		{
			name:     "file creation time changed",
			raw:      sysmonXML("2", `<Data Name='ProcessId'>12</Data><Data Name='TargetFilename'>C:\x\y.dll</Data>`),
			wantOK:   true,
			wantKind: domain.KindFileMetadataSet,
			wantPID:  12,
			wantFile: `C:\x\y.dll`,
		},
		{
			name:       "process access",
			raw:        sysmonXML("10", `<Data Name='SourceProcessId'>900</Data><Data Name='SourceThreadId'>901</Data><Data Name='TargetImage'>C:\Windows\System32\lsass.exe</Data>`),
			wantOK:     true,
			wantKind:   domain.KindProcessOpen,
			wantPID:    900,
			wantTID:    901,
			wantTarget: "lsass.exe",
		},
		{
			name:       "remote thread",
			raw:        sysmonXML("8", `<Data Name='SourceProcessId'>55</Data><Data Name='TargetImage'>C:\Windows\explorer.exe</Data>`),
			wantOK:     true,
			wantKind:   domain.KindMemoryWrite,
			wantPID:    55,
			wantTarget: "explorer.exe",
		},
		{
			name:       "process tampering",
			raw:        sysmonXML("25", `<Data Name='ProcessId'>66</Data><Data Name='Image'>C:\Tools\notepad.exe</Data>`),
			wantOK:     true,
			wantKind:   domain.KindMemoryWrite,
			wantPID:    66,
			wantTarget: "notepad.exe",
		},
		{
			name:   "unmapped event id",
			raw:    sysmonXML("1", `<Data Name='ProcessId'>1</Data>`),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := ParseSysmonEvent(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantPID, ev.ProcessID)
			assert.Equal(t, tt.wantTID, ev.ThreadID)
			assert.Equal(t, tt.wantFile, ev.FilePath)
			assert.Equal(t, tt.wantTarget, ev.TargetProcess)
			assert.Equal(t, 2024, ev.Timestamp.Year())
		})
	}
}

func TestParseSysmonEventMalformed(t *testing.T) {
	_, ok, err := ParseSysmonEvent([]byte("<Event><System>"))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestFileOpKind(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		path   string
		want   domain.EventKind
		wantOK bool
	}{
		{fsnotify.Create, "/tmp/a.exe", domain.KindFileCreate, true},
		{fsnotify.Create, "/home/u/Documents/a.docx.locked", domain.KindFileWrite, true},
		{fsnotify.Write, "/home/u/Documents/a.docx", domain.KindFileWrite, true},
		{fsnotify.Chmod, "/tmp/a.sh", domain.KindFileMetadataSet, true},
		{fsnotify.Remove, "/tmp/a.exe", 0, false},
		{fsnotify.Rename, "/tmp/a.exe", 0, false},
	}

	for _, tt := range tests {
		kind, ok := FileOpKind(tt.op, tt.path)
		assert.Equal(t, tt.wantOK, ok, "%s %s", tt.op, tt.path)
		if ok {
			assert.Equal(t, tt.want, kind, "%s %s", tt.op, tt.path)
		}
	}
}

func TestFileSensorHandle(t *testing.T) {
	sink := &recordingSink{accept: true}
	s := NewFileSensor(sink, nil, []string{t.TempDir()})

	s.handle(fsnotify.Event{Name: "/tmp/payload.exe", Op: fsnotify.Create})
	s.handle(fsnotify.Event{Name: "/tmp/.#lockfile", Op: fsnotify.Create})
	s.handle(fsnotify.Event{Name: "/tmp/download.part", Op: fsnotify.Write})
	s.handle(fsnotify.Event{Name: "/tmp/gone.exe", Op: fsnotify.Remove})

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.KindFileCreate, sink.events[0].Kind)
	assert.Equal(t, "/tmp/payload.exe", sink.events[0].FilePath)
	assert.Zero(t, sink.events[0].ProcessID)

	stats := s.GetStats()
	assert.Equal(t, 1, stats["received"])
	assert.Equal(t, 0, stats["dropped"])
}

func TestFileSensorStartWithoutPaths(t *testing.T) {
	s := NewFileSensor(&recordingSink{}, nil, []string{"", "/definitely/not/here"})
	assert.Error(t, s.Start(context.Background()))
}
