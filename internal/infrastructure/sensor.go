package infrastructure

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"aegis/internal/domain"
)

// EventSink accepts one sensor event at a time; false means it was dropped
type EventSink interface {
	Ingest(ev domain.ThreatEvent) bool
}

// Sysmon Event IDs
const (
	EventIDFileCreateTime     = 2  // File creation time changed
	EventIDCreateRemoteThread = 8  // Thread created in another process
	EventIDProcessAccess      = 10 // Process accessed
	EventIDFileCreate         = 11 // File created or overwritten
	EventIDProcessTampering   = 25 // Image replaced in memory
)

// SysmonEventXML is the rendered form of one Sysmon event
type SysmonEventXML struct {
	XMLName xml.Name `xml:"Event"`
	System  struct {
		EventID     int `xml:"EventID"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
		} `xml:"TimeCreated"`
		Computer  string `xml:"Computer"`
		Execution struct {
			ProcessID int `xml:"ProcessID,attr"`
		} `xml:"Execution"`
	} `xml:"System"`
	EventData struct {
		Data []struct {
			Name  string `xml:"Name,attr"`
			Value string `xml:",chardata"`
		} `xml:"Data"`
	} `xml:"EventData"`
}

// ParseSysmonEvent converts rendered Sysmon XML into a ThreatEvent.
// ok is false for event IDs that do not map onto an event kind.
func ParseSysmonEvent(raw []byte) (ev domain.ThreatEvent, ok bool, err error) {
	var x SysmonEventXML
	if err := xml.Unmarshal(raw, &x); err != nil {
		return domain.ThreatEvent{}, false, fmt.Errorf("failed to parse Sysmon event XML: %w", err)
	}

	data := make(map[string]string, len(x.EventData.Data))
	for _, d := range x.EventData.Data {
		data[d.Name] = strings.TrimSpace(d.Value)
	}

	ts := time.Now()
	if parsed, perr := time.Parse(time.RFC3339Nano, x.System.TimeCreated.SystemTime); perr == nil {
		ts = parsed
	}

	switch x.System.EventID {
	case EventIDFileCreate:
		path := data["TargetFilename"]
		kind := domain.KindFileCreate
		if domain.HasRansomwareExtension(path) {
			kind = domain.KindFileWrite
		}
		ev = domain.ThreatEvent{Kind: kind, FilePath: path}
		ev.ProcessID = parseUint32(data["ProcessId"])
	case EventIDFileCreateTime:
		ev = domain.ThreatEvent{Kind: domain.KindFileMetadataSet, FilePath: data["TargetFilename"]}
		ev.ProcessID = parseUint32(data["ProcessId"])
	case EventIDProcessAccess:
		ev = domain.ThreatEvent{Kind: domain.KindProcessOpen, TargetProcess: domain.LastPathComponent(data["TargetImage"])}.
			WithThread(parseUint32(data["SourceThreadId"]))
		ev.ProcessID = parseUint32(data["SourceProcessId"])
	case EventIDCreateRemoteThread:
		ev = domain.ThreatEvent{Kind: domain.KindMemoryWrite, TargetProcess: domain.LastPathComponent(data["TargetImage"])}
		ev.ProcessID = parseUint32(data["SourceProcessId"])
	case EventIDProcessTampering:
		ev = domain.ThreatEvent{Kind: domain.KindMemoryWrite, TargetProcess: domain.LastPathComponent(data["Image"])}
		ev.ProcessID = parseUint32(data["ProcessId"])
	default:
		return domain.ThreatEvent{}, false, nil
	}

	ev.Timestamp = ts
	return ev, true, nil
}

// FileOpKind maps a filesystem notification onto an event kind
func FileOpKind(op fsnotify.Op, path string) (domain.EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		if domain.HasRansomwareExtension(path) {
			return domain.KindFileWrite, true
		}
		return domain.KindFileCreate, true
	case op.Has(fsnotify.Write):
		return domain.KindFileWrite, true
	case op.Has(fsnotify.Chmod):
		return domain.KindFileMetadataSet, true
	}
	return 0, false
}

func parseUint32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}
