package domain

import "sync/atomic"

// Settings are the user protection toggles
type Settings struct {
	RealtimeProtection   bool `json:"realtime_protection" yaml:"realtime_protection"`
	AutoQuarantine       bool `json:"auto_quarantine" yaml:"auto_quarantine"`
	BehaviorMonitoring   bool `json:"behavior_monitoring" yaml:"behavior_monitoring"`
	RansomwareProtection bool `json:"ransomware_protection" yaml:"ransomware_protection"`
	MemoryScanning       bool `json:"memory_scanning" yaml:"memory_scanning"`
}

// DefaultSettings matches a fresh install
func DefaultSettings() Settings {
	return Settings{
		RealtimeProtection:   true,
		AutoQuarantine:       false,
		BehaviorMonitoring:   true,
		RansomwareProtection: true,
		MemoryScanning:       true,
	}
}

// SettingNames lists the persisted keys
var SettingNames = []string{
	"realtime_protection",
	"auto_quarantine",
	"behavior_monitoring",
	"ransomware_protection",
	"memory_scanning",
}

// Get reads a toggle by its persisted name
func (s Settings) Get(name string) (bool, bool) {
	switch name {
	case "realtime_protection":
		return s.RealtimeProtection, true
	case "auto_quarantine":
		return s.AutoQuarantine, true
	case "behavior_monitoring":
		return s.BehaviorMonitoring, true
	case "ransomware_protection":
		return s.RansomwareProtection, true
	case "memory_scanning":
		return s.MemoryScanning, true
	}
	return false, false
}

// With returns a copy with one toggle changed; ok is false for unknown names
func (s Settings) With(name string, value bool) (Settings, bool) {
	switch name {
	case "realtime_protection":
		s.RealtimeProtection = value
	case "auto_quarantine":
		s.AutoQuarantine = value
	case "behavior_monitoring":
		s.BehaviorMonitoring = value
	case "ransomware_protection":
		s.RansomwareProtection = value
	case "memory_scanning":
		s.MemoryScanning = value
	default:
		return s, false
	}
	return s, true
}

// SettingsHolder shares the current settings between goroutines
type SettingsHolder struct {
	current atomic.Pointer[Settings]
}

// NewSettingsHolder stores an initial value
func NewSettingsHolder(s Settings) *SettingsHolder {
	h := &SettingsHolder{}
	h.Store(s)
	return h
}

func (h *SettingsHolder) Load() Settings {
	if p := h.current.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

func (h *SettingsHolder) Store(s Settings) {
	h.current.Store(&s)
}
