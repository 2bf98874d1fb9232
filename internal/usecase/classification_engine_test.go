package usecase

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
)

type engineFixture struct {
	engine    *ClassificationEngine
	lists     *domain.ListStore
	responder *fakeResponder
	notifier  *fakeNotifier
	settings  *domain.SettingsHolder
	metrics   *infrastructure.Metrics
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		lists:     domain.NewListStore(),
		responder: &fakeResponder{},
		notifier:  &fakeNotifier{},
		settings:  domain.NewSettingsHolder(domain.DefaultSettings()),
		metrics:   infrastructure.NewMetrics(prometheus.NewRegistry()),
	}
	f.engine = NewClassificationEngine(f.lists, f.responder, f.notifier, f.settings, f.metrics)
	return f
}

func TestClassifyAllowListWinsOverBlockList(t *testing.T) {
	f := newEngineFixture(t)
	f.lists.Seed(domain.AllowList, []string{"tool.exe"})
	f.lists.Seed(domain.BlockList, []string{"tool.exe"})

	events := []domain.ThreatEvent{
		domain.NewThreatEvent(domain.KindFileWrite, 10).WithFile(`C:\Users\a\tool.exe`),
		domain.NewThreatEvent(domain.KindProcessOpen, 10).WithTarget("tool.exe"),
		domain.NewThreatEvent(domain.KindRootkitSignal, 10).WithFile(`C:\x\tool.exe`),
	}
	for _, ev := range events {
		det := f.engine.Classify(context.Background(), ev)
		assert.Equal(t, domain.SeverityLow, det.Verdict.Severity, ev.Kind.String())
		assert.Equal(t, domain.ActionAllow, det.Verdict.Action, ev.Kind.String())
		assert.False(t, det.AutoRemediated)
	}
	assert.Zero(t, f.responder.count())
	assert.Zero(t, f.notifier.count())
}

func TestClassifyBlockListRemediatesOnce(t *testing.T) {
	f := newEngineFixture(t)
	f.lists.Seed(domain.BlockList, []string{"ryuk"})

	ev := domain.NewThreatEvent(domain.KindFileCreate, 321).WithFile(`C:\Users\a\Downloads\ryuk_setup.exe`)
	det := f.engine.Classify(context.Background(), ev)

	assert.Equal(t, domain.SeverityCritical, det.Verdict.Severity)
	assert.Equal(t, domain.ActionRemove, det.Verdict.Action)
	assert.Equal(t, "Blacklisted File", det.Verdict.Name)
	assert.True(t, det.AutoRemediated)

	require.Equal(t, 1, f.responder.count())
	assert.Equal(t, domain.ActionRemove, f.responder.calls[0].action)
	assert.Equal(t, det.ID, f.responder.calls[0].det.ID)

	// the threat is already gone, so the UI is not bothered
	assert.Zero(t, f.notifier.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AutoRemediations.WithLabelValues("remove")))
}

func TestClassifyTargetProcessLists(t *testing.T) {
	f := newEngineFixture(t)
	f.lists.Seed(domain.BlockList, []string{"keylogger"})
	f.lists.Seed(domain.AllowList, []string{"explorer.exe"})

	det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindProcessOpen, 5).WithTarget("keylogger64.exe"))
	assert.Equal(t, "Blacklisted Process", det.Verdict.Name)
	assert.Equal(t, domain.SeverityCritical, det.Verdict.Severity)
	assert.Equal(t, 1, f.responder.count())

	// explorer.exe is sensitive but the allow-list short-circuits the heuristic
	det = f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindProcessOpen, 5).WithTarget("explorer.exe"))
	assert.Equal(t, domain.SeverityLow, det.Verdict.Severity)
	assert.Equal(t, domain.ActionAllow, det.Verdict.Action)
	assert.Equal(t, "Allowed Process", det.Verdict.Name)
	assert.Zero(t, f.notifier.count())
}

func TestClassifyHeuristics(t *testing.T) {
	tests := []struct {
		name       string
		ev         domain.ThreatEvent
		severity   domain.Severity
		action     domain.Action
		threat     string
		remediated bool
		notified   bool
	}{
		{
			name:     "executable dropped in temp",
			ev:       domain.NewThreatEvent(domain.KindFileCreate, 1).WithFile(`C:\Users\a\AppData\Local\Temp\x.exe`),
			severity: domain.SeverityMedium,
			action:   domain.ActionQuarantine,
			threat:   "Suspicious Executable",
		},
		{
			name:     "driver dropped in tmp",
			ev:       domain.NewThreatEvent(domain.KindFileCreate, 1).WithFile("/tmp/rk.sys"),
			severity: domain.SeverityMedium,
			action:   domain.ActionQuarantine,
			threat:   "Suspicious Executable",
		},
		{
			name:     "executable outside temp",
			ev:       domain.NewThreatEvent(domain.KindFileCreate, 1).WithFile(`D:\build\out.exe`),
			severity: domain.SeverityLow,
			action:   domain.ActionNone,
		},
		{
			name:     "lsass opened",
			ev:       domain.NewThreatEvent(domain.KindProcessOpen, 1).WithTarget("lsass.exe"),
			severity: domain.SeverityHigh,
			action:   domain.ActionBlock,
			threat:   "Sensitive Process Access",
			notified: true,
		},
		{
			name:     "ordinary process opened",
			ev:       domain.NewThreatEvent(domain.KindProcessOpen, 1).WithTarget("notepad.exe"),
			severity: domain.SeverityLow,
			action:   domain.ActionNone,
		},
		{
			name:       "ransomware write",
			ev:         domain.NewThreatEvent(domain.KindFileWrite, 1).WithFile(`C:\Users\a\Documents\doc.encrypted`),
			severity:   domain.SeverityCritical,
			action:     domain.ActionRemove,
			threat:     "Ransomware Activity",
			remediated: true,
			notified:   true,
		},
		{
			name:     "ransomware suffix on create is not a write",
			ev:       domain.NewThreatEvent(domain.KindFileCreate, 1).WithFile(`C:\Users\a\Documents\doc.encrypted`),
			severity: domain.SeverityLow,
			action:   domain.ActionNone,
		},
		{
			name:     "memory write",
			ev:       domain.NewThreatEvent(domain.KindMemoryWrite, 1).WithTarget("chrome.exe"),
			severity: domain.SeverityHigh,
			action:   domain.ActionBlock,
			threat:   "Memory Write",
			notified: true,
		},
		{
			name:       "rootkit",
			ev:         domain.NewThreatEvent(domain.KindRootkitSignal, 1),
			severity:   domain.SeverityCritical,
			action:     domain.ActionRemove,
			threat:     "Rootkit Detected",
			remediated: true,
			notified:   true,
		},
		{
			name:     "section create has no rule",
			ev:       domain.NewThreatEvent(domain.KindSectionCreate, 1).WithFile(`C:\x.dll`),
			severity: domain.SeverityLow,
			action:   domain.ActionNone,
		},
		{
			name:     "empty event",
			ev:       domain.ThreatEvent{Kind: domain.KindFileWrite},
			severity: domain.SeverityLow,
			action:   domain.ActionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			det := f.engine.Classify(context.Background(), tt.ev)

			assert.Equal(t, tt.severity, det.Verdict.Severity)
			assert.Equal(t, tt.action, det.Verdict.Action)
			assert.Equal(t, tt.threat, det.Verdict.Name)
			assert.Equal(t, tt.remediated, det.AutoRemediated)
			assert.NotEmpty(t, det.ID)

			wantCalls := 0
			if tt.remediated {
				wantCalls = 1
			}
			assert.Equal(t, wantCalls, f.responder.count())

			wantNotes := 0
			if tt.notified {
				wantNotes = 1
			}
			assert.Equal(t, wantNotes, f.notifier.count())
		})
	}
}

func TestClassifyBehaviorMonitoringOff(t *testing.T) {
	f := newEngineFixture(t)
	s := f.settings.Load()
	s.BehaviorMonitoring = false
	f.settings.Store(s)
	f.lists.Seed(domain.BlockList, []string{"zeus"})

	det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindRootkitSignal, 9))
	assert.Equal(t, domain.SeverityLow, det.Verdict.Severity)
	assert.Equal(t, domain.ActionNone, det.Verdict.Action)
	assert.Zero(t, f.responder.count())

	// list rules still apply
	det = f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindFileCreate, 9).WithFile("/tmp/zeus.bin"))
	assert.Equal(t, domain.SeverityCritical, det.Verdict.Severity)
	assert.Equal(t, 1, f.responder.count())
}

func TestClassifyAutoQuarantine(t *testing.T) {
	f := newEngineFixture(t)
	s := f.settings.Load()
	s.AutoQuarantine = true
	f.settings.Store(s)

	det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindFileCreate, 3).WithFile("/tmp/dropper.exe"))
	assert.Equal(t, domain.ActionQuarantine, det.Verdict.Action)
	assert.True(t, det.AutoRemediated)
	require.Equal(t, 1, f.responder.count())
	assert.Equal(t, domain.ActionQuarantine, f.responder.calls[0].action)
}

func TestClassifyExtraRansomwareExtensions(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.SetRansomwareExtensions([]string{".wncry"})

	det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindFileWrite, 3).WithFile(`C:\d\plan.DOCX.WNCRY`))
	assert.Equal(t, "Ransomware Activity", det.Verdict.Name)
}

func TestClassifyTempRoots(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.SetTempRoots(`D:\Scratch`)

	det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindFileCreate, 3).WithFile(`D:\Scratch\tool.dll`))
	assert.Equal(t, "Suspicious Executable", det.Verdict.Name)
}

func TestAssessAdoptsFinding(t *testing.T) {
	f := newEngineFixture(t)

	finding := &Finding{
		Severity:    domain.SeverityCritical,
		Name:        "Encrypted File Detected",
		Description: "A file with a ransomware extension was found.",
		Action:      domain.ActionDecrypt,
	}
	// a FileWrite with a ransomware suffix would be auto-removed by Classify
	ev := domain.NewThreatEvent(domain.KindFileWrite, 0).WithFile("/home/a/Documents/q.xlsx.encrypted")
	det := f.engine.Assess(context.Background(), ev, finding)

	assert.Equal(t, domain.ActionDecrypt, det.Verdict.Action)
	assert.Equal(t, "Encrypted File Detected", det.Verdict.Name)
	assert.False(t, det.AutoRemediated)
	assert.Zero(t, f.responder.count())
	assert.Equal(t, 1, f.notifier.count())
}

func TestAssessListRulesComeFirst(t *testing.T) {
	f := newEngineFixture(t)
	f.lists.Seed(domain.BlockList, []string{"keylogger"})
	f.lists.Seed(domain.AllowList, []string{"/usr/lib/"})

	module := &Finding{
		Severity:    domain.SeverityCritical,
		Name:        "Blacklisted Module",
		Description: "A known malicious module is loaded in a process.",
		Action:      domain.ActionRemove,
		Auto:        true,
	}

	det := f.engine.Assess(context.Background(),
		domain.NewThreatEvent(domain.KindMemoryWrite, 44).WithFile("/opt/x/keylogger.so").WithTarget("host"), module)
	assert.Equal(t, "Blacklisted Module", det.Verdict.Name)
	assert.Equal(t, domain.SeverityCritical, det.Verdict.Severity)
	assert.True(t, det.AutoRemediated)
	assert.Equal(t, 1, f.responder.count())

	det = f.engine.Assess(context.Background(),
		domain.NewThreatEvent(domain.KindMemoryWrite, 44).WithFile("/usr/lib/keylogger.so").WithTarget("host"), module)
	assert.Equal(t, domain.ActionAllow, det.Verdict.Action)
	assert.Equal(t, 1, f.responder.count())
}

func TestAssessAutoFinding(t *testing.T) {
	f := newEngineFixture(t)

	det := f.engine.Assess(context.Background(), domain.NewThreatEvent(domain.KindMemoryWrite, 77).WithTarget("locker"), &Finding{
		Severity: domain.SeverityCritical,
		Name:     "Ransomware Process",
		Action:   domain.ActionRemove,
		Auto:     true,
	})

	assert.True(t, det.AutoRemediated)
	require.Equal(t, 1, f.responder.count())
	assert.Equal(t, uint32(77), f.responder.calls[0].det.Event.ProcessID)
	assert.Equal(t, 1, f.notifier.count())
}

func TestClassifyAssignsUniqueIDs(t *testing.T) {
	f := newEngineFixture(t)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		det := f.engine.Classify(context.Background(), domain.NewThreatEvent(domain.KindSectionCreate, uint32(i)))
		require.False(t, seen[det.ID])
		seen[det.ID] = true
	}
	assert.Equal(t, 50.0, testutil.ToFloat64(f.metrics.EventsClassified.WithLabelValues("LOW")))
}
