package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
)

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	c := NewCLI(&buf)

	require.NoError(t, c.PrintList(domain.BlockList, nil))
	assert.Equal(t, "The block list is empty\n", buf.String())

	buf.Reset()
	require.NoError(t, c.PrintList(domain.AllowList, []domain.ListEntry{
		{Pattern: "explorer.exe", Enabled: true},
		{Pattern: "old.exe", Enabled: false},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"explorer.exe", "true"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"old.exe", "false"}, strings.Fields(lines[3]))
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	c := NewCLI(&buf)

	require.NoError(t, c.PrintHistory(nil))
	assert.Equal(t, "No detections recorded\n", buf.String())

	buf.Reset()
	records := []domain.HistoryRecord{
		{
			Detection: domain.Detection{
				ID:    "id-1",
				Event: domain.NewThreatEvent(domain.KindProcessOpen, 7).WithTarget("lsass.exe"),
				Verdict: domain.Verdict{
					Severity: domain.SeverityCritical,
					Name:     "Credential Theft Attempt",
					Action:   domain.ActionBlock,
				},
				AutoRemediated: true,
			},
			RecordedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, c.PrintHistory(records))

	out := buf.String()
	assert.Contains(t, out, "id-1")
	assert.Contains(t, out, "2024-05-01 10:00:00")
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "block (auto)")
	assert.Contains(t, out, "lsass.exe")
}

func TestPrintSettingsUsesPersistedOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCLI(&buf).PrintSettings(domain.DefaultSettings()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2+len(domain.SettingNames))
	for i, name := range domain.SettingNames {
		assert.Equal(t, name, strings.Fields(lines[i+2])[0])
	}
}

func TestPrintStatsSortsKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCLI(&buf).PrintStats("Scan", map[string]interface{}{
		"scans_run": 2,
		"running":   true,
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Scan:", lines[0])
	assert.Equal(t, []string{"running", "true"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"scans_run", "2"}, strings.Fields(lines[2]))
}

func TestSubject(t *testing.T) {
	ev := domain.NewThreatEvent(domain.KindFileWrite, 9)
	assert.Equal(t, "pid 9", subject(ev))
	assert.Equal(t, "/a", subject(ev.WithFile("/a")))
	assert.Equal(t, "/a -> x.exe", subject(ev.WithFile("/a").WithTarget("x.exe")))
}
