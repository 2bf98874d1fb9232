package infrastructure

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
)

func TestHistoryExport(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	records := []domain.HistoryRecord{
		{Detection: detection("one", domain.SeverityHigh), RecordedAt: now},
		{Detection: detection("two", domain.SeverityCritical), RecordedAt: now.Add(time.Second)},
	}

	path := filepath.Join(t.TempDir(), "history.jsonl.zst")
	require.NoError(t, ExportHistory(path, records))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	got, err := ReadHistoryJSONL(file)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].ID)
	assert.Equal(t, domain.SeverityCritical, got[1].Verdict.Severity)
	assert.Equal(t, "lsass.exe", got[1].Event.TargetProcess)
}

func TestHistoryExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryJSONL(&buf, nil))

	got, err := ReadHistoryJSONL(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListText(t *testing.T) {
	entries := []domain.ListEntry{
		{Pattern: `C:\Program Files\`, Enabled: true},
		{Pattern: "zeus", Enabled: false},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteListText(&buf, entries))
	assert.Equal(t, "C:\\Program Files\\\n#zeus\n", buf.String())

	got, err := ReadListText(strings.NewReader(buf.String() + "\r\n\n"))
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
