package infrastructure

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/domain"
)

func detection(id string, sev domain.Severity) domain.Detection {
	return domain.Detection{
		ID:      id,
		Event:   domain.NewThreatEvent(domain.KindProcessOpen, 100).WithTarget("lsass.exe"),
		Verdict: domain.Verdict{Severity: sev, Name: "Sensitive Process Access", Action: domain.ActionBlock},
	}
}

func TestChannelNotifierDropsWhenFull(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	n := NewChannelNotifier(2, metrics)

	n.Notify(detection("a", domain.SeverityHigh))
	n.Notify(detection("b", domain.SeverityHigh))
	n.Notify(detection("c", domain.SeverityCritical))

	assert.Equal(t, uint64(1), n.Dropped())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Notifications.WithLabelValues("channel", "dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Notifications.WithLabelValues("channel", "delivered")))

	first := <-n.C()
	second := <-n.C()
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestChannelNotifierClose(t *testing.T) {
	n := NewChannelNotifier(1, nil)
	n.Close()
	n.Close()

	n.Notify(detection("late", domain.SeverityHigh))
	_, ok := <-n.C()
	assert.False(t, ok)
}

type countingNotifier struct {
	got []string
}

func (c *countingNotifier) Notify(det domain.Detection) {
	c.got = append(c.got, det.ID)
}

func TestMultiNotifier(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{}
	m := MultiNotifier{a, nil, b}

	m.Notify(detection("x", domain.SeverityCritical))

	require.Equal(t, []string{"x"}, a.got)
	require.Equal(t, []string{"x"}, b.got)
}

func TestDecodeThreatEvent(t *testing.T) {
	ev, err := DecodeThreatEvent([]byte(`{"pid":321,"kind":"file_write","file_path":"C:\\Users\\a\\doc.locked"}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(321), ev.ProcessID)
	assert.Equal(t, domain.KindFileWrite, ev.Kind)
	assert.Equal(t, `C:\Users\a\doc.locked`, ev.FilePath)
	assert.False(t, ev.Timestamp.IsZero())

	_, err = DecodeThreatEvent([]byte(`{"pid":1,"kind":"teleport"}`))
	assert.Error(t, err)

	_, err = DecodeThreatEvent([]byte(`not json`))
	assert.Error(t, err)
}
