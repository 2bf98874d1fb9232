package infrastructure

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
)

// DetectionNotifier receives high-severity detections without blocking
type DetectionNotifier interface {
	Notify(det domain.Detection)
}

// ChannelNotifier posts detections onto a bounded channel for an in-process
// consumer. A full buffer drops the detection.
type ChannelNotifier struct {
	ch      chan domain.Detection
	metrics *Metrics
	dropped atomic.Uint64
	once    sync.Once
	closed  atomic.Bool
}

// NewChannelNotifier creates a notifier with the given buffer size
func NewChannelNotifier(buffer int, metrics *Metrics) *ChannelNotifier {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelNotifier{
		ch:      make(chan domain.Detection, buffer),
		metrics: metrics,
	}
}

func (n *ChannelNotifier) Notify(det domain.Detection) {
	if n.closed.Load() {
		return
	}
	select {
	case n.ch <- det:
		n.metrics.ObserveNotification("channel", true)
	default:
		n.dropped.Add(1)
		n.metrics.ObserveNotification("channel", false)
		log.Warn().Str("id", det.ID).Str("threat", det.Verdict.Name).Msg("notification buffer full, dropping")
	}
}

// C returns the receive side
func (n *ChannelNotifier) C() <-chan domain.Detection {
	return n.ch
}

// Dropped returns how many notifications were dropped
func (n *ChannelNotifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close stops accepting notifications. Call it only after producers stop.
func (n *ChannelNotifier) Close() {
	n.once.Do(func() {
		n.closed.Store(true)
		close(n.ch)
	})
}

// MultiNotifier fans a detection out to every notifier
type MultiNotifier []DetectionNotifier

func (m MultiNotifier) Notify(det domain.Detection) {
	for _, n := range m {
		if n != nil {
			n.Notify(det)
		}
	}
}
